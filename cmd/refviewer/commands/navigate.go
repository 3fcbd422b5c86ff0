package commands

import (
	"fmt"

	"github.com/bryanchriswhite/refviewer/internal/session"
	"github.com/spf13/cobra"
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Move the saved session to the next image",
	Args:  cobra.NoArgs,
	RunE:  commandRunner(session.NextImage{}),
}

var prevCmd = &cobra.Command{
	Use:     "prev",
	Aliases: []string{"previous"},
	Short:   "Move the saved session to the previous image",
	Args:    cobra.NoArgs,
	RunE:    commandRunner(session.PreviousImage{}),
}

var ontopCmd = &cobra.Command{
	Use:   "ontop",
	Short: "Toggle always-on-top for the next launch",
	Args:  cobra.NoArgs,
	RunE:  commandRunner(session.ToggleAlwaysOnTop{}),
}

var trackCmd = &cobra.Command{
	Use:   "track NAME",
	Short: "Pause the timer whenever NAME is not the focused application",
	Long: `Set the tracked process. NAME is matched case-insensitively against the
executable name of the focused window and may be a glob such as "krita*".
A .exe suffix is ignored on both sides.`,
	Example: `  # Only count time while Krita is focused
  refviewer track krita

  # Any GIMP version
  refviewer track 'gimp-*'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commandRunner(session.SetTrackedProcess{Process: args[0]})(cmd, args)
	},
}

var untrackCmd = &cobra.Command{
	Use:   "untrack",
	Short: "Clear the tracked process",
	Args:  cobra.NoArgs,
	RunE:  commandRunner(session.ClearTrackedProcess{}),
}

func init() {
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(prevCmd)
	rootCmd.AddCommand(ontopCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(untrackCmd)
}

// commandRunner applies c to the saved session and prints the result
func commandRunner(c session.Command) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctrl, err := apply(c)
		if err != nil {
			return err
		}
		printStatus(cmd, ctrl.Status())
		return nil
	}
}

func printStatus(cmd *cobra.Command, st session.Status) {
	out := cmd.OutOrStdout()
	if st.HasImage() {
		fmt.Fprintf(out, "Image:         %s (%d/%d)\n", st.Current, st.Index+1, st.ImageCount)
	} else {
		fmt.Fprintln(out, "Image:         none")
	}
	tracked := st.Tracked
	if tracked == "" {
		tracked = "none"
	}
	fmt.Fprintf(out, "Tracked:       %s\n", tracked)
	fmt.Fprintf(out, "Always on top: %t\n", st.AlwaysOnTop)
}
