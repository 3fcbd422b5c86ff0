package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/refviewer/internal/window"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Print the focused application",
	Long: `Print the process name of the focused window, the value a tracked
process name is matched against.`,
	Example: `  # Print once
  refviewer probe

  # Print every change until interrupted
  refviewer probe --watch`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

var probeWatch bool

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().BoolVarP(&probeWatch, "watch", "w", false, "print every focus change until interrupted")
}

func runProbe(cmd *cobra.Command, args []string) error {
	backend, err := window.NewX11Backend()
	if err != nil {
		return err
	}
	defer backend.Close()

	poller := window.NewPoller(backend, nil, settings.PollInterval)
	if !probeWatch {
		r := poller.Sample()
		if r.Err != nil {
			return r.Err
		}
		fmt.Fprintln(cmd.OutOrStdout(), r.Process)
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var last string
	printed := false
	poller.Run(ctx, func(r window.Reading) {
		name := r.Foreground()
		if printed && name == last {
			return
		}
		last, printed = name, true
		if name == "" {
			name = "(unknown)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", r.At.Format(time.TimeOnly), name)
	})
	return nil
}
