package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/refviewer/internal/collection"
	"github.com/bryanchriswhite/refviewer/internal/config"
	"github.com/bryanchriswhite/refviewer/internal/logger"
	"github.com/bryanchriswhite/refviewer/internal/session"
	"github.com/bryanchriswhite/refviewer/internal/timer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	settings config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "refviewer",
	Short: "refviewer - Reference image viewer with a focus-aware timer",
	Long: `refviewer shows reference images from a set of folders in a small
window and times how long you have spent on the current image.

Features:
  • Browse images from any number of folders
  • Elapsed-time overlay that resets on every new image
  • Pause the timer automatically when a tracked application loses focus
  • Always-on-top window sized to the image
  • Session saved after every change and restored on launch
  • Optional loopback control API`,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default is $HOME/.config/refviewer/settings.yaml)")
	rootCmd.PersistentFlags().String("session-file", "", "session file (default is $HOME/.config/refviewer/session.json)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human readable log output")

	// Bind flags to viper
	viper.BindPFlag("session_file", rootCmd.PersistentFlags().Lookup("session-file"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

func loadSettings(cmd *cobra.Command, args []string) error {
	s, err := config.LoadSettings(viper.GetViper())
	if err != nil {
		return err
	}
	settings = s
	logger.Init(s.LogLevel, s.LogPretty)
	return nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openStore() (*config.Store, error) {
	store, err := config.NewStore(settings.SessionFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	return store, nil
}

// openSession restores the saved session without a window, for commands
// that edit the session file directly
func openSession() (*session.Controller, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	coll := collection.NewManager(collection.WithScanTimeout(settings.ScanTimeout))
	ctrl := session.New(store, coll, timer.NewEngine(nil), session.NopSurface{})
	ctrl.Hydrate()
	return ctrl, nil
}

// apply runs cmds against the saved session in order, stopping at the
// first failure
func apply(cmds ...session.Command) (*session.Controller, error) {
	ctrl, err := openSession()
	if err != nil {
		return nil, err
	}
	for _, c := range cmds {
		if err := ctrl.Handle(c); err != nil {
			return ctrl, err
		}
	}
	return ctrl, nil
}
