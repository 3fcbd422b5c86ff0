package commands

import (
	"context"
	"image"
	"os"
	"os/signal"
	"syscall"

	"fyne.io/fyne/v2/app"
	"github.com/bryanchriswhite/refviewer/internal/api"
	"github.com/bryanchriswhite/refviewer/internal/collection"
	"github.com/bryanchriswhite/refviewer/internal/display"
	"github.com/bryanchriswhite/refviewer/internal/logger"
	"github.com/bryanchriswhite/refviewer/internal/session"
	"github.com/bryanchriswhite/refviewer/internal/timer"
	"github.com/bryanchriswhite/refviewer/internal/watch"
	"github.com/bryanchriswhite/refviewer/internal/window"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// AppID identifies the fyne application
const AppID = "io.github.refviewer"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the reference viewer",
	Long: `Open the viewer window with the saved session.

Right-click the window for the menu. Arrow keys change the image, space
starts or pauses the timer and T toggles always-on-top.`,
	Example: `  # Open the viewer
  refviewer run

  # Open the viewer with the control API on port 7878
  refviewer run --control-port 7878

  # Open the viewer with debug logging
  refviewer run --log-level debug`,
	RunE: runViewer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("control-port", 0, "serve the control API on 127.0.0.1:PORT (0 disables it)")
	runCmd.Flags().Bool("watch", true, "rescan folders when images are added or removed")
	runCmd.Flags().Duration("poll-interval", 0, "foreground window polling interval (default 500ms)")

	viper.BindPFlag("control_port", runCmd.Flags().Lookup("control-port"))
	viper.BindPFlag("watch_folders", runCmd.Flags().Lookup("watch"))
	viper.BindPFlag("poll_interval", runCmd.Flags().Lookup("poll-interval"))
}

func runViewer(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("main")

	store, err := openStore()
	if err != nil {
		return err
	}
	log.Info().Str("path", store.Path()).Msg("Using session file")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var (
		probe   window.Probe
		stacker window.Stacker
	)
	backend, err := window.NewX11Backend()
	if err != nil {
		log.Warn().Err(err).Msg("X11 unavailable, focus tracking and always-on-top disabled")
	} else {
		defer backend.Close()
		probe = backend
		stacker = backend
	}

	a := app.NewWithID(AppID)
	win := display.New(a, display.Options{
		MaxSize: image.Pt(settings.MaxWindowWidth, settings.MaxWindowHeight),
		Stacker: stacker,
	})

	opts := []session.Option{session.WithOverlayInterval(settings.OverlayInterval)}

	var ctrl *session.Controller
	var watcher *watch.Watcher
	if settings.WatchFolders {
		watcher, err = watch.New(func() { ctrl.RequestRescan() })
		if err != nil {
			log.Warn().Err(err).Msg("Folder watching disabled")
		} else {
			defer watcher.Stop()
			opts = append(opts, session.WithWatcher(watcher))
		}
	}

	coll := collection.NewManager(collection.WithScanTimeout(settings.ScanTimeout))
	ctrl = session.New(store, coll, timer.NewEngine(nil), win, opts...)
	ctrl.Hydrate()
	win.Bind(ctx, ctrl)

	go func() {
		if err := ctrl.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Session loop stopped")
		}
	}()

	if probe != nil {
		go window.NewPoller(probe, nil, settings.PollInterval).Run(ctx, ctrl.Deliver)
	}

	if watcher != nil {
		if err := watcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start folder watcher")
		}
	}

	if settings.ControlPort > 0 {
		server := api.NewServer(ctrl)
		go func() {
			if err := server.Start(ctx, settings.ControlPort); err != nil {
				log.Error().Err(err).Msg("Control API stopped")
			}
		}()
	}

	win.SetOnClosed(cancel)
	go func() {
		<-ctx.Done()
		a.Quit()
	}()

	log.Info().Msg("Viewer running")
	win.ShowAndRun()

	log.Info().Msg("Shutting down")
	return nil
}
