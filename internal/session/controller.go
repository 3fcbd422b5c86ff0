// Package session coordinates the collection, the timer and persistence. A
// Controller owns all session state and applies commands and focus readings
// one at a time on a single goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/refviewer/internal/collection"
	"github.com/bryanchriswhite/refviewer/internal/config"
	"github.com/bryanchriswhite/refviewer/internal/logger"
	"github.com/bryanchriswhite/refviewer/internal/timer"
	"github.com/bryanchriswhite/refviewer/internal/window"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// DefaultOverlayInterval is how often the elapsed overlay is redrawn
const DefaultOverlayInterval = time.Second

// ErrStopped is returned by Submit once the event loop has exited
var ErrStopped = errors.New("session stopped")

// Persister loads and saves the session document
type Persister interface {
	Load() (config.SessionConfig, error)
	Save(config.SessionConfig) error
}

// FolderWatcher is told the folder set after every change
type FolderWatcher interface {
	Sync(folders []string)
}

// Option configures a Controller
type Option func(*Controller)

// WithClock sets the clock driving the overlay ticker
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithOverlayInterval sets the overlay redraw cadence
func WithOverlayInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.overlayInterval = d
		}
	}
}

// WithWatcher registers a folder watcher
func WithWatcher(w FolderWatcher) Option {
	return func(c *Controller) {
		c.watcher = w
	}
}

type request struct {
	cmd   Command
	reply chan error
}

// Controller is the single owner of the live session
type Controller struct {
	store   Persister
	coll    *collection.Manager
	engine  *timer.Engine
	surface Surface
	watcher FolderWatcher

	clock           clockwork.Clock
	overlayInterval time.Duration
	log             *zerolog.Logger

	// owned by the loop goroutine
	cfg        config.SessionConfig
	foreground string
	shownPath  string
	shownEmpty bool

	requests chan request
	readings chan window.Reading
	rescans  chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.RWMutex
	status  Status
	images  []string
	subs    map[int]chan Status
	nextSub int
}

// New creates a controller. A nil surface is replaced by NopSurface.
func New(store Persister, coll *collection.Manager, engine *timer.Engine, surface Surface, opts ...Option) *Controller {
	if surface == nil {
		surface = NopSurface{}
	}
	c := &Controller{
		store:           store,
		coll:            coll,
		engine:          engine,
		surface:         surface,
		clock:           clockwork.NewRealClock(),
		overlayInterval: DefaultOverlayInterval,
		log:             logger.WithComponent("session"),
		cfg:             config.Defaults(),
		requests:        make(chan request),
		readings:        make(chan window.Reading, 1),
		rescans:         make(chan struct{}, 1),
		done:            make(chan struct{}),
		subs:            make(map[int]chan Status),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Hydrate loads the persisted session and renders it. A missing or corrupt
// document falls back to defaults. The document is only written back when a
// vanished image moved the index.
func (c *Controller) Hydrate() {
	cfg, err := c.store.Load()
	switch {
	case errors.Is(err, config.ErrConfigMissing):
		c.log.Info().Msg("No saved session, starting from defaults")
	case errors.Is(err, config.ErrConfigCorrupt):
		c.log.Warn().Err(err).Msg("Saved session is corrupt, starting from defaults")
	case err != nil:
		c.log.Warn().Err(err).Msg("Failed to load session, starting from defaults")
	}
	c.cfg = cfg

	c.coll.Restore(cfg.Folders, cfg.CurrentIndex)
	c.syncWatcher()

	if name := cfg.Tracked(); name != "" {
		if _, err := c.engine.SetTracked(name); err != nil {
			c.log.Warn().Err(err).Str("pattern", name).Msg("Clearing saved tracked process")
			c.cfg.SetTracked("")
		}
	}

	if err := c.surface.SetAlwaysOnTop(cfg.AlwaysOnTop); err != nil {
		c.log.Warn().Err(err).Msg("Failed to apply always-on-top")
	}

	c.log.Info().
		Int("folders", len(cfg.Folders)).
		Int("images", c.coll.Len()).
		Int("index", c.coll.Index()).
		Msg("Session restored")

	if c.render() {
		if err := c.commit(); err != nil {
			c.log.Warn().Err(err).Msg("Failed to save restored position")
		}
	}
}

// Handle applies cmd and saves the session. It must be called from the
// goroutine that owns the controller: the Run loop once it is started.
func (c *Controller) Handle(cmd Command) error {
	c.log.Debug().Str("command", cmd.Name()).Msg("Handling command")

	if err := c.apply(cmd); err != nil {
		c.log.Warn().Err(err).Str("command", cmd.Name()).Msg("Command failed")
		c.publish()
		return err
	}

	err := c.commit()
	if c.render() {
		if serr := c.commit(); err == nil {
			err = serr
		}
	}
	return err
}

func (c *Controller) apply(cmd Command) error {
	switch cmd := cmd.(type) {
	case AddFolder:
		added, err := c.coll.AddFolder(cmd.Path)
		if err != nil {
			return err
		}
		if added {
			c.syncWatcher()
			c.log.Info().Str("folder", cmd.Path).Int("images", c.coll.Len()).Msg("Folder added")
		}

	case RemoveFolder:
		if c.coll.RemoveFolder(cmd.Path) {
			c.syncWatcher()
			c.log.Info().Str("folder", cmd.Path).Int("images", c.coll.Len()).Msg("Folder removed")
		}

	case NextImage:
		if c.coll.Next() {
			c.engine.Reset()
		}

	case PreviousImage:
		if c.coll.Previous() {
			c.engine.Reset()
		}

	case ToggleTimer:
		if c.coll.Len() == 0 {
			return nil
		}
		c.logTransition(c.engine.Toggle(c.foreground), "toggle")

	case ToggleAlwaysOnTop:
		c.cfg.AlwaysOnTop = !c.cfg.AlwaysOnTop
		if err := c.surface.SetAlwaysOnTop(c.cfg.AlwaysOnTop); err != nil {
			c.log.Warn().Err(err).Bool("on", c.cfg.AlwaysOnTop).Msg("Failed to apply always-on-top")
		}

	case SetTrackedProcess:
		if cmd.Process == "" {
			return c.apply(ClearTrackedProcess{})
		}
		tr, err := c.engine.SetTracked(cmd.Process)
		if err != nil {
			return err
		}
		c.cfg.SetTracked(cmd.Process)
		c.logTransition(tr, "tracking")
		c.logTransition(c.engine.Observe(c.foreground), "tracking")

	case ClearTrackedProcess:
		c.cfg.SetTracked("")
		c.logTransition(c.engine.ClearTracked(), "tracking")

	case ResetTimer:
		c.engine.Reset()

	case Rescan:
		c.coll.Rescan()
		c.syncWatcher()

	default:
		return fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
	return nil
}

// commit copies the collection position into the live document and saves a
// snapshot of it. A failed save leaves the in-memory change in place.
func (c *Controller) commit() error {
	c.cfg.Folders = c.coll.Folders()
	c.cfg.CurrentIndex = c.coll.Index()
	if c.cfg.CurrentIndex < 0 {
		c.cfg.CurrentIndex = 0
	}

	if err := c.store.Save(c.cfg.Clone()); err != nil {
		c.log.Warn().Err(err).Msg("Failed to save session")
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// render shows the current image and overlay. Images that vanished are
// skipped; it reports whether that moved the index.
func (c *Controller) render() bool {
	moved := c.showCurrent()
	c.surface.RenderOverlay(c.engine.Elapsed(), c.engine.State())
	c.publish()
	return moved
}

func (c *Controller) showCurrent() bool {
	moved := false
	for attempts := c.coll.Len(); attempts > 0; attempts-- {
		path, _ := c.coll.Current()
		if path == c.shownPath {
			return moved
		}

		err := c.surface.ShowImage(path)
		if errors.Is(err, ErrImageNotFound) {
			c.log.Warn().Str("path", path).Msg("Image vanished, skipping")
			c.coll.Next()
			moved = true
			continue
		}
		if err != nil {
			c.log.Warn().Err(err).Str("path", path).Msg("Failed to show image")
		}

		c.shownPath = path
		c.shownEmpty = false
		c.engine.Reset()
		if size, err := collection.Dimensions(path); err == nil {
			c.surface.ResizeToFit(size)
		} else {
			c.log.Debug().Err(err).Str("path", path).Msg("Failed to read image size")
		}
		return moved
	}

	c.shownPath = ""
	c.logTransition(c.engine.Stop(), "no image")
	if !c.shownEmpty {
		c.surface.ShowEmpty()
		c.shownEmpty = true
	}
	return moved
}

// ApplyReading feeds a focus reading to the timer. It must be called from the
// owning goroutine; use Deliver from other goroutines.
func (c *Controller) ApplyReading(r window.Reading) {
	fg := r.Foreground()
	if fg != c.foreground {
		c.log.Debug().Str("foreground", fg).Msg("Foreground changed")
	}
	c.foreground = fg

	if tr := c.engine.Observe(fg); tr.Changed() {
		c.logTransition(tr, "focus")
		c.surface.RenderOverlay(c.engine.Elapsed(), c.engine.State())
		c.publish()
	}
}

func (c *Controller) logTransition(tr timer.Transition, reason string) {
	if !tr.Changed() {
		return
	}
	c.log.Debug().
		Str("from", tr.From.String()).
		Str("to", tr.To.String()).
		Str("reason", reason).
		Msg("Timer transition")
}

func (c *Controller) syncWatcher() {
	if c.watcher != nil {
		c.watcher.Sync(c.coll.Folders())
	}
}

// Run is the event loop. It owns the session until ctx is done; commands,
// focus readings, rescan requests and overlay ticks are applied in order.
func (c *Controller) Run(ctx context.Context) error {
	defer c.stopOnce.Do(func() { close(c.done) })

	ticker := c.clock.NewTicker(c.overlayInterval)
	defer ticker.Stop()

	c.log.Debug().Dur("overlay_interval", c.overlayInterval).Msg("Session loop started")

	for {
		select {
		case <-ctx.Done():
			c.log.Debug().Msg("Session loop stopped")
			return nil
		case req := <-c.requests:
			req.reply <- c.Handle(req.cmd)
		case r := <-c.readings:
			c.ApplyReading(r)
		case <-c.rescans:
			if err := c.Handle(Rescan{}); err != nil {
				c.log.Warn().Err(err).Msg("Rescan failed")
			}
		case <-ticker.Chan():
			if c.engine.State() != timer.Idle {
				c.surface.RenderOverlay(c.engine.Elapsed(), c.engine.State())
				c.publish()
			}
		}
	}
}

// Submit hands cmd to the event loop and waits for the result. It is safe to
// call from any goroutine.
func (c *Controller) Submit(ctx context.Context, cmd Command) error {
	req := request{cmd: cmd, reply: make(chan error, 1)}
	select {
	case c.requests <- req:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver queues a focus reading for the event loop. A reading still waiting
// is replaced, since only the latest one matters.
func (c *Controller) Deliver(r window.Reading) {
	for {
		select {
		case c.readings <- r:
			return
		case <-c.done:
			return
		default:
		}
		select {
		case <-c.readings:
		default:
		}
	}
}

// RequestRescan asks the event loop to re-read every folder. Requests that
// arrive while one is pending are merged.
func (c *Controller) RequestRescan() {
	select {
	case c.rescans <- struct{}{}:
	default:
	}
}
