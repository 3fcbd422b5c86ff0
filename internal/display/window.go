// Package display implements the viewer window on fyne. It satisfies
// session.Surface and turns menu picks and key presses into session commands.
package display

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"
	"github.com/bryanchriswhite/refviewer/internal/logger"
	"github.com/bryanchriswhite/refviewer/internal/session"
	"github.com/bryanchriswhite/refviewer/internal/timer"
	"github.com/bryanchriswhite/refviewer/internal/window"
	"github.com/rs/zerolog"
)

// Title is the window title when no image is shown
const Title = "refviewer"

const emptyHint = "Right-click to add a reference folder"

// Controller is the part of session.Controller the window drives
type Controller interface {
	Submit(ctx context.Context, cmd session.Command) error
	Status() session.Status
}

// Options configure a Window
type Options struct {
	// MaxSize bounds resize-to-fit; zero means unbounded
	MaxSize image.Point
	// Stacker applies always-on-top; nil disables it
	Stacker window.Stacker
}

// Window is the viewer window
type Window struct {
	app     fyne.App
	win     fyne.Window
	image   *canvas.Image
	overlay *canvas.Text
	badge   *fyne.Container
	hint    *widget.Label
	view    *viewport
	opts    Options
	log     *zerolog.Logger

	mu      sync.Mutex
	ctrl    Controller
	ctx     context.Context
	onTop   bool
	started bool
}

// New creates the window. It is not shown until ShowAndRun.
func New(app fyne.App, opts Options) *Window {
	w := &Window{
		app:  app,
		win:  app.NewWindow(Title),
		opts: opts,
		log:  logger.WithComponent("display"),
		ctx:  context.Background(),
	}

	w.image = &canvas.Image{FillMode: canvas.ImageFillContain}

	w.overlay = canvas.NewText("", color.White)
	w.overlay.TextStyle = fyne.TextStyle{Bold: true, Monospace: true}
	bg := canvas.NewRectangle(color.NRGBA{A: 160})
	w.badge = container.NewStack(bg, container.NewPadded(w.overlay))
	w.badge.Hide()

	w.hint = widget.NewLabel(emptyHint)
	w.hint.Alignment = fyne.TextAlignCenter

	top := container.NewHBox(w.badge, layout.NewSpacer())
	w.view = newViewport(container.NewStack(
		w.image,
		container.NewCenter(w.hint),
		container.NewVBox(top, layout.NewSpacer()),
	), w.showMenu)

	w.win.SetContent(w.view)
	w.win.Resize(fyne.NewSize(DefaultWidth, DefaultHeight))
	w.win.Canvas().SetOnTypedKey(w.typedKey)
	return w
}

// Bind connects the window to the controller it sends commands to
func (w *Window) Bind(ctx context.Context, ctrl Controller) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ctx = ctx
	w.ctrl = ctrl
}

// ShowAndRun shows the window and runs the fyne event loop until the window
// is closed. Always-on-top is re-applied once the window is mapped.
func (w *Window) ShowAndRun() {
	w.app.Lifecycle().SetOnStarted(func() {
		go func() {
			// the window manager needs the window mapped before it takes state hints
			time.Sleep(200 * time.Millisecond)
			w.mu.Lock()
			on := w.onTop
			w.started = true
			w.mu.Unlock()
			if on {
				w.applyAbove(on)
			}
		}()
	})
	w.win.ShowAndRun()
}

// SetOnClosed registers a callback for the window closing
func (w *Window) SetOnClosed(fn func()) {
	w.win.SetOnClosed(fn)
}

// ShowImage displays the image at path
func (w *Window) ShowImage(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", session.ErrImageNotFound, path)
		}
		return err
	}

	w.image.File = path
	w.image.Refresh()
	w.hint.Hide()
	w.win.SetTitle(fmt.Sprintf("%s - %s", filepath.Base(path), Title))
	return nil
}

// ResizeToFit sizes the window for an image of the given pixel size
func (w *Window) ResizeToFit(size image.Point) {
	fit := FitSize(size, w.opts.MaxSize)
	w.win.Resize(fyne.NewSize(float32(fit.X), float32(fit.Y)))
}

// SetAlwaysOnTop keeps the window above others. Before the window is
// mapped the flag is only recorded.
func (w *Window) SetAlwaysOnTop(on bool) error {
	w.mu.Lock()
	w.onTop = on
	started := w.started
	w.mu.Unlock()
	if !started {
		return nil
	}
	return w.applyAbove(on)
}

func (w *Window) applyAbove(on bool) error {
	if w.opts.Stacker == nil {
		return nil
	}
	if err := w.opts.Stacker.SetAbove(on); err != nil {
		w.log.Debug().Err(err).Bool("on", on).Msg("Always-on-top not applied")
		return err
	}
	return nil
}

// RenderOverlay draws the elapsed time in the top-left corner
func (w *Window) RenderOverlay(elapsed time.Duration, state timer.State) {
	if state == timer.Idle {
		w.badge.Hide()
		return
	}
	w.overlay.Text = OverlayText(elapsed, state)
	w.overlay.Refresh()
	w.badge.Show()
}

// ShowEmpty displays the no-image hint
func (w *Window) ShowEmpty() {
	w.image.File = ""
	w.image.Refresh()
	w.hint.Show()
	w.win.SetTitle(Title)
}

// OverlayText renders the overlay label for a timer reading
func OverlayText(elapsed time.Duration, state timer.State) string {
	text := timer.FormatElapsed(elapsed)
	switch state {
	case timer.PausedByUser:
		return text + " paused"
	case timer.PausedByFocus:
		return text + " waiting"
	default:
		return text
	}
}

func (w *Window) controller() (context.Context, Controller) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctx, w.ctrl
}

// submit sends cmd without blocking the fyne event loop. User-correctable
// failures are shown in a dialog.
func (w *Window) submit(cmd session.Command) {
	ctx, ctrl := w.controller()
	if ctrl == nil {
		return
	}
	go func() {
		err := ctrl.Submit(ctx, cmd)
		if err == nil || errors.Is(err, session.ErrStopped) || errors.Is(err, context.Canceled) {
			return
		}
		w.log.Warn().Err(err).Str("command", cmd.Name()).Msg("Command failed")
		dialog.ShowError(err, w.win)
	}()
}

func (w *Window) typedKey(ev *fyne.KeyEvent) {
	switch ev.Name {
	case fyne.KeyRight, fyne.KeyDown, fyne.KeyPageDown:
		w.submit(session.NextImage{})
	case fyne.KeyLeft, fyne.KeyUp, fyne.KeyPageUp:
		w.submit(session.PreviousImage{})
	case fyne.KeySpace:
		w.submit(session.ToggleTimer{})
	case fyne.KeyT:
		w.submit(session.ToggleAlwaysOnTop{})
	case fyne.KeyR:
		w.submit(session.ResetTimer{})
	}
}

func (w *Window) showMenu(pos fyne.Position) {
	widget.ShowPopUpMenuAtPosition(w.menu(), w.win.Canvas(), pos)
}

// menu builds the context menu from the current status
func (w *Window) menu() *fyne.Menu {
	var st session.Status
	if _, ctrl := w.controller(); ctrl != nil {
		st = ctrl.Status()
	}

	timerLabel := "Start Timer"
	if st.TimerState() == timer.Running || st.TimerState() == timer.PausedByFocus {
		timerLabel = "Pause Timer"
	}

	remove := fyne.NewMenuItem("Remove Folder", nil)
	if len(st.Folders) == 0 {
		remove.Disabled = true
	} else {
		items := make([]*fyne.MenuItem, 0, len(st.Folders))
		for _, folder := range st.Folders {
			items = append(items, fyne.NewMenuItem(folder, func() {
				w.submit(session.RemoveFolder{Path: folder})
			}))
		}
		remove.ChildMenu = fyne.NewMenu("", items...)
	}

	next := fyne.NewMenuItem("Next Image", func() { w.submit(session.NextImage{}) })
	prev := fyne.NewMenuItem("Previous Image", func() { w.submit(session.PreviousImage{}) })
	next.Disabled = st.ImageCount < 2
	prev.Disabled = st.ImageCount < 2

	toggle := fyne.NewMenuItem(timerLabel, func() { w.submit(session.ToggleTimer{}) })
	toggle.Disabled = !st.HasImage()

	onTop := fyne.NewMenuItem("Always on Top", func() { w.submit(session.ToggleAlwaysOnTop{}) })
	onTop.Checked = st.AlwaysOnTop

	trackLabel := "Track Process..."
	if st.Tracked != "" {
		trackLabel = fmt.Sprintf("Track Process (%s)...", st.Tracked)
	}
	track := fyne.NewMenuItem(trackLabel, func() { w.promptTracked(st.Tracked, st.Foreground) })
	untrack := fyne.NewMenuItem("Stop Tracking", func() { w.submit(session.ClearTrackedProcess{}) })
	untrack.Disabled = st.Tracked == ""

	return fyne.NewMenu("",
		fyne.NewMenuItem("Add Folder...", w.promptFolder),
		remove,
		fyne.NewMenuItem("Rescan Folders", func() { w.submit(session.Rescan{}) }),
		fyne.NewMenuItemSeparator(),
		next,
		prev,
		fyne.NewMenuItemSeparator(),
		toggle,
		fyne.NewMenuItem("Reset Timer", func() { w.submit(session.ResetTimer{}) }),
		track,
		untrack,
		fyne.NewMenuItemSeparator(),
		onTop,
		fyne.NewMenuItem("Quit", w.app.Quit),
	)
}

func (w *Window) promptFolder() {
	dialog.ShowFolderOpen(func(uri fyne.ListableURI, err error) {
		if err != nil {
			w.log.Warn().Err(err).Msg("Folder dialog failed")
			return
		}
		if uri == nil {
			return
		}
		w.submit(session.AddFolder{Path: uri.Path()})
	}, w.win)
}

func (w *Window) promptTracked(current, foreground string) {
	entry := widget.NewEntry()
	entry.SetText(current)
	entry.SetPlaceHolder("e.g. krita or photoshop.exe")

	items := []*widget.FormItem{widget.NewFormItem("Process", entry)}
	if foreground != "" {
		items = append(items, widget.NewFormItem("Last focused", widget.NewLabel(foreground)))
	}

	dialog.ShowForm("Track Process", "Track", "Cancel", items, func(ok bool) {
		if ok {
			w.submit(session.SetTrackedProcess{Process: entry.Text})
		}
	}, w.win)
}

// viewport fills the window and opens the context menu on secondary tap
type viewport struct {
	widget.BaseWidget
	content fyne.CanvasObject
	onMenu  func(fyne.Position)
}

func newViewport(content fyne.CanvasObject, onMenu func(fyne.Position)) *viewport {
	v := &viewport{content: content, onMenu: onMenu}
	v.ExtendBaseWidget(v)
	return v
}

func (v *viewport) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(v.content)
}

func (v *viewport) TappedSecondary(ev *fyne.PointEvent) {
	if v.onMenu != nil {
		v.onMenu(ev.AbsolutePosition)
	}
}
