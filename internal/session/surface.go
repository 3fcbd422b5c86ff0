package session

import (
	"errors"
	"image"
	"time"

	"github.com/bryanchriswhite/refviewer/internal/timer"
)

// ErrImageNotFound is returned by a Surface when the image file has vanished
// between indexing and display
var ErrImageNotFound = errors.New("image not found")

// Surface is the window the controller drives. Implementations are called
// from the controller's goroutine only.
type Surface interface {
	// ShowImage displays the image at path, or returns ErrImageNotFound
	ShowImage(path string) error
	// ResizeToFit sizes the window for an image of the given pixel size
	ResizeToFit(size image.Point)
	// SetAlwaysOnTop keeps the window above others
	SetAlwaysOnTop(on bool) error
	// RenderOverlay draws the elapsed time and timer state
	RenderOverlay(elapsed time.Duration, state timer.State)
	// ShowEmpty displays the no-image state
	ShowEmpty()
}

// NopSurface discards every display call. It is used by headless commands.
type NopSurface struct{}

func (NopSurface) ShowImage(string) error                   { return nil }
func (NopSurface) ResizeToFit(image.Point)                  {}
func (NopSurface) SetAlwaysOnTop(bool) error                { return nil }
func (NopSurface) RenderOverlay(time.Duration, timer.State) {}
func (NopSurface) ShowEmpty()                               {}
