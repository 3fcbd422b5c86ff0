// Package collection maintains the ordered set of reference folders, the image
// list derived from them and the position of the image being shown.
package collection

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bryanchriswhite/refviewer/internal/logger"
	"github.com/jonboulle/clockwork"
)

// NoImage is the index when the image list is empty. It is distinct from 0.
const NoImage = -1

// Manager owns the folder set, the derived image list and the current index.
// It is not safe for concurrent use; the session controller is its only owner.
type Manager struct {
	folders     []string
	images      []string
	index       int
	scanTimeout time.Duration
	clock       clockwork.Clock
	warnings    []ScanWarning
}

// Option configures a Manager
type Option func(*Manager)

// WithScanTimeout bounds each folder read
func WithScanTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.scanTimeout = d
		}
	}
}

// WithClock sets the clock that bounds folder reads
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewManager creates an empty collection
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		folders:     []string{},
		images:      []string{},
		index:       NoImage,
		scanTimeout: DefaultScanTimeout,
		clock:       clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Normalize returns the absolute, cleaned form of a folder path
func Normalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// AddFolder appends path to the folder set and rescans. Adding a folder that
// is already present is a no-op and reports added=false.
func (m *Manager) AddFolder(path string) (bool, error) {
	norm, err := Normalize(path)
	if err != nil {
		return false, &InvalidPathError{Path: path, Err: err}
	}

	info, err := os.Stat(norm)
	if err != nil {
		return false, &InvalidPathError{Path: norm, Err: err}
	}
	if !info.IsDir() {
		return false, &InvalidPathError{Path: norm, Err: fmt.Errorf("not a directory")}
	}

	if m.HasFolder(norm) {
		return false, nil
	}

	m.folders = append(m.folders, norm)
	m.rescan()
	return true, nil
}

// RemoveFolder drops path and every image sourced from it. Removing an absent
// folder is a no-op.
func (m *Manager) RemoveFolder(path string) bool {
	norm, err := Normalize(path)
	if err != nil {
		norm = path
	}

	for i, folder := range m.folders {
		if folder == norm {
			m.folders = append(m.folders[:i:i], m.folders[i+1:]...)
			m.rescan()
			return true
		}
	}
	return false
}

// HasFolder reports whether the normalized path is in the folder set
func (m *Manager) HasFolder(path string) bool {
	for _, folder := range m.folders {
		if folder == path {
			return true
		}
	}
	return false
}

// Restore replaces the folder set and index from a persisted session. Folders
// are kept even when they cannot be read right now.
func (m *Manager) Restore(folders []string, index int) {
	m.folders = make([]string, 0, len(folders))
	for _, folder := range folders {
		norm, err := Normalize(folder)
		if err != nil {
			continue
		}
		if !m.HasFolder(norm) {
			m.folders = append(m.folders, norm)
		}
	}
	m.index = index
	m.rescan()
}

// Rescan re-derives the image list from the current folder set
func (m *Manager) Rescan() {
	m.rescan()
}

func (m *Manager) rescan() {
	log := logger.WithComponent("collection")

	images := make([]string, 0, len(m.images))
	warnings := make([]ScanWarning, 0)

	for _, folder := range m.folders {
		found, err := scanFolder(folder, m.scanTimeout, m.clock)
		if err != nil {
			w := ScanWarning{Folder: folder, Err: err}
			warnings = append(warnings, w)
			log.Warn().Err(err).Str("folder", folder).Msg("Skipping unreadable folder")
			continue
		}
		images = append(images, found...)
	}

	m.images = images
	m.warnings = warnings
	m.clamp()

	log.Debug().
		Int("folders", len(m.folders)).
		Int("images", len(m.images)).
		Int("index", m.index).
		Msg("Image list rebuilt")
}

func (m *Manager) clamp() {
	switch {
	case len(m.images) == 0:
		m.index = NoImage
	case m.index < 0:
		m.index = 0
	case m.index >= len(m.images):
		m.index = len(m.images) - 1
	}
}

// Next advances with wraparound. It returns false when nothing moved: an
// empty list or a single image.
func (m *Manager) Next() bool {
	if len(m.images) <= 1 {
		return false
	}
	m.index = (m.index + 1) % len(m.images)
	return true
}

// Previous retreats with wraparound, like Next
func (m *Manager) Previous() bool {
	if len(m.images) <= 1 {
		return false
	}
	m.index = (m.index - 1 + len(m.images)) % len(m.images)
	return true
}

// Current returns the image at the current index, or false for NoImage
func (m *Manager) Current() (string, bool) {
	if m.index == NoImage {
		return "", false
	}
	return m.images[m.index], true
}

// Index returns the current index, NoImage when the list is empty
func (m *Manager) Index() int {
	return m.index
}

// Len returns the number of images
func (m *Manager) Len() int {
	return len(m.images)
}

// Folders returns a copy of the folder set in insertion order
func (m *Manager) Folders() []string {
	return append([]string{}, m.folders...)
}

// Images returns a copy of the image list
func (m *Manager) Images() []string {
	return append([]string{}, m.images...)
}

// Warnings returns the folders skipped by the most recent scan
func (m *Manager) Warnings() []ScanWarning {
	return append([]ScanWarning{}, m.warnings...)
}
