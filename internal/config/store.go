package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bryanchriswhite/refviewer/internal/logger"
	"github.com/google/renameio/v2"
)

// ErrConfigMissing is returned by Load when no session file exists. Callers
// treat it as "use defaults".
var ErrConfigMissing = errors.New("session config not found")

// ErrConfigCorrupt matches any *CorruptError via errors.Is
var ErrConfigCorrupt = errors.New("session config corrupt")

// CorruptError reports a session file that exists but cannot be used
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("session config %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrConfigCorrupt) match
func (e *CorruptError) Is(target error) bool {
	return target == ErrConfigCorrupt
}

// Store loads and saves the session document. It keeps no reference to the
// documents it is given.
type Store struct {
	path string

	mu      sync.Mutex
	corrupt bool // last Load found an unusable file that is still on disk
}

// DefaultPath returns $HOME/.config/refviewer/session.json
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "refviewer", "session.json"), nil
}

// NewStore creates a store for path, or for DefaultPath when path is empty
func NewStore(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &Store{path: path}, nil
}

// Path returns the session file path
func (s *Store) Path() string {
	return s.path
}

// Load reads the session document. On ErrConfigMissing or a *CorruptError the
// returned document is Defaults(), so callers can always continue with it.
func (s *Store) Load() (SessionConfig, error) {
	log := logger.WithComponent("config")

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.setCorrupt(false)
			return Defaults(), ErrConfigMissing
		}
		s.setCorrupt(true)
		return Defaults(), &CorruptError{Path: s.path, Err: err}
	}

	var cfg SessionConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		s.setCorrupt(true)
		return Defaults(), &CorruptError{Path: s.path, Err: err}
	}
	s.setCorrupt(false)

	log.Debug().
		Str("path", s.path).
		Int("folders", len(cfg.Folders)).
		Int("current_index", cfg.CurrentIndex).
		Msg("Session config loaded")

	return cfg, nil
}

// Save atomically replaces the session file with cfg. A reader never sees a
// partial or empty file: the document is written to a temporary file in the
// same directory and renamed over the target.
func (s *Store) Save(cfg SessionConfig) error {
	log := logger.WithComponent("config")

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session config: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.corrupt {
		aside := s.path + ".corrupt"
		if err := os.Rename(s.path, aside); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", s.path).Msg("Failed to move corrupt session config aside")
		} else if err == nil {
			log.Warn().Str("path", aside).Msg("Moved corrupt session config aside")
		}
		s.corrupt = false
	}

	if err := renameio.WriteFile(s.path, data, 0644, renameio.WithTempDir(dir)); err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("Failed to write session config")
		return fmt.Errorf("failed to write session config: %w", err)
	}

	log.Debug().Str("path", s.path).Msg("Session config saved")
	return nil
}

// Reset deletes the session file so the next launch starts from defaults
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session config: %w", err)
	}
	s.corrupt = false
	return nil
}

func (s *Store) setCorrupt(corrupt bool) {
	s.mu.Lock()
	s.corrupt = corrupt
	s.mu.Unlock()
}
