package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Settings are runtime options. Unlike SessionConfig they are never written
// by the viewer; they come from flags, REFVIEWER_* env vars or settings.yaml.
type Settings struct {
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"`
	LogPretty       bool          `mapstructure:"log_pretty" yaml:"log_pretty"`
	SessionFile     string        `mapstructure:"session_file" yaml:"session_file"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	OverlayInterval time.Duration `mapstructure:"overlay_interval" yaml:"overlay_interval"`
	ScanTimeout     time.Duration `mapstructure:"scan_timeout" yaml:"scan_timeout"`
	WatchFolders    bool          `mapstructure:"watch_folders" yaml:"watch_folders"`
	ControlPort     int           `mapstructure:"control_port" yaml:"control_port"`
	MaxWindowWidth  int           `mapstructure:"max_window_width" yaml:"max_window_width"`
	MaxWindowHeight int           `mapstructure:"max_window_height" yaml:"max_window_height"`
}

// Smallest usable window bound: the 300x200 content floor plus window chrome
const (
	MinWindowWidth  = 316
	MinWindowHeight = 256
)

// EnvPrefix is the prefix for environment overrides, e.g. REFVIEWER_LOG_LEVEL
const EnvPrefix = "REFVIEWER"

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("session_file", "")
	v.SetDefault("poll_interval", 500*time.Millisecond)
	v.SetDefault("overlay_interval", time.Second)
	v.SetDefault("scan_timeout", 2*time.Second)
	v.SetDefault("watch_folders", true)
	v.SetDefault("control_port", 0)
	v.SetDefault("max_window_width", 1280)
	v.SetDefault("max_window_height", 900)
}

// LoadSettings reads the optional settings file configured on v (or
// settings.yaml next to the default session file) and decodes everything.
func LoadSettings(v *viper.Viper) (Settings, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if v.ConfigFileUsed() == "" {
		if sessionPath, err := DefaultPath(); err == nil {
			v.AddConfigPath(filepath.Dir(sessionPath))
		}
		v.SetConfigName("settings")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("failed to read settings: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	return s.normalized(), nil
}

func (s Settings) normalized() Settings {
	if s.PollInterval <= 0 {
		s.PollInterval = 500 * time.Millisecond
	}
	if s.OverlayInterval <= 0 {
		s.OverlayInterval = time.Second
	}
	if s.ScanTimeout <= 0 {
		s.ScanTimeout = 2 * time.Second
	}
	if s.MaxWindowWidth <= 0 {
		s.MaxWindowWidth = 1280
	} else if s.MaxWindowWidth < MinWindowWidth {
		s.MaxWindowWidth = MinWindowWidth
	}
	if s.MaxWindowHeight <= 0 {
		s.MaxWindowHeight = 900
	} else if s.MaxWindowHeight < MinWindowHeight {
		s.MaxWindowHeight = MinWindowHeight
	}
	if s.ControlPort < 0 {
		s.ControlPort = 0
	}
	return s
}
