package config

import (
	"time"

	"github.com/mattjoyce/themethumb/internal/protocol"
)

// Config represents the complete themethumb configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Worker     WorkerConfig     `yaml:"worker"`
	Thumbnails ThumbnailsConfig `yaml:"thumbnails"`
	Themes     ThemesConfig     `yaml:"themes"`
	Cache      CacheConfig      `yaml:"cache"`
	API        APIConfig        `yaml:"api,omitempty"`

	// SourcePath is the absolute path the config was loaded from, if any.
	// The worker process is started with the same file.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// WorkerConfig controls how the render worker is started and supervised.
type WorkerConfig struct {
	// Command is the worker executable. Empty means the running binary.
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	// InProcess runs the worker on a goroutine instead of a child process.
	// Crashes are no longer isolated; intended for tests and debugging.
	InProcess bool `yaml:"in_process,omitempty"`
	// RenderTimeout bounds how long a single response may take. Zero waits
	// forever. When it expires the worker is killed and the channel breaks.
	RenderTimeout    time.Duration `yaml:"render_timeout,omitempty"`
	TerminationGrace time.Duration `yaml:"termination_grace"`
}

// Size is a thumbnail size in pixels.
type Size struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// ThumbnailsConfig holds the off-screen surface size for each kind.
type ThumbnailsConfig struct {
	Meta             Size `yaml:"meta"`
	Widget           Size `yaml:"widget"`
	WindowDecoration Size `yaml:"window_decoration"`
	Icon             Size `yaml:"icon"`
}

// For returns the configured size for kind.
func (t ThumbnailsConfig) For(kind protocol.Kind) Size {
	switch kind {
	case protocol.KindMeta:
		return t.Meta
	case protocol.KindWidget:
		return t.Widget
	case protocol.KindWindowDecoration:
		return t.WindowDecoration
	default:
		return t.Icon
	}
}

// ThemesConfig lists where installed themes are looked up.
type ThemesConfig struct {
	ThemeDirs []string `yaml:"theme_dirs"`
	IconDirs  []string `yaml:"icon_dirs"`
}

// CacheConfig defines the worker-side thumbnail cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Path    string        `yaml:"path"`
	MaxAge  time.Duration `yaml:"max_age"`
	// PruneInterval is how often `serve` deletes entries older than MaxAge.
	// Zero prunes once at startup only.
	PruneInterval time.Duration `yaml:"prune_interval,omitempty"`
	PruneJitter   time.Duration `yaml:"prune_jitter,omitempty"`
}

// APIConfig defines HTTP preview server settings.
type APIConfig struct {
	Listen   string `yaml:"listen"`
	LockPath string `yaml:"lock_path"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "themethumb",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Worker: WorkerConfig{
			TerminationGrace: 5 * time.Second,
		},
		Thumbnails: ThumbnailsConfig{
			Meta:             Size{Width: 128, Height: 96},
			Widget:           Size{Width: 96, Height: 96},
			WindowDecoration: Size{Width: 120, Height: 60},
			Icon:             Size{Width: 96, Height: 96},
		},
		Themes: ThemesConfig{
			ThemeDirs: []string{"~/.themes", "~/.local/share/themes", "/usr/share/themes"},
			IconDirs:  []string{"~/.icons", "~/.local/share/icons", "/usr/share/icons"},
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    "./data/thumbnails.db",
			MaxAge:  7 * 24 * time.Hour,

			PruneInterval: time.Hour,
			PruneJitter:   5 * time.Minute,
		},
		API: APIConfig{
			Listen:   "127.0.0.1:8091",
			LockPath: "./data/themethumb.lock",
		},
	}
}
