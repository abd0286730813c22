package config

import (
	"fmt"

	"github.com/mattjoyce/themethumb/internal/protocol"
)

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.Worker.RenderTimeout < 0 {
		return fmt.Errorf("worker.render_timeout must not be negative")
	}
	if cfg.Worker.TerminationGrace < 0 {
		return fmt.Errorf("worker.termination_grace must not be negative")
	}
	if err := checkUnresolved("worker.command", cfg.Worker.Command); err != nil {
		return err
	}

	for _, kind := range []protocol.Kind{protocol.KindMeta, protocol.KindWidget, protocol.KindWindowDecoration, protocol.KindIcon} {
		s := cfg.Thumbnails.For(kind)
		if s.Width <= 0 || s.Height <= 0 {
			return fmt.Errorf("thumbnails.%s: width and height must be positive (got %dx%d)", kind, s.Width, s.Height)
		}
		if s.Width > protocol.MaxDimension || s.Height > protocol.MaxDimension {
			return fmt.Errorf("thumbnails.%s: size %dx%d exceeds %d", kind, s.Width, s.Height, protocol.MaxDimension)
		}
	}

	if cfg.Cache.Enabled {
		if cfg.Cache.Path == "" {
			return fmt.Errorf("cache.path is required when the cache is enabled")
		}
		if err := checkUnresolved("cache.path", cfg.Cache.Path); err != nil {
			return err
		}
		if cfg.Cache.MaxAge < 0 {
			return fmt.Errorf("cache.max_age must not be negative")
		}
		if cfg.Cache.PruneInterval < 0 || cfg.Cache.PruneJitter < 0 {
			return fmt.Errorf("cache.prune_interval and cache.prune_jitter must not be negative")
		}
	}

	for i, dir := range cfg.Themes.ThemeDirs {
		if err := checkUnresolved(fmt.Sprintf("themes.theme_dirs[%d]", i), dir); err != nil {
			return err
		}
	}
	for i, dir := range cfg.Themes.IconDirs {
		if err := checkUnresolved(fmt.Sprintf("themes.icon_dirs[%d]", i), dir); err != nil {
			return err
		}
	}
	return nil
}

func checkUnresolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}
