package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. A directory is accepted
// if it contains config.yaml. Values missing from the file keep their defaults.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath

	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configPath when set, otherwise returns validated defaults.
func LoadOrDefault(configPath string) (*Config, error) {
	if configPath == "" {
		cfg := applyConfigDefaults(Defaults())
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
	return Load(configPath)
}

// loadConfigFile parses path on top of Defaults().
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// applyConfigDefaults fills zero values left by a partial file and expands
// home-relative paths.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Worker.TerminationGrace == 0 {
		cfg.Worker.TerminationGrace = defaults.Worker.TerminationGrace
	}

	sizes := []*Size{&cfg.Thumbnails.Meta, &cfg.Thumbnails.Widget, &cfg.Thumbnails.WindowDecoration, &cfg.Thumbnails.Icon}
	defSizes := []Size{defaults.Thumbnails.Meta, defaults.Thumbnails.Widget, defaults.Thumbnails.WindowDecoration, defaults.Thumbnails.Icon}
	for i, s := range sizes {
		if s.Width == 0 && s.Height == 0 {
			*s = defSizes[i]
		}
	}

	if cfg.Cache.Path == "" {
		cfg.Cache.Path = defaults.Cache.Path
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	if cfg.API.LockPath == "" {
		cfg.API.LockPath = defaults.API.LockPath
	}

	cfg.Themes.ThemeDirs = expandHomeAll(cfg.Themes.ThemeDirs)
	cfg.Themes.IconDirs = expandHomeAll(cfg.Themes.IconDirs)
	cfg.Cache.Path = expandHome(cfg.Cache.Path)
	cfg.API.LockPath = expandHome(cfg.API.LockPath)
	return cfg
}

// interpolateEnv replaces ${VAR} with the environment value. Unknown
// variables are left in place so validation can report them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func expandHomeAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, expandHome(p))
	}
	return out
}
