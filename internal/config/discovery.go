package config

import (
	"os"
	"path/filepath"
)

// EnvConfigPath overrides config discovery when set.
const EnvConfigPath = "THEMETHUMB_CONFIG"

// DiscoverConfigPath returns the first config that exists, in order:
// $THEMETHUMB_CONFIG, ./config.yaml, ~/.config/themethumb/config.yaml,
// /etc/themethumb/config.yaml. It returns "" when none is found, in which
// case the built-in defaults apply.
func DiscoverConfigPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	for _, candidate := range searchPaths() {
		if fileExists(candidate) {
			return candidate
		}
	}
	return ""
}

func searchPaths() []string {
	paths := []string{"config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "themethumb", "config.yaml"))
	}
	return append(paths, filepath.Join("/etc", "themethumb", "config.yaml"))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
