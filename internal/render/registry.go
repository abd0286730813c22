package render

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/themethumb/internal/protocol"
)

// ThemeInfo describes an installed theme.
type ThemeInfo struct {
	Name string
	Dir  string
	Kind protocol.Kind
}

// Registry resolves theme names to installed themes.
type Registry interface {
	Lookup(kind protocol.Kind, name string) (ThemeInfo, bool)
}

// markers lists the files or directories whose presence means a theme
// directory provides the given kind.
var markers = map[protocol.Kind][]string{
	protocol.KindMeta:             {"index.theme"},
	protocol.KindWidget:           {"gtk-3.0", "gtk-2.0"},
	protocol.KindWindowDecoration: {"metacity-1"},
	protocol.KindIcon:             {"index.theme"},
}

// DirRegistry looks themes up in XDG-style search paths. Earlier
// directories win. It only checks for presence; it does not parse themes.
type DirRegistry struct {
	ThemeDirs []string
	IconDirs  []string
}

func NewDirRegistry(themeDirs, iconDirs []string) *DirRegistry {
	return &DirRegistry{ThemeDirs: themeDirs, IconDirs: iconDirs}
}

func (r *DirRegistry) Lookup(kind protocol.Kind, name string) (ThemeInfo, bool) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return ThemeInfo{}, false
	}

	dirs := r.ThemeDirs
	if kind == protocol.KindIcon {
		dirs = r.IconDirs
	}

	for _, base := range dirs {
		dir := filepath.Join(base, name)
		for _, marker := range markers[kind] {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return ThemeInfo{Name: name, Dir: dir, Kind: kind}, true
			}
		}
	}
	return ThemeInfo{}, false
}

// AnyRegistry accepts every non-empty theme name.
type AnyRegistry struct{}

func (AnyRegistry) Lookup(kind protocol.Kind, name string) (ThemeInfo, bool) {
	if name == "" {
		return ThemeInfo{}, false
	}
	return ThemeInfo{Name: name, Kind: kind}, true
}
