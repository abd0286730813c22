// Package doctor checks a themethumb configuration against the machine it
// will run on: theme search paths, the worker executable, cache placement
// and the preview server address.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/themethumb/internal/config"
	"github.com/mattjoyce/themethumb/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateWorker(r)
	d.validateThemeDirs(r)
	d.validateCache(r)
	d.validateAPI(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateWorker checks that the configured worker can be started.
func (d *Doctor) validateWorker(r *Result) {
	w := d.cfg.Worker
	if w.InProcess {
		d.addWarning(r, "worker", "worker.in_process",
			"worker runs in-process; a crashing renderer takes the host down with it")
		if w.Command != "" {
			d.addWarning(r, "worker", "worker.command", "command is ignored while in_process is set")
		}
	} else if w.Command != "" {
		if _, err := d.lookPath(w.Command); err != nil {
			d.addError(r, "worker", "worker.command", fmt.Sprintf("worker executable %q not found: %v", w.Command, err))
		}
	}

	if w.RenderTimeout == 0 {
		d.addWarning(r, "worker", "worker.render_timeout", "no render timeout; a hung worker is never killed")
	}
	if w.TerminationGrace == 0 {
		d.addWarning(r, "worker", "worker.termination_grace", "grace is 0; the worker is killed without a chance to exit")
	}
}

// validateThemeDirs warns about search paths that do not exist. Missing
// paths are legal since themes may be installed later.
func (d *Doctor) validateThemeDirs(r *Result) {
	check := func(field string, dirs []string) {
		found := 0
		for i, dir := range dirs {
			info, err := os.Stat(dir)
			switch {
			case err != nil:
				d.addWarning(r, "themes", fmt.Sprintf("%s[%d]", field, i), fmt.Sprintf("%s does not exist", dir))
			case !info.IsDir():
				d.addError(r, "themes", fmt.Sprintf("%s[%d]", field, i), fmt.Sprintf("%s is not a directory", dir))
			default:
				found++
			}
		}
		if found == 0 {
			d.addWarning(r, "themes", field, "no search path exists; every render will come back empty")
		}
	}
	check("themes.theme_dirs", d.cfg.Themes.ThemeDirs)
	check("themes.icon_dirs", d.cfg.Themes.IconDirs)
}

// validateCache checks that the cache database can live where configured.
func (d *Doctor) validateCache(r *Result) {
	c := d.cfg.Cache
	if !c.Enabled {
		return
	}
	if info, err := os.Stat(c.Path); err == nil && info.IsDir() {
		d.addError(r, "cache", "cache.path", fmt.Sprintf("%s is a directory", c.Path))
		return
	}
	if err := storage.CheckFilesystem(c.Path); err != nil {
		d.addError(r, "cache", "cache.path", err.Error())
	}
	if c.MaxAge == 0 {
		d.addWarning(r, "cache", "cache.max_age", "max_age is 0; the cache is never pruned")
	}
}

// validateAPI checks preview server settings.
func (d *Doctor) validateAPI(r *Result) {
	if _, _, err := net.SplitHostPort(d.cfg.API.Listen); err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.API.Listen, err))
	}
	if d.cfg.API.LockPath == "" {
		d.addError(r, "api", "api.lock_path", "lock_path is required")
		return
	}
	if info, err := os.Stat(filepath.Dir(d.cfg.API.LockPath)); err == nil && !info.IsDir() {
		d.addError(r, "api", "api.lock_path", fmt.Sprintf("%s is not a directory", filepath.Dir(d.cfg.API.LockPath)))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
