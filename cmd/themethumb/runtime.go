package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mattjoyce/themethumb/internal/cache"
	"github.com/mattjoyce/themethumb/internal/config"
	"github.com/mattjoyce/themethumb/internal/log"
	"github.com/mattjoyce/themethumb/internal/render"
	"github.com/mattjoyce/themethumb/internal/storage"
	"github.com/mattjoyce/themethumb/internal/thumbnail"
	"github.com/mattjoyce/themethumb/internal/worker"
)

// loadConfig loads configPath, or the discovered config, or defaults.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		configPath = config.DiscoverConfigPath()
	}
	return config.LoadOrDefault(configPath)
}

// buildWorker wires the renderer and, when enabled, the cache. A cache that
// cannot be opened is logged and skipped.
func buildWorker(ctx context.Context, cfg *config.Config) (*worker.Worker, func()) {
	logger := log.WithComponent("worker")
	registry := render.NewDirRegistry(cfg.Themes.ThemeDirs, cfg.Themes.IconDirs)
	renderer := render.NewSwatch(registry, cfg.Thumbnails)

	opts := []worker.Option{worker.WithLogger(logger)}
	closeFn := func() {}
	if cfg.Cache.Enabled {
		db, err := storage.OpenSQLite(ctx, cfg.Cache.Path)
		if err != nil {
			logger.Warn("thumbnail cache disabled", "path", cfg.Cache.Path, "error", err)
		} else {
			opts = append(opts, worker.WithCache(cache.New(db)))
			closeFn = func() { _ = db.Close() }
		}
	}
	return worker.New(renderer, cfg.Thumbnails, opts...), closeFn
}

// newSpawner returns the spawner the config asks for. By default the
// running binary is re-executed with the hidden worker command.
func newSpawner(ctx context.Context, cfg *config.Config) (thumbnail.Spawner, func()) {
	if cfg.Worker.InProcess {
		w, closeFn := buildWorker(ctx, cfg)
		return &thumbnail.InProcessSpawner{Worker: w}, closeFn
	}

	command, args := cfg.Worker.Command, cfg.Worker.Args
	if command == "" {
		exe, err := os.Executable()
		if err != nil {
			log.WithComponent("main").Error("cannot locate own executable", "error", err)
		}
		command = exe
		args = []string{"worker"}
		if cfg.SourcePath != "" {
			args = append(args, "--config", cfg.SourcePath)
		}
	}
	return &thumbnail.ExecSpawner{Command: command, Args: args}, func() {}
}

func openCache(ctx context.Context, cfg *config.Config) (*cache.Cache, func(), error) {
	db, err := storage.OpenSQLite(ctx, cfg.Cache.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache %s: %w", cfg.Cache.Path, err)
	}
	return cache.New(db), func() { _ = db.Close() }, nil
}
