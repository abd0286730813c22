package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/themethumb/internal/api"
	"github.com/mattjoyce/themethumb/internal/events"
	"github.com/mattjoyce/themethumb/internal/lock"
	"github.com/mattjoyce/themethumb/internal/log"
	"github.com/mattjoyce/themethumb/internal/loop"
	"github.com/mattjoyce/themethumb/internal/scheduler"
	"github.com/mattjoyce/themethumb/internal/thumbnail"
)

func printServeHelp() {
	fmt.Println("Usage: themethumb serve [--config PATH] [--listen ADDR]")
	fmt.Println("Run the HTTP preview server in the foreground.")
	fmt.Println("")
	fmt.Println("Endpoints:")
	fmt.Println("  GET /healthz             Worker state and counters")
	fmt.Println("  GET /thumbnail/{kind}    PNG thumbnail (query: widget, color_scheme, wm, icon, font)")
	fmt.Println("  GET /events              Server-sent render events")
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	listen := fs.String("listen", "", "Override api.listen")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return exitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}
	if *listen != "" {
		cfg.API.Listen = *listen
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat, nil)
	logger := log.WithComponent("main")
	logger.Info("themethumb starting", "version", version, "config", cfg.SourcePath)

	pidLock, err := lock.AcquirePIDLock(cfg.API.LockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", cfg.API.LockPath, "error", err)
		return exitError
	}
	defer pidLock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spawner, cleanup := newSpawner(ctx, cfg)
	defer cleanup()

	// The loop outlives ctx so Close can still run on it during shutdown.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	l := loop.New()
	go func() { _ = l.Run(loopCtx) }()

	hub := events.NewHub(256)

	if cfg.Cache.Enabled && cfg.Cache.MaxAge > 0 {
		c, closeCache, err := openCache(ctx, cfg)
		if err != nil {
			logger.Warn("cache maintenance disabled", "error", err)
		} else {
			defer closeCache()
			sched := scheduler.New(cfg.Cache, c, hub, log.WithComponent("scheduler"))
			sched.Start(ctx)
			defer sched.Stop()
		}
	}

	client := thumbnail.New(cfg.Worker, spawner, thumbnail.WithLoop(l), thumbnail.WithPublisher(hub))
	if err := l.Call(ctx, func() { _ = client.Initialize(ctx) }); err != nil {
		logger.Error("render loop unavailable", "error", err)
		return exitError
	}

	server := api.New(api.Config{Listen: cfg.API.Listen}, client, l, hub, log.WithComponent("api"))
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	logger.Info("themethumb running (press Ctrl+C to stop)", "listen", cfg.API.Listen)

	code := exitOK
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		logger.Error("api server failed", "error", err)
		code = exitError
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), client.ShutdownTimeout()+5*time.Second)
	defer cancel()
	if err := l.Call(stopCtx, func() { _ = client.Close() }); err != nil {
		logger.Warn("timed out stopping worker", "error", err)
	} else if err := client.Wait(stopCtx); err != nil {
		logger.Warn("worker did not stop cleanly", "error", err)
	}

	logger.Info("themethumb stopped")
	return code
}
