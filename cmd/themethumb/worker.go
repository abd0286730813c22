package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/mattjoyce/themethumb/internal/log"
)

// runWorker serves render requests on stdin/stdout until stdin closes.
func runWorker(args []string) int {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return exitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}

	// stdout is the response pipe. Anything else that writes to os.Stdout
	// would corrupt frames, so point it at stderr.
	responses := os.Stdout
	os.Stdout = os.Stderr
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat, os.Stderr)

	// SIGTERM keeps its default action. Serve spends most of its life blocked
	// reading stdin, where a cancelled context never reaches it, and the
	// parent relies on SIGTERM to stop a wedged worker.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	w, cleanup := buildWorker(ctx, cfg)
	defer cleanup()

	if err := w.Serve(ctx, os.Stdin, responses); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker failed", "error", err)
		return exitError
	}
	return exitOK
}
