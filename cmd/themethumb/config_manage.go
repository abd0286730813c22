package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/themethumb/internal/doctor"
)

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return exitError
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return exitOK
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "show":
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return exitError
	}
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: themethumb config <action> [--config PATH]")
	fmt.Fprintln(w, "Actions: check [--json], show")
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output the report as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return exitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return exitError
	}

	result := doctor.New(cfg).Validate()
	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
			return exitError
		}
		fmt.Println(out)
	} else {
		source := cfg.SourcePath
		if source == "" {
			source = "(built-in defaults)"
		}
		fmt.Printf("Config: %s\n", source)
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return exitError
	}
	return exitOK
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("config show", flag.ContinueOnError)
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
	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return exitError
	}
	fmt.Print(string(data))
	return exitOK
}

func runCacheNoun(args []string) int {
	if len(args) < 1 {
		printCacheNounHelp(os.Stderr)
		return exitError
	}
	if isHelpToken(args[0]) {
		printCacheNounHelp(os.Stdout)
		return exitOK
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "prune":
		return runCachePrune(actionArgs)
	case "stats":
		return runCacheStats(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown cache action: %s\n", action)
		return exitError
	}
}

func printCacheNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: themethumb cache <action> [--config PATH]")
	fmt.Fprintln(w, "Actions: prune [--max-age DURATION], stats")
}

func runCachePrune(args []string) int {
	fs := flag.NewFlagSet("cache prune", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	maxAge := fs.Duration("max-age", 0, "Override cache.max_age")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return exitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}
	age := cfg.Cache.MaxAge
	if *maxAge > 0 {
		age = *maxAge
	}
	if age <= 0 {
		fmt.Fprintln(os.Stderr, "No max age configured; pass --max-age")
		return exitError
	}

	ctx := context.Background()
	c, closeFn, err := openCache(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}
	defer closeFn()

	n, err := c.Prune(ctx, age)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Prune failed: %v\n", err)
		return exitError
	}
	fmt.Printf("Pruned %d thumbnail(s) unused for %s\n", n, age)
	return exitOK
}

func runCacheStats(args []string) int {
	fs := flag.NewFlagSet("cache stats", flag.ContinueOnError)
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

	ctx := context.Background()
	c, closeFn, err := openCache(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}
	defer closeFn()

	n, err := c.Len(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
		return exitError
	}
	fmt.Printf("cache: %s\nentries: %d\nmax_age: %s\n", cfg.Cache.Path, n, cfg.Cache.MaxAge)
	return exitOK
}
