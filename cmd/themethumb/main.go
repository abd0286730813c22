package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Exit codes.
const (
	exitOK          = 0
	exitError       = 1
	exitNoThumbnail = 2
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return exitError
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	// --- NOUNS ---
	case "config":
		return runConfigNoun(args)
	case "cache":
		return runCacheNoun(args)

	// --- VERBS ---
	case "render":
		if hasHelpFlag(args) {
			printRenderHelp()
			return exitOK
		}
		return runRender(args)
	case "serve":
		if hasHelpFlag(args) {
			printServeHelp()
			return exitOK
		}
		return runServe(args)
	case "watch":
		return runWatch(args)
	case "worker":
		// Started by the client over private pipes; not meant for humans.
		return runWorker(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return exitOK

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return exitError
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return exitError
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: themethumb version [--json]")
		return exitError
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return exitError
		}
		fmt.Println(string(data))
		return exitOK
	}

	fmt.Printf("themethumb %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return exitOK
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`themethumb - isolated thumbnail renderer for desktop themes

Usage:
  themethumb <command> [flags]
  themethumb <noun> <action> [flags]

Commands:
  render <kind>     Render one thumbnail to a PNG file
  serve             Run the HTTP preview server
  watch             Monitor a running server in the terminal
  version           Show version information

Config Commands:
  config check      Validate the configuration and the environment
  config show       Print the effective configuration

Cache Commands:
  cache prune       Delete cached thumbnails older than max_age
  cache stats       Show the number of cached thumbnails

Kinds:
  meta, gtk (widget), marco (window-decoration, wm), icon

Use 'themethumb <command> --help' for command flags.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}
