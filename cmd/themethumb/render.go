package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/mattjoyce/themethumb/internal/log"
	"github.com/mattjoyce/themethumb/internal/protocol"
	"github.com/mattjoyce/themethumb/internal/thumbnail"
)

func printRenderHelp() {
	fmt.Println("Usage: themethumb render <kind> --out FILE [--gtk NAME] [--color-scheme SCHEME] [--wm NAME] [--icon NAME] [--font DESC] [--async] [--in-process] [--config PATH]")
	fmt.Println("Render one thumbnail through the worker and write it as PNG.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  Thumbnail written")
	fmt.Println("  1  Usage or I/O error")
	fmt.Println("  2  No thumbnail (theme missing, render failed, or worker unavailable)")
}

func runRender(args []string) int {
	if len(args) < 1 || args[0] == "" || args[0][0] == '-' {
		printRenderHelp()
		return exitError
	}
	kind, err := protocol.ParseKind(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unknown kind %q (want meta, gtk, marco or icon)\n", args[0])
		return exitError
	}

	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	widget := fs.String("gtk", "", "Widget (GTK) theme name")
	colorScheme := fs.String("color-scheme", "", "GTK color scheme, e.g. 'bg_color:#ededed;fg_color:#000000'")
	wm := fs.String("wm", "", "Window decoration (marco) theme name")
	icon := fs.String("icon", "", "Icon theme name")
	font := fs.String("font", "", "Font description, e.g. 'Sans 10'")
	out := fs.String("out", "", "Output PNG path")
	async := fs.Bool("async", false, "Use the asynchronous API")
	inProcess := fs.Bool("in-process", false, "Run the worker on a goroutine instead of a child process")
	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return exitError
	}
	if *out == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		return exitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}
	if *inProcess {
		cfg.Worker.InProcess = true
	}
	// stdout stays clean for scripting.
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat, os.Stderr)

	req := &protocol.Request{
		Kind:        kind,
		WidgetTheme: *widget,
		ColorScheme: *colorScheme,
		WindowTheme: *wm,
		IconTheme:   *icon,
		Font:        *font,
	}

	ctx := context.Background()
	spawner, cleanup := newSpawner(ctx, cfg)
	defer cleanup()
	client := thumbnail.New(cfg.Worker, spawner)

	var img *image.RGBA
	if *async {
		img, err = renderAsync(ctx, client, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Render failed: %v\n", err)
			return exitError
		}
	} else {
		_ = client.Initialize(ctx)
		img = client.RenderSync(ctx, req)
		_ = client.Close()
		if err := waitWorker(client); err != nil {
			log.Warn("worker did not stop cleanly", "error", err)
		}
	}

	if img == nil {
		fmt.Fprintf(os.Stderr, "No thumbnail for %s %q\n", kind, req.Theme())
		return exitNoThumbnail
	}
	if err := writePNG(*out, img); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", *out, err)
		return exitError
	}
	fmt.Printf("%s %dx%d -> %s\n", kind, img.Bounds().Dx(), img.Bounds().Dy(), *out)
	return exitOK
}

// renderAsync drives the client's loop until the callback fires.
func renderAsync(ctx context.Context, client *thumbnail.Client, req *protocol.Request) (*image.RGBA, error) {
	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	l := client.Loop()
	go func() { _ = l.Run(loopCtx) }()

	result := make(chan *image.RGBA, 1)
	err := l.Call(ctx, func() {
		_ = client.Initialize(ctx)
		client.RenderAsync(req, func(img *image.RGBA, _ any) { result <- img }, nil, nil)
	})
	if err != nil {
		return nil, err
	}

	var img *image.RGBA
	select {
	case img = <-result:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := l.Call(closeCtx, func() { _ = client.Close() }); err != nil {
		return img, err
	}
	if err := waitWorker(client); err != nil {
		log.Warn("worker did not stop cleanly", "error", err)
	}
	return img, nil
}

// waitWorker waits for a closed client's worker to exit.
func waitWorker(client *thumbnail.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), client.ShutdownTimeout()+5*time.Second)
	defer cancel()
	return client.Wait(ctx)
}

func writePNG(path string, img image.Image) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
