package worker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/mattjoyce/themethumb/internal/cache"
	"github.com/mattjoyce/themethumb/internal/config"
	"github.com/mattjoyce/themethumb/internal/log"
	"github.com/mattjoyce/themethumb/internal/protocol"
	"github.com/mattjoyce/themethumb/internal/render"
)

// readChunk is the size of each read from the request pipe.
const readChunk = 4096

// Worker serves thumbnail requests over a pair of byte streams.
type Worker struct {
	renderer render.Renderer
	sizes    config.ThumbnailsConfig
	cache    *cache.Cache
	logger   *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithCache enables the thumbnail cache.
func WithCache(c *cache.Cache) Option {
	return func(w *Worker) { w.cache = c }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// New creates a Worker that renders with r. sizes is only used to key cache
// entries; the renderer decides the actual surface size.
func New(r render.Renderer, sizes config.ThumbnailsConfig, opts ...Option) *Worker {
	w := &Worker{
		renderer: r,
		sizes:    sizes,
		logger:   log.WithComponent("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Serve processes requests from in until it reaches EOF or ctx is done.
func (w *Worker) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	w.logger.Info("worker started")
	defer w.logger.Info("worker stopped")

	dec := protocol.NewRequestDecoder()
	buf := make([]byte, readChunk)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, rerr := in.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			if err := w.drain(ctx, dec, out); err != nil {
				return err
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				if dec.Buffered() > 0 {
					w.logger.Warn("request pipe closed mid-request", "buffered", dec.Buffered())
				}
				return nil
			}
			return fmt.Errorf("failed to read request: %w", rerr)
		}
	}
}

// drain answers every complete request currently held by dec.
func (w *Worker) drain(ctx context.Context, dec *protocol.RequestDecoder, out io.Writer) error {
	for {
		req, ok, err := dec.Next()
		if err != nil {
			// The malformed frame was consumed; the client still waits for an answer.
			w.logger.Warn("discarding malformed request", "error", err)
			if werr := protocol.EncodeResponse(out, nil); werr != nil {
				return werr
			}
			continue
		}
		if !ok {
			return nil
		}

		img := w.handle(ctx, req)
		if err := protocol.EncodeResponse(out, img); err != nil {
			return err
		}
	}
}

// handle renders one request. Every failure collapses to a nil image.
func (w *Worker) handle(ctx context.Context, req *protocol.Request) *image.RGBA {
	logger := w.logger.With("kind", req.Kind.String(), "theme", req.Theme())

	key := ""
	if w.cache != nil {
		size := w.sizes.For(req.Kind)
		k, err := cache.Key(req, size.Width, size.Height)
		if err != nil {
			logger.Warn("cache key failed", "error", err)
		} else {
			key = k
			img, err := w.cache.Get(ctx, key)
			if err != nil {
				logger.Warn("cache lookup failed", "error", err)
			} else if img != nil {
				logger.Debug("cache hit")
				return img
			}
		}
	}

	img, err := w.render(ctx, req)
	if err != nil {
		logger.Error("render failed", "error", err)
		return nil
	}
	if img == nil {
		logger.Debug("no thumbnail for theme")
		return nil
	}
	logger.Debug("rendered", "width", img.Bounds().Dx(), "height", img.Bounds().Dy())

	if key != "" {
		if err := w.cache.Put(ctx, key, req, img); err != nil {
			logger.Warn("cache store failed", "error", err)
		}
	}
	return img
}

func (w *Worker) render(ctx context.Context, req *protocol.Request) (img *image.RGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("renderer panic: %v", r)
		}
	}()
	return render.Dispatch(ctx, w.renderer, req)
}
