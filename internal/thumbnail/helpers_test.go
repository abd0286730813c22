package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/themethumb/internal/config"
	"github.com/mattjoyce/themethumb/internal/loop"
	"github.com/mattjoyce/themethumb/internal/protocol"
	"github.com/mattjoyce/themethumb/internal/render"
	"github.com/mattjoyce/themethumb/internal/worker"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRenderer answers every kind with fn.
type fakeRenderer struct {
	fn func(ctx context.Context, req *protocol.Request) (*image.RGBA, error)
}

func (f *fakeRenderer) RenderMeta(ctx context.Context, req *protocol.Request) (*image.RGBA, error) {
	return f.fn(ctx, req)
}

func (f *fakeRenderer) RenderWidget(ctx context.Context, req *protocol.Request) (*image.RGBA, error) {
	return f.fn(ctx, req)
}

func (f *fakeRenderer) RenderWindowDecoration(ctx context.Context, req *protocol.Request) (*image.RGBA, error) {
	return f.fn(ctx, req)
}

func (f *fakeRenderer) RenderIcon(ctx context.Context, req *protocol.Request) (*image.RGBA, error) {
	return f.fn(ctx, req)
}

func swatchSpawner() *InProcessSpawner {
	r := render.NewSwatch(render.AnyRegistry{}, config.Defaults().Thumbnails)
	return &InProcessSpawner{Worker: worker.New(r, config.Defaults().Thumbnails, worker.WithLogger(quietLogger()))}
}

func rendererSpawner(r render.Renderer) *InProcessSpawner {
	return &InProcessSpawner{Worker: worker.New(r, config.Defaults().Thumbnails, worker.WithLogger(quietLogger()))}
}

func testConfig() config.WorkerConfig {
	return config.WorkerConfig{TerminationGrace: 50 * time.Millisecond}
}

// runLoop runs l until the test ends.
func runLoop(t *testing.T, l *loop.Loop) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func newAsyncClient(t *testing.T, cfg config.WorkerConfig, spawner Spawner, opts ...Option) *Client {
	t.Helper()
	l := loop.New()
	opts = append([]Option{WithLoop(l), WithLogger(quietLogger())}, opts...)
	c := New(cfg, spawner, opts...)
	runLoop(t, l)
	onLoop(t, c, func() { _ = c.Initialize(context.Background()) })
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if l.Call(ctx, func() { _ = c.Close() }) == nil {
			_ = c.Wait(ctx)
		}
	})
	return c
}

func onLoop(t *testing.T, c *Client, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Loop().Call(ctx, fn))
}

// result is one resolved async callback.
type result struct {
	tag string
	img *image.RGBA
}

type collector struct {
	ch chan result
}

func newCollector() *collector {
	return &collector{ch: make(chan result, 64)}
}

func (col *collector) callback(img *image.RGBA, data any) {
	col.ch <- result{tag: data.(string), img: img}
}

func (col *collector) next(t *testing.T) result {
	t.Helper()
	select {
	case r := <-col.ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
		return result{}
	}
}

func (col *collector) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case r := <-col.ch:
		t.Fatalf("unexpected callback for %q", r.tag)
	case <-time.After(wait):
	}
}

// gate blocks each render until released and counts concurrent renders.
type gate struct {
	release  chan struct{}
	started  chan string
	active   atomic.Int32
	maxSeen  atomic.Int32
	mu       sync.Mutex
	received []string
}

func newGate() *gate {
	return &gate{release: make(chan struct{}), started: make(chan string, 64)}
}

func (g *gate) render(ctx context.Context, req *protocol.Request) (*image.RGBA, error) {
	n := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		old := g.maxSeen.Load()
		if n <= old || g.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}
	g.mu.Lock()
	g.received = append(g.received, req.Theme())
	g.mu.Unlock()
	g.started <- req.Theme()

	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
}

func (g *gate) waitStarted(t *testing.T) string {
	t.Helper()
	select {
	case theme := <-g.started:
		return theme
	case <-time.After(5 * time.Second):
		t.Fatal("render never started")
		return ""
	}
}

// pipeWorker is a scripted worker on in-memory pipes. It reads requests and
// lets the test decide how to answer.
type pipeWorker struct {
	reqR     *io.PipeReader
	respW    *io.PipeWriter
	writes   atomic.Int64
	requests chan *protocol.Request
}

type countingWriter struct {
	w      io.WriteCloser
	writes *atomic.Int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	cw.writes.Add(1)
	return cw.w.Write(p)
}

func (cw *countingWriter) Close() error {
	return cw.w.Close()
}

type pipeSpawner struct {
	worker *pipeWorker
	spawns atomic.Int32
	err    error
}

func (s *pipeSpawner) Spawn(ctx context.Context) (*Channel, error) {
	s.spawns.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	pw := &pipeWorker{reqR: reqR, respW: respW, requests: make(chan *protocol.Request, 16)}
	s.worker = pw

	go func() {
		dec := protocol.NewRequestDecoder()
		buf := make([]byte, 64)
		for {
			n, err := reqR.Read(buf)
			dec.Feed(buf[:n])
			for {
				req, ok, derr := dec.Next()
				if derr != nil || !ok {
					break
				}
				pw.requests <- req
			}
			if err != nil {
				close(pw.requests)
				return
			}
		}
	}()

	stop := func() error {
		_ = reqR.Close()
		_ = respW.Close()
		return nil
	}
	return NewChannel(&countingWriter{w: reqW, writes: &pw.writes}, respR, stop), nil
}

func (pw *pipeWorker) nextRequest(t *testing.T) *protocol.Request {
	t.Helper()
	select {
	case req, ok := <-pw.requests:
		require.True(t, ok, "request pipe closed")
		return req
	case <-time.After(5 * time.Second):
		t.Fatal("no request arrived")
		return nil
	}
}

func (pw *pipeWorker) respond(t *testing.T, img *image.RGBA) {
	t.Helper()
	require.NoError(t, protocol.EncodeResponse(pw.respW, img))
}

func (pw *pipeWorker) die() {
	_ = pw.respW.CloseWithError(errors.New("worker crashed"))
}

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = byte(i)
	}
	return img
}

func tags(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("r%d", i)
	}
	return out
}
