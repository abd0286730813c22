package api

import (
	"bufio"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/themethumb/internal/config"
	"github.com/mattjoyce/themethumb/internal/events"
	"github.com/mattjoyce/themethumb/internal/loop"
	"github.com/mattjoyce/themethumb/internal/protocol"
	"github.com/mattjoyce/themethumb/internal/queue"
	"github.com/mattjoyce/themethumb/internal/render"
	"github.com/mattjoyce/themethumb/internal/thumbnail"
	"github.com/mattjoyce/themethumb/internal/worker"
)

// fakeThumbnailer resolves renders on the loop without a worker.
type fakeThumbnailer struct {
	l      *loop.Loop
	img    *image.RGBA
	hold   bool
	stats  thumbnail.Stats
	lastRq *protocol.Request
}

func (f *fakeThumbnailer) RenderAsync(req *protocol.Request, cb queue.Callback, data any, cleanup queue.Cleanup) string {
	f.lastRq = req
	if !f.hold {
		img := f.img
		f.l.Post(func() { cb(img, data) })
	}
	return "render-1"
}

func (f *fakeThumbnailer) Stats() thumbnail.Stats {
	return f.stats
}

func newTestServer(t *testing.T, thumbs Thumbnailer, l *loop.Loop, hub *events.Hub, wait time.Duration) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{Listen: "127.0.0.1:0", RenderWait: wait}, thumbs, l, hub, logger).Handler()
}

func TestHandleHealthz(t *testing.T) {
	l := loop.New()
	f := &fakeThumbnailer{l: l, stats: thumbnail.Stats{Initialized: true, Rendered: 3}}
	h := newTestServer(t, f, l, nil, time.Second)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp HealthzResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, uint64(3), resp.Thumbnails.Rendered)

	f.stats.Broken = true
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestHandleThumbnail(t *testing.T) {
	l := loop.New()
	f := &fakeThumbnailer{l: l, img: image.NewRGBA(image.Rect(0, 0, 5, 4))}
	h := newTestServer(t, f, l, nil, time.Second)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/thumbnail/gtk?widget=Clearlooks&color_scheme=bg_color%3A%23ededed&font=Sans+10", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, "render-1", rr.Header().Get("X-Render-ID"))

	img, err := png.Decode(rr.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 5, 4), img.Bounds())
	assert.Equal(t, &protocol.Request{
		Kind:        protocol.KindWidget,
		WidgetTheme: "Clearlooks",
		ColorScheme: "bg_color:#ededed",
		Font:        "Sans 10",
	}, f.lastRq)
}

func TestHandleThumbnailErrors(t *testing.T) {
	l := loop.New()
	f := &fakeThumbnailer{l: l}
	h := newTestServer(t, f, l, nil, 50*time.Millisecond)

	tests := []struct {
		name string
		path string
		hold bool
		code int
	}{
		{"unknown kind", "/thumbnail/cursor?icon=x", false, http.StatusNotFound},
		{"no thumbnail", "/thumbnail/icon?icon=Missing", false, http.StatusNoContent},
		{"nul in field", "/thumbnail/icon?icon=a%00b", false, http.StatusBadRequest},
		{"timeout", "/thumbnail/marco?wm=Slow", true, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, l.Call(context.Background(), func() { f.hold = tt.hold }))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, rr.Code)
		})
	}
}

func TestThumbnailThroughInProcessWorker(t *testing.T) {
	l := loop.New()
	hub := events.NewHub(16)
	sizes := config.Defaults().Thumbnails
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	w := worker.New(render.NewSwatch(render.AnyRegistry{}, sizes), sizes, worker.WithLogger(logger))
	c := thumbnail.New(config.WorkerConfig{}, &thumbnail.InProcessSpawner{Worker: w},
		thumbnail.WithLoop(l), thumbnail.WithPublisher(hub), thumbnail.WithLogger(logger))
	h := newTestServer(t, c, l, hub, 5*time.Second)
	require.NoError(t, l.Call(context.Background(), func() { _ = c.Initialize(context.Background()) }))
	t.Cleanup(func() { _ = l.Call(context.Background(), func() { _ = c.Close() }) })

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/thumbnail/marco?wm=TraditionalOk", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	img, err := png.Decode(rr.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 120, 60), img.Bounds())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/thumbnail/icon", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestHandleEventsReplaysBacklog(t *testing.T) {
	l := loop.New()
	hub := events.NewHub(16)
	hub.Publish(events.TypeRendered, events.Render{RenderID: "r1", Theme: "Clearlooks"})
	hub.Publish(events.TypeBroken, events.Render{Error: "worker crashed"})

	srv := httptest.NewServer(newTestServer(t, &fakeThumbnailer{l: l}, l, hub, time.Second))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", "1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	require.Len(t, lines, 3)
	assert.Equal(t, "id: 2", lines[0])
	assert.Equal(t, "event: "+events.TypeBroken, lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "data: "))
	assert.Contains(t, lines[2], "worker crashed")
}

func TestParseTypeFilter(t *testing.T) {
	all := parseTypeFilter("")
	assert.True(t, all(events.TypeQueued))
	assert.True(t, all("cache.pruned"))

	match := parseTypeFilter(" thumbnail.rendered, cache. ,")
	assert.True(t, match(events.TypeRendered))
	assert.True(t, match("cache.pruned"))
	assert.False(t, match(events.TypeQueued))
	assert.False(t, match(events.TypeBroken))
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, int64(0), parseLastEventID(""))
	assert.Equal(t, int64(0), parseLastEventID("-3"))
	assert.Equal(t, int64(0), parseLastEventID("abc"))
	assert.Equal(t, int64(42), parseLastEventID("42"))
}
