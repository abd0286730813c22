package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/themethumb/internal/config"
	"github.com/mattjoyce/themethumb/internal/events"
	"github.com/mattjoyce/themethumb/internal/log"
	"github.com/mattjoyce/themethumb/internal/loop"
	"github.com/mattjoyce/themethumb/internal/protocol"
	"github.com/mattjoyce/themethumb/internal/queue"
)

// defaultGrace is used when the config leaves termination_grace unset.
const defaultGrace = 5 * time.Second

var (
	ErrBroken     = errors.New("thumbnail channel broken")
	ErrMixedModes = errors.New("synchronous render refused after asynchronous use")
	ErrClosed     = errors.New("thumbnail client closed")
)

// Stats is a snapshot of the client's state and counters.
type Stats struct {
	Initialized bool   `json:"initialized"`
	Broken      bool   `json:"broken"`
	InFlight    bool   `json:"in_flight"`
	QueueDepth  int    `json:"queue_depth"`
	Requested   uint64 `json:"requested"`
	Rendered    uint64 `json:"rendered"`
	Empty       uint64 `json:"empty"`
	Abandoned   uint64 `json:"abandoned"`
}

// Client renders thumbnails through one isolated worker.
type Client struct {
	cfg     config.WorkerConfig
	grace   time.Duration
	spawner Spawner
	loop    *loop.Loop
	events  events.Publisher
	logger  *slog.Logger
	newID   func() string

	initialized   bool
	broken        bool
	closed        bool
	asyncUsed     bool
	draining      bool
	readerStarted bool

	ch    *Channel
	slot  *inFlight
	queue *queue.Queue
	stats Stats

	// stopped is closed once the worker stopped by Close is gone. stopErr is
	// written before that and read only after.
	stopped chan struct{}
	stopErr error
}

// Option configures a Client.
type Option func(*Client)

// WithLoop sets the loop async callbacks run on. By default the client
// creates its own, which the caller must Run.
func WithLoop(l *loop.Loop) Option {
	return func(c *Client) { c.loop = l }
}

// WithPublisher sends render events to p.
func WithPublisher(p events.Publisher) Option {
	return func(c *Client) { c.events = p }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithIDGenerator overrides how render IDs are generated.
func WithIDGenerator(fn func() string) Option {
	return func(c *Client) { c.newID = fn }
}

// New creates a client. No worker is started until Initialize.
func New(cfg config.WorkerConfig, spawner Spawner, opts ...Option) *Client {
	c := &Client{
		cfg:     cfg,
		grace:   cfg.TerminationGrace,
		spawner: spawner,
		logger:  log.WithComponent("thumbnail"),
		newID:   uuid.NewString,
		queue:   queue.New(),
		stopped: make(chan struct{}),
	}
	if c.grace <= 0 {
		c.grace = defaultGrace
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.loop == nil {
		c.loop = loop.New()
	}
	return c
}

// Loop returns the loop async callbacks run on.
func (c *Client) Loop() *loop.Loop {
	return c.loop
}

// Initialize starts the worker. A spawn failure is logged and returned, and
// leaves the client broken: every later render yields no thumbnail. Calling
// Initialize again is a no-op.
func (c *Client) Initialize(ctx context.Context) error {
	if c.initialized {
		c.logger.Warn("thumbnail client already initialized")
		return nil
	}
	c.initialized = true

	ch, err := c.spawner.Spawn(ctx)
	if err != nil {
		err = fmt.Errorf("spawn worker: %w", err)
		c.breakChannel(err)
		return err
	}
	c.ch = ch
	c.logger.Info("thumbnail worker started")
	return nil
}

func (c *Client) ready() bool {
	return c.initialized && !c.broken && c.ch != nil
}

func (c *Client) unavailable() error {
	if c.closed {
		return ErrClosed
	}
	return ErrBroken
}

// RenderSync renders req and blocks until the worker answers. It returns nil
// when there is no thumbnail. An I/O failure, a cancelled ctx or an expired
// render timeout breaks the client for good.
func (c *Client) RenderSync(ctx context.Context, req *protocol.Request) *image.RGBA {
	id := c.newID()
	logger := c.logger.With("render_id", id, "kind", req.Kind.String(), "theme", req.Theme())
	c.stats.Requested++

	if c.asyncUsed {
		logger.Error("render refused", "error", ErrMixedModes)
		return nil
	}
	if !c.ready() {
		c.stats.Abandoned++
		logger.Debug("no worker available", "error", c.unavailable())
		return nil
	}

	wire, err := protocol.MarshalRequest(req)
	if err != nil {
		logger.Warn("invalid thumbnail request", "error", err)
		c.stats.Empty++
		return nil
	}

	if c.cfg.RenderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RenderTimeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		logger.Warn("render skipped", "error", err)
		return nil
	}

	if _, err := c.ch.Requests.Write(wire); err != nil {
		c.breakChannel(fmt.Errorf("write request: %w", err))
		return nil
	}

	ch := c.ch
	stop := context.AfterFunc(ctx, func() {
		_ = ch.Kill(c.grace)
	})
	resp, err := protocol.DecodeResponse(ch.Responses)
	if !stop() {
		c.breakChannel(fmt.Errorf("render %s interrupted: %w", id, context.Cause(ctx)))
		return nil
	}
	if err != nil {
		c.breakChannel(fmt.Errorf("read response: %w", err))
		return nil
	}

	img := resp.Image()
	c.record(logger, id, req, img, "sync")
	return img
}

// RenderAsync starts or queues a render and returns its render ID. cb gets
// the thumbnail, or nil, followed by cleanup(data) when cleanup is set.
// Callbacks run in submission order, including those for requests the wire
// format cannot carry. On a broken client cb runs before RenderAsync
// returns. Must be called on the loop goroutine.
func (c *Client) RenderAsync(req *protocol.Request, cb queue.Callback, data any, cleanup queue.Cleanup) string {
	c.asyncUsed = true
	c.stats.Requested++
	e := &queue.Entry{
		ID:       c.newID(),
		Request:  *req,
		Callback: cb,
		Data:     data,
		Cleanup:  cleanup,
	}

	switch {
	case c.broken && c.draining:
		c.queue.Enqueue(e)
	case !c.ready():
		c.stats.Abandoned++
		c.logger.Debug("no worker available", "render_id", e.ID, "error", c.unavailable())
		e.Fire(queue.StatusChannelBroken, nil)
	case c.slot != nil || c.queue.Len() > 0:
		c.queue.Enqueue(e)
		c.publish(events.TypeQueued, events.Render{
			RenderID: e.ID,
			Kind:     req.Kind.String(),
			Theme:    req.Theme(),
			Mode:     "async",
			Depth:    c.queue.Len(),
		})
	default:
		c.start(e)
	}
	return e.ID
}

func (c *Client) RenderMetaSync(ctx context.Context, widgetTheme, colorScheme, wmTheme, iconTheme, font string) *image.RGBA {
	return c.RenderSync(ctx, &protocol.Request{
		Kind:        protocol.KindMeta,
		WidgetTheme: widgetTheme,
		ColorScheme: colorScheme,
		WindowTheme: wmTheme,
		IconTheme:   iconTheme,
		Font:        font,
	})
}

func (c *Client) RenderMetaAsync(widgetTheme, colorScheme, wmTheme, iconTheme, font string, cb queue.Callback, data any, cleanup queue.Cleanup) string {
	return c.RenderAsync(&protocol.Request{
		Kind:        protocol.KindMeta,
		WidgetTheme: widgetTheme,
		ColorScheme: colorScheme,
		WindowTheme: wmTheme,
		IconTheme:   iconTheme,
		Font:        font,
	}, cb, data, cleanup)
}

func (c *Client) RenderWidgetSync(ctx context.Context, widgetTheme, colorScheme string) *image.RGBA {
	return c.RenderSync(ctx, &protocol.Request{Kind: protocol.KindWidget, WidgetTheme: widgetTheme, ColorScheme: colorScheme})
}

func (c *Client) RenderWidgetAsync(widgetTheme, colorScheme string, cb queue.Callback, data any, cleanup queue.Cleanup) string {
	return c.RenderAsync(&protocol.Request{Kind: protocol.KindWidget, WidgetTheme: widgetTheme, ColorScheme: colorScheme}, cb, data, cleanup)
}

func (c *Client) RenderWindowDecorationSync(ctx context.Context, wmTheme string) *image.RGBA {
	return c.RenderSync(ctx, &protocol.Request{Kind: protocol.KindWindowDecoration, WindowTheme: wmTheme})
}

func (c *Client) RenderWindowDecorationAsync(wmTheme string, cb queue.Callback, data any, cleanup queue.Cleanup) string {
	return c.RenderAsync(&protocol.Request{Kind: protocol.KindWindowDecoration, WindowTheme: wmTheme}, cb, data, cleanup)
}

func (c *Client) RenderIconSync(ctx context.Context, iconTheme string) *image.RGBA {
	return c.RenderSync(ctx, &protocol.Request{Kind: protocol.KindIcon, IconTheme: iconTheme})
}

func (c *Client) RenderIconAsync(iconTheme string, cb queue.Callback, data any, cleanup queue.Cleanup) string {
	return c.RenderAsync(&protocol.Request{Kind: protocol.KindIcon, IconTheme: iconTheme}, cb, data, cleanup)
}

// Stats returns a snapshot. In async mode call it on the loop goroutine.
func (c *Client) Stats() Stats {
	s := c.stats
	s.Initialized = c.initialized
	s.Broken = c.broken
	s.InFlight = c.slot != nil
	s.QueueDepth = c.queue.Len()
	return s
}

// Close resolves outstanding async renders with nil and stops the worker in
// the background: the request pipe is closed so the worker exits on EOF, and
// it is killed if it outlives the grace period. Close does not wait for the
// worker; use Wait for that.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if !c.broken {
		c.broken = true
		c.failPending()
	}
	if c.ch == nil {
		close(c.stopped)
		return nil
	}

	c.logger.Info("stopping thumbnail worker")
	ch, grace := c.ch, c.grace
	go func() {
		defer close(c.stopped)
		if err := ch.Shutdown(grace); err != nil {
			c.stopErr = fmt.Errorf("stop worker: %w", err)
		}
	}()
	return nil
}

// Wait blocks until the worker stopped by Close is gone or ctx is done. It
// may be called from any goroutine.
func (c *Client) Wait(ctx context.Context) error {
	select {
	case <-c.stopped:
		return c.stopErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShutdownTimeout is the longest a stop started by Close can take: grace for
// the worker to exit on EOF, then grace between SIGTERM and SIGKILL.
func (c *Client) ShutdownTimeout() time.Duration {
	return 2 * c.grace
}

func (c *Client) record(logger *slog.Logger, id string, req *protocol.Request, img *image.RGBA, mode string) {
	ev := events.Render{
		RenderID: id,
		Kind:     req.Kind.String(),
		Theme:    req.Theme(),
		Mode:     mode,
	}
	if img == nil {
		c.stats.Empty++
		ev.Empty = true
		logger.Debug("no thumbnail")
	} else {
		c.stats.Rendered++
		ev.Width, ev.Height = img.Bounds().Dx(), img.Bounds().Dy()
		logger.Debug("thumbnail rendered", "width", ev.Width, "height", ev.Height)
	}
	c.publish(events.TypeRendered, ev)
}

func (c *Client) publish(eventType string, data events.Render) {
	if c.events != nil {
		c.events.Publish(eventType, data)
	}
}
