package thumbnail

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mattjoyce/themethumb/internal/events"
	"github.com/mattjoyce/themethumb/internal/protocol"
	"github.com/mattjoyce/themethumb/internal/queue"
)

// responseChunk is the read size on the response pipe.
const responseChunk = 32 * 1024

var errTimeout = errors.New("render timed out")

// inFlight is the one async request the worker is currently answering.
type inFlight struct {
	entry   *queue.Entry
	dec     *protocol.ResponseDecoder
	started time.Time
	timer   *time.Timer
	// done is set once the callback has been scheduled, so a break during
	// the callback does not resolve the entry a second time.
	done bool
}

func (s *inFlight) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}
}

// start occupies the slot with e and writes its request. A request that
// cannot be encoded resolves to nil at once and leaves the slot free.
func (c *Client) start(e *queue.Entry) {
	wire, err := protocol.MarshalRequest(&e.Request)
	if err != nil {
		logger := c.logger.With("render_id", e.ID, "kind", e.Request.Kind.String())
		logger.Warn("invalid thumbnail request", "error", err)
		c.record(logger, e.ID, &e.Request, nil, "async")
		e.Fire(queue.StatusCompleted, nil)
		return
	}

	c.ensureReader()

	e.Status = queue.StatusInFlight
	s := &inFlight{entry: e, dec: protocol.NewResponseDecoder(), started: time.Now()}
	c.slot = s

	if _, err := c.ch.Requests.Write(wire); err != nil {
		c.breakChannel(fmt.Errorf("write request: %w", err))
		return
	}

	if timeout := c.cfg.RenderTimeout; timeout > 0 {
		id := e.ID
		s.timer = time.AfterFunc(timeout, func() {
			c.loop.Post(func() { c.onTimeout(id) })
		})
	}
}

// startNext starts queued entries until one is in flight or the queue is
// empty.
func (c *Client) startNext() {
	for c.slot == nil && !c.broken {
		e := c.queue.DequeueNext()
		if e == nil {
			return
		}
		c.start(e)
	}
}

// ensureReader registers the response reader. It runs once per client.
func (c *Client) ensureReader() {
	if c.readerStarted || c.ch == nil {
		return
	}
	c.readerStarted = true
	go c.readResponses(c.ch.Responses)
}

// readResponses forwards response bytes to the loop until the pipe fails.
func (c *Client) readResponses(r io.Reader) {
	buf := make([]byte, responseChunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			c.loop.Post(func() { c.onChunk(chunk) })
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			c.loop.Post(func() { c.breakChannel(fmt.Errorf("read response: %w", err)) })
			return
		}
	}
}

// onChunk feeds response bytes to the in-flight decoder.
func (c *Client) onChunk(chunk []byte) {
	for len(chunk) > 0 {
		if c.broken {
			return
		}
		s := c.slot
		if s == nil || s.done {
			c.breakChannel(fmt.Errorf("%d unexpected response bytes", len(chunk)))
			return
		}

		n, err := s.dec.Feed(chunk)
		if err != nil {
			c.breakChannel(fmt.Errorf("decode response: %w", err))
			return
		}
		chunk = chunk[n:]
		if !s.dec.Done() {
			return
		}
		c.complete(s)
	}
}

// complete delivers the finished response, then starts the next entry.
func (c *Client) complete(s *inFlight) {
	s.stopTimer()
	s.done = true

	e := s.entry
	img := s.dec.Response().Image()
	logger := c.logger.With("render_id", e.ID, "kind", e.Request.Kind.String(), "theme", e.Request.Theme())
	logger.Debug("async render finished", "elapsed", time.Since(s.started))
	c.record(logger, e.ID, &e.Request, img, "async")

	e.Fire(queue.StatusCompleted, img)
	if c.slot == s {
		c.slot = nil
	}
	c.startNext()
}

func (c *Client) onTimeout(id string) {
	s := c.slot
	if s == nil || s.done || s.entry.ID != id {
		return
	}
	c.breakChannel(fmt.Errorf("render %s: %w after %s", id, errTimeout, c.cfg.RenderTimeout))
}

// breakChannel marks the client permanently broken, stops the worker and
// resolves every outstanding render with nil. Later calls are no-ops.
func (c *Client) breakChannel(err error) {
	if c.broken {
		return
	}
	c.broken = true
	c.logger.Error("thumbnail channel broken", "error", err)
	c.publish(events.TypeBroken, events.Render{Error: err.Error(), Depth: c.queue.Len()})

	if ch := c.ch; ch != nil {
		go func() {
			if kerr := ch.Kill(c.grace); kerr != nil {
				c.logger.Warn("failed to stop worker", "error", kerr)
			}
		}()
	}
	c.failPending()
}

// failPending resolves the in-flight entry and then the queue, oldest first.
// Renders issued from those callbacks join the end of the queue.
func (c *Client) failPending() {
	if c.draining {
		return
	}
	c.draining = true
	defer func() { c.draining = false }()

	if s := c.slot; s != nil {
		s.stopTimer()
		if !s.done {
			s.done = true
			c.abandon(s.entry)
		}
		c.slot = nil
	}
	for e := c.queue.DequeueNext(); e != nil; e = c.queue.DequeueNext() {
		c.abandon(e)
	}
}

func (c *Client) abandon(e *queue.Entry) {
	c.stats.Abandoned++
	c.publish(events.TypeRendered, events.Render{
		RenderID: e.ID,
		Kind:     e.Request.Kind.String(),
		Theme:    e.Request.Theme(),
		Mode:     "async",
		Empty:    true,
		Error:    c.unavailable().Error(),
	})
	e.Fire(queue.StatusChannelBroken, nil)
}
