package queue

import (
	"image"
	"time"

	"github.com/mattjoyce/themethumb/internal/protocol"
)

type Status string

const (
	StatusQueued        Status = "queued"
	StatusInFlight      Status = "in_flight"
	StatusCompleted     Status = "completed"
	StatusChannelBroken Status = "channel_broken"
)

// Callback receives the rendered thumbnail, or nil when none could be produced.
type Callback func(img *image.RGBA, data any)

// Cleanup releases user data after its callback has run.
type Cleanup func(data any)

// Entry is an async render waiting for the worker to become free.
type Entry struct {
	ID         string
	Request    protocol.Request
	Callback   Callback
	Data       any
	Cleanup    Cleanup
	Status     Status
	EnqueuedAt time.Time
}

// Fire records the final status, then invokes the callback and the cleanup,
// if any.
func (e *Entry) Fire(status Status, img *image.RGBA) {
	e.Status = status
	if e.Callback != nil {
		e.Callback(img, e.Data)
	}
	if e.Cleanup != nil {
		e.Cleanup(e.Data)
	}
}
