package queue

import "time"

// compactThreshold is the number of consumed slots tolerated before the
// backing slice is compacted.
const compactThreshold = 32

// Queue is a strict FIFO of pending async renders. It has a single owner
// and is not safe for concurrent use.
type Queue struct {
	entries []*Entry
	head    int
}

func New() *Queue {
	return &Queue{}
}

// Enqueue appends e to the tail of the queue.
func (q *Queue) Enqueue(e *Entry) {
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now()
	}
	e.Status = StatusQueued
	q.entries = append(q.entries, e)
}

// DequeueNext removes and returns the oldest entry. Returns nil if the
// queue is empty.
func (q *Queue) DequeueNext() *Entry {
	if q.head >= len(q.entries) {
		return nil
	}
	e := q.entries[q.head]
	q.entries[q.head] = nil
	q.head++

	if q.head == len(q.entries) {
		q.entries = q.entries[:0]
		q.head = 0
	} else if q.head >= compactThreshold && q.head*2 >= len(q.entries) {
		n := copy(q.entries, q.entries[q.head:])
		clear(q.entries[n:])
		q.entries = q.entries[:n]
		q.head = 0
	}
	return e
}

// Len reports the number of queued entries.
func (q *Queue) Len() int {
	return len(q.entries) - q.head
}
