// Package ingestbuf implements the bounded event buffer: a concurrency
// primitive that accumulates events in memory and atomically hands them
// to the storage layer once a threshold is reached, restoring them if
// the hot-tier insert fails so no event is silently dropped.
package ingestbuf

import (
	"context"
	"sync"

	"github.com/mallardmetrics/mallard/internal/models"
)

// Store is the storage-layer dependency the buffer drains into. It is
// implemented by internal/store; the buffer only knows this interface so
// there is no import cycle and no back-pointer from the store to the
// buffer.
type Store interface {
	// InsertHot bulk-appends events into the hot tier as one unit; a
	// partial failure must not leave some rows visible and others not.
	InsertHot(ctx context.Context, events []models.Event) error
	// FlushEvents drains the hot tier into cold-tier partition files and
	// returns the count of rows successfully persisted to cold storage.
	FlushEvents(ctx context.Context) (int, error)
}

// Buffer is a FIFO event queue with atomic flush-and-rollback semantics.
// Safe for concurrent use from many ingest goroutines and one (or more,
// though only one at a time makes forward progress) flush goroutine.
type Buffer struct {
	mu        sync.Mutex
	events    []models.Event
	threshold int
	store     Store
}

// New creates a buffer that auto-flushes once it holds threshold events.
func New(threshold int, store Store) *Buffer {
	return &Buffer{
		events:    make([]models.Event, 0, threshold),
		threshold: threshold,
		store:     store,
	}
}

// Push appends an event under the buffer lock. If the buffer has reached
// its threshold, it triggers a flush and returns the flushed count.
func (b *Buffer) Push(ctx context.Context, e models.Event) (int, bool, error) {
	var shouldFlush bool
	b.mu.Lock()
	b.events = append(b.events, e)
	shouldFlush = len(b.events) >= b.threshold
	b.mu.Unlock()

	if !shouldFlush {
		return 0, false, nil
	}
	n, err := b.Flush(ctx)
	return n, true, err
}

// Len returns the number of currently buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// IsEmpty reports whether the buffer currently holds no events.
func (b *Buffer) IsEmpty() bool {
	return b.Len() == 0
}

// Flush atomically drains the buffer and hands the batch to the store.
// A hot-tier insert failure restores the drained events to the front of
// the buffer, preserving order, so they're retried on the next tick. A
// cold-tier flush failure does not restore them: the rows are already in
// the hot tier and the next flush picks them up there. The buffer lock
// is never held across storage I/O.
func (b *Buffer) Flush(ctx context.Context) (int, error) {
	b.mu.Lock()
	if len(b.events) == 0 {
		b.mu.Unlock()
		return 0, nil
	}
	drained := b.events
	b.events = make([]models.Event, 0, b.threshold)
	b.mu.Unlock()

	if err := b.store.InsertHot(ctx, drained); err != nil {
		b.restore(drained)
		return 0, err
	}

	flushed, err := b.store.FlushEvents(ctx)
	if err != nil {
		// The hot-tier insert already committed; these rows remain
		// durable in the hot tier and will be retried by the next
		// flush tick, not re-inserted here. Nothing to restore to the
		// in-memory buffer; that part of the contract is satisfied.
		return 0, err
	}
	return flushed, nil
}

// restore prepends drained events to whatever landed in the buffer while
// the flush was in flight, preserving original push order.
func (b *Buffer) restore(drained []models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(drained, b.events...)
}
