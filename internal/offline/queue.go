package offline

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one queued item. ID is generated once at enqueue time and never
// changes; it is the identity the server audits replays by.
type Entry[T any] struct {
	ID       uuid.UUID `json:"id"`
	QueuedAt time.Time `json:"queued_at"`
	Value    T         `json:"value"`
}

// Store persists the queue's entries. Save replaces the full snapshot;
// Load on a store with no prior snapshot returns an empty slice, not an
// error.
type Store[T any] interface {
	Load() ([]Entry[T], error)
	Save(entries []Entry[T]) error
}

// DurableQueue is an ordered queue of pending writes surviving restarts.
// Every mutation is persisted before it is reported as done, so a crash can
// duplicate a write (the server deduplicates by entry ID) but never lose
// one.
type DurableQueue[T any] struct {
	mu      sync.Mutex
	store   Store[T]
	entries []Entry[T]
}

// NewDurableQueue loads any persisted snapshot from the store.
func NewDurableQueue[T any](store Store[T]) (*DurableQueue[T], error) {
	entries, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	return &DurableQueue[T]{store: store, entries: entries}, nil
}

// Enqueue appends a value and persists the queue before returning.
func (q *DurableQueue[T]) Enqueue(v T) (Entry[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry := Entry[T]{ID: uuid.New(), QueuedAt: time.Now().UTC(), Value: v}
	next := append(append([]Entry[T]{}, q.entries...), entry)
	if err := q.store.Save(next); err != nil {
		return Entry[T]{}, fmt.Errorf("persist queue: %w", err)
	}
	q.entries = next
	return entry, nil
}

// Pending returns a copy of all entries still awaiting acknowledgment, in
// enqueue order.
func (q *DurableQueue[T]) Pending() []Entry[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry[T], len(q.entries))
	copy(out, q.entries)
	return out
}

// Len returns the number of pending entries.
func (q *DurableQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Ack removes the given entries and persists the shrunken queue. Unknown
// IDs are ignored; acking twice is harmless.
func (q *DurableQueue[T]) Ack(ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	acked := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		acked[id] = true
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	next := make([]Entry[T], 0, len(q.entries))
	for _, e := range q.entries {
		if !acked[e.ID] {
			next = append(next, e)
		}
	}
	if len(next) == len(q.entries) {
		return nil
	}
	if err := q.store.Save(next); err != nil {
		return fmt.Errorf("persist queue: %w", err)
	}
	q.entries = next
	return nil
}
