// Package dedupe tracks request ids so mutating calls are replay-safe at the
// transport edge.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records seen request ids to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an id from the seen set, allowing a retry. Used when a
	// request was recorded but its operation did not commit.
	Unrecord(ctx context.Context, id string)

	// Size returns the number of ids currently tracked.
	Size() int64
}

// deduper is a bounded in-memory Deduper with FIFO eviction: once the ring
// fills, recording a new id evicts the oldest one.
type deduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	ring    []string
	head    int
	maxSize int
}

// Option applies a configuration option.
type Option func(*deduper)

// WithMaxSize bounds the number of ids kept. Values below 1 fall back to the
// default.
func WithMaxSize(n int) Option {
	return func(d *deduper) {
		if n > 0 {
			d.maxSize = n
		}
	}
}

const defaultMaxSize = 50_000

// New creates a bounded in-memory deduper.
func New(opts ...Option) Deduper {
	d := &deduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]struct{}, d.maxSize)
	d.ring = make([]string, d.maxSize)
	return d
}

func (d *deduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if old := d.ring[d.head]; old != "" {
		delete(d.seen, old)
	}
	d.ring[d.head] = id
	d.head = (d.head + 1) % d.maxSize
	d.seen[id] = struct{}{}
	return false
}

func (d *deduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

func (d *deduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
