// Package dedupe tracks idempotency keys for asynchronous submissions.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// Deduper maps idempotency keys to the analysis they first produced.
type Deduper interface {
	// SeenAndRecord atomically looks key up and records id for it when absent.
	// It returns the id already bound to key and true on a repeat, or id and
	// false when key was newly recorded.
	SeenAndRecord(ctx context.Context, key, id string) (string, bool)

	// Unrecord forgets key so a rejected submission can be retried.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

type entry struct {
	key string
	id  string
}

// inMemoryDeduper keeps keys in insertion order and evicts the oldest once
// maxSize is reached. A maxSize of zero or less disables eviction.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 10_000,
	}

	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key, id string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[key]; ok {
		e, _ := el.Value.(*entry)
		return e.id, true
	}

	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.evictOldest()
	}

	d.seen[key] = d.order.PushBack(&entry{key: key, id: id})
	d.size.Add(1)
	return id, false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[key]; ok {
		d.order.Remove(el)
		delete(d.seen, key)
		d.size.Add(-1)
	}
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	front := d.order.Front()
	if front == nil {
		return
	}
	e, _ := d.order.Remove(front).(*entry)
	delete(d.seen, e.key)
	d.size.Add(-1)
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
