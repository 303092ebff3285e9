package sink

import (
	"context"
	"sync"

	"github.com/leapstack-labs/phonograph/pkg/core"
)

// Dedup forwards each (object type, primary key) pair to the next sink at
// most once, and drops objects with an empty primary key. Safe for
// concurrent use.
//
// A duplicate that arrives while the first forward of its key is still in
// flight waits for that forward. If it succeeded the duplicate is dropped;
// if it failed the key is released and the duplicate is forwarded instead.
type Dedup struct {
	next core.Sink

	mu      sync.Mutex
	seen    map[string]map[string]*keyClaim
	dropped int
}

// keyClaim tracks the forward of one key. ok is written before done closes.
type keyClaim struct {
	done chan struct{}
	ok   bool
}

// NewDedup wraps next.
func NewDedup(next core.Sink) *Dedup {
	return &Dedup{next: next, seen: make(map[string]map[string]*keyClaim)}
}

// Put forwards the object unless its key is empty or already forwarded.
func (d *Dedup) Put(ctx context.Context, objectType, primaryKey string, props core.Properties) error {
	for {
		c, owner := d.claim(objectType, primaryKey)
		if c == nil {
			return nil
		}
		if owner {
			return d.forward(ctx, c, objectType, primaryKey, props)
		}

		select {
		case <-c.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if c.ok {
			d.mu.Lock()
			d.dropped++
			d.mu.Unlock()
			return nil
		}
	}
}

// claim returns the key's claim and whether the caller now owns it. A nil
// claim means the object is dropped.
func (d *Dedup) claim(objectType, primaryKey string) (*keyClaim, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if primaryKey == "" {
		d.dropped++
		return nil, false
	}
	keys, ok := d.seen[objectType]
	if !ok {
		keys = make(map[string]*keyClaim)
		d.seen[objectType] = keys
	}
	if c, exists := keys[primaryKey]; exists {
		return c, false
	}
	c := &keyClaim{done: make(chan struct{})}
	keys[primaryKey] = c
	return c, true
}

func (d *Dedup) forward(ctx context.Context, c *keyClaim, objectType, primaryKey string, props core.Properties) error {
	ok := false
	// Resolve on every path, panics included, so waiters never hang.
	defer func() {
		d.mu.Lock()
		if !ok {
			delete(d.seen[objectType], primaryKey)
		}
		c.ok = ok
		close(c.done)
		d.mu.Unlock()
	}()

	if err := d.next.Put(ctx, objectType, primaryKey, props); err != nil {
		return err
	}
	ok = true
	return nil
}

// Dropped returns the number of objects filtered out.
func (d *Dedup) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

var _ core.Sink = (*Dedup)(nil)
