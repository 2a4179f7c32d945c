// Package memory provides an in-process driver.Driver.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/swfrench/kvsession/driver"
	"github.com/swfrench/kvsession/internal/codec"
)

type entry struct {
	data    []byte
	expires time.Time
}

// Driver is a simple in-memory document store, for use in tests or where an
// external store is not available.
//
// Documents are held in serialized form, so values read back have the same
// shape as with the networked backends (and callers cannot mutate stored
// state by holding on to a Document).
//
// Eviction: Expired documents are garbage collected on entry to any Driver
// method.
type Driver struct {
	// Clock can be overridden in tests (e.g., to test eviction logic).
	Clock     func() time.Time
	mu        sync.Mutex
	items     map[string]*entry
	evictions *expiryQueue
}

// New returns a new Driver instance.
func New() *Driver {
	return &Driver{
		Clock:     func() time.Time { return time.Now() },
		items:     make(map[string]*entry),
		evictions: newExpiryQueue(),
	}
}

// evict drops documents whose TTL has elapsed by t. Rewrites push a fresh
// eviction entry without removing the old one, so a popped entry only evicts
// the document if it is in fact expired.
func (md *Driver) evict(t time.Time) {
	for _, key := range md.evictions.due(t) {
		if e, ok := md.items[key]; ok && !e.expires.IsZero() && e.expires.Before(t) {
			delete(md.items, key)
		}
	}
}

// Get returns the document stored under key, or an empty document if none
// exists.
func (md *Driver) Get(ctx context.Context, key string) (driver.Document, error) {
	md.mu.Lock()
	defer md.mu.Unlock()
	md.evict(md.Clock())
	e, ok := md.items[key]
	if !ok {
		return driver.Document{}, nil
	}
	return codec.Decode(e.data)
}

// Set stores doc under key, replacing any existing document, and expires it
// after ttl. A non-positive ttl stores the document without expiration.
func (md *Driver) Set(ctx context.Context, key string, doc driver.Document, ttl time.Duration) error {
	data, err := codec.Encode(doc)
	if err != nil {
		return err
	}
	md.mu.Lock()
	defer md.mu.Unlock()
	t := md.Clock()
	md.evict(t)
	e := &entry{data: data}
	if ttl > 0 {
		e.expires = t.Add(ttl)
		md.evictions.schedule(key, e.expires)
	}
	md.items[key] = e
	return nil
}

// Len returns the number of live documents.
func (md *Driver) Len() int {
	md.mu.Lock()
	defer md.mu.Unlock()
	md.evict(md.Clock())
	return len(md.items)
}
