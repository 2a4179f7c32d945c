// Package session provides expiring, per-user document storage for HTTP
// servers, keyed by an identifier carried in a signed cookie.
//
// At a high level, a Manager loads and stores a Document (a mapping of field
// names to values) through a driver.Driver, with every mutation performed as
// a full load-modify-store cycle. The document key is obtained from a
// KeyResolver; CookieResolver mints one on first use and persists it in a
// signed cookie. Notifications is a read-once variant of Manager: Get
// consumes the field it returns.
//
// Backend holds the process-wide drivers (one per category, so sessions and
// notifications never collide) built from configuration, and Middleware
// attaches per-request Handles to the request Context.
package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"time"

	"github.com/swfrench/kvsession/config"
	"github.com/swfrench/kvsession/driver"
	"github.com/swfrench/kvsession/factory"
)

// ErrFieldNotFound indicates that Item was called for a field not present in
// the document.
var ErrFieldNotFound = errors.New("field not found")

// Options represents tunable knobs that control the behavior of Manager.
type Options struct {
	// TTL is the document expiration, refreshed on every write.
	// Default if unspecified: driver.DefaultTTL
	TTL time.Duration
}

// Manager is a keyed document store. All operations are scoped to the key
// returned by its KeyResolver.
//
// Mutations are not atomic across concurrent writers to the same key: each
// one loads the whole document, changes it, and stores it back, so the last
// writer wins.
type Manager struct {
	driver   driver.Driver
	resolver KeyResolver
	ttl      time.Duration
}

// NewManager returns a new Manager storing documents through d, under the key
// provided by r. A nil opts selects defaults.
func NewManager(d driver.Driver, r KeyResolver, opts *Options) *Manager {
	ttl := driver.DefaultTTL
	if opts != nil && opts.TTL > 0 {
		ttl = opts.TTL
	}
	return &Manager{driver: d, resolver: r, ttl: ttl}
}

// NewFromConfig returns a new Manager backed by a driver for the configured
// engine and the given category. Returns an error wrapping
// config.ErrConfiguration if no engine is configured.
//
// Each call constructs a fresh driver; servers should build a Backend once and
// derive Managers from it instead.
func NewFromConfig(cfg *config.Config, category driver.Category, r KeyResolver) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d, err := factory.Create(cfg.Engine, cfg.Storage, category)
	if err != nil {
		return nil, err
	}
	return NewManager(d, r, &Options{TTL: cfg.TTL}), nil
}

// Key returns the document key, resolving it if necessary.
func (m *Manager) Key(ctx context.Context) (string, error) {
	key, err := m.resolver.ResolveKey(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve document key: %w", err)
	}
	return key, nil
}

func (m *Manager) load(ctx context.Context) (string, driver.Document, error) {
	key, err := m.Key(ctx)
	if err != nil {
		return "", nil, err
	}
	doc, err := m.driver.Get(ctx, key)
	if err != nil {
		return "", nil, err
	}
	if doc == nil {
		doc = driver.Document{}
	}
	return key, doc, nil
}

func (m *Manager) change(ctx context.Context, fn func(driver.Document)) error {
	key, doc, err := m.load(ctx)
	if err != nil {
		return err
	}
	fn(doc)
	return m.driver.Set(ctx, key, doc, m.ttl)
}

// Get returns the value stored under field, or def if there is none.
func (m *Manager) Get(ctx context.Context, field string, def any) (any, error) {
	_, doc, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	if v, ok := doc[field]; ok {
		return v, nil
	}
	return def, nil
}

// Item returns the value stored under field, or an error wrapping
// ErrFieldNotFound if there is none.
func (m *Manager) Item(ctx context.Context, field string) (any, error) {
	_, doc, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	v, ok := doc[field]
	if !ok {
		return nil, fmt.Errorf("field %q: %w", field, ErrFieldNotFound)
	}
	return v, nil
}

// Set stores value under field. The value must be supported by the document
// codec (scalars, strings, byte slices, and slices and maps thereof).
func (m *Manager) Set(ctx context.Context, field string, value any) error {
	return m.change(ctx, func(doc driver.Document) {
		doc[field] = value
	})
}

// Delete removes the given fields. Absent fields are ignored. The document is
// stored (and its TTL refreshed) even if nothing was removed.
func (m *Manager) Delete(ctx context.Context, fields ...string) error {
	return m.change(ctx, func(doc driver.Document) {
		for _, f := range fields {
			delete(doc, f)
		}
	})
}

// Contains reports whether field is present.
func (m *Manager) Contains(ctx context.Context, field string) (bool, error) {
	_, doc, err := m.load(ctx)
	if err != nil {
		return false, err
	}
	_, ok := doc[field]
	return ok, nil
}

// Keys returns the field names present, sorted.
func (m *Manager) Keys(ctx context.Context) ([]string, error) {
	_, doc, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(doc)), nil
}

// All loads the document and returns an iterator over its fields in sorted
// order. The iterator reads from the loaded snapshot: later writes are not
// observed.
func (m *Manager) All(ctx context.Context) (iter.Seq2[string, any], error) {
	_, doc, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	keys := slices.Sorted(maps.Keys(doc))
	return func(yield func(string, any) bool) {
		for _, k := range keys {
			if !yield(k, doc[k]) {
				return
			}
		}
	}, nil
}

// Document returns a copy of the whole document.
func (m *Manager) Document(ctx context.Context) (driver.Document, error) {
	_, doc, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Clone(), nil
}
