// Package driver defines the storage driver abstraction used by the session
// and notification managers. See the redis, memcached and memory subpackages
// for concrete implementations, and the factory package for construction by
// engine name.
package driver

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is the expiration applied to stored documents when the caller
// does not configure one.
const DefaultTTL = 24 * time.Hour

var (
	// ErrBackendUnavailable indicates that the backing store could not be
	// reached, or failed while serving the request.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrInvalidDocument indicates that the provided document cannot be
	// serialized (e.g., it contains values the codec does not support).
	ErrInvalidDocument = errors.New("invalid document")
	// ErrInvalidStoredDocument indicates that the bytes fetched from the
	// backing store could not be decoded into a document.
	ErrInvalidStoredDocument = errors.New("invalid stored document")
)

// Category is a logical partition of stored documents. Each category maps to
// a distinct backend namespace, so that identical keys never collide.
type Category string

const (
	// Sessions is the category used for session documents.
	Sessions Category = "db_sessions"
	// Notifications is the category used for read-once notifications.
	Notifications Category = "db_notifications"
)

// Categories lists every known Category.
var Categories = []Category{Sessions, Notifications}

// Valid reports whether c is a known Category.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Document is the mapping of field names to values persisted under one key.
type Document map[string]any

// Clone returns a shallow copy of the document. A nil document clones to an
// empty one.
func (d Document) Clone() Document {
	c := make(Document, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

// Driver is a backend-specific adapter for loading and storing documents.
//
// Get returns an empty Document (and no error) when nothing is stored under
// key. Set replaces the stored document and refreshes its TTL.
type Driver interface {
	Get(ctx context.Context, key string) (Document, error)
	Set(ctx context.Context, key string, doc Document, ttl time.Duration) error
}

// Pinger is implemented by drivers able to check backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
