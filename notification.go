package session

import (
	"context"
	"fmt"

	"github.com/swfrench/kvsession/driver"
)

// Notifications is a Manager whose reads consume: Get and Item remove the
// field they return, so each stored value is delivered at most once (e.g.,
// "flash" messages shown on the next page view).
//
// Note: two concurrent reads of the same field may both observe the value
// before either removes it. The backends offer no compare-and-delete, and
// this gap is accepted rather than hidden.
type Notifications struct {
	*Manager
}

// NewNotifications returns a new Notifications storing documents through d,
// which should be bound to the driver.Notifications category.
func NewNotifications(d driver.Driver, r KeyResolver, opts *Options) *Notifications {
	return &Notifications{Manager: NewManager(d, r, opts)}
}

// take loads the document and, if field is present, removes it and stores the
// document back.
func (n *Notifications) take(ctx context.Context, field string) (any, bool, error) {
	key, doc, err := n.load(ctx)
	if err != nil {
		return nil, false, err
	}
	v, ok := doc[field]
	if !ok {
		return nil, false, nil
	}
	delete(doc, field)
	if err := n.driver.Set(ctx, key, doc, n.ttl); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Get returns and removes the value stored under field, or returns def (and
// stores nothing) if there is none. If removal fails, the error is returned
// and the value is not.
func (n *Notifications) Get(ctx context.Context, field string, def any) (any, error) {
	v, ok, err := n.take(ctx, field)
	if err != nil {
		return nil, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// Item returns and removes the value stored under field, or an error wrapping
// ErrFieldNotFound if there is none.
func (n *Notifications) Item(ctx context.Context, field string) (any, error) {
	v, ok, err := n.take(ctx, field)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("field %q: %w", field, ErrFieldNotFound)
	}
	return v, nil
}
