package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/swfrench/kvsession/config"
	"github.com/swfrench/kvsession/driver"
	"github.com/swfrench/kvsession/factory"
	"github.com/swfrench/kvsession/internal/metrics"
)

// BackendOptions represents tunable knobs that control the behavior of
// Backend.
type BackendOptions struct {
	// Registerer, if set, receives driver operation metrics.
	Registerer prometheus.Registerer
}

// Backend holds one driver per category, built once per process from
// configuration, and hands out per-request Managers bound to them. Backend
// connections are established lazily, on first use of each driver.
type Backend struct {
	sessions      driver.Driver
	notifications driver.Driver
	opts          *Options
}

// NewBackend returns a new Backend for the provided configuration. Returns an
// error wrapping config.ErrConfiguration if no engine is configured, or
// factory.ErrUnsupportedEngine if the engine is unknown. A nil opts selects
// defaults.
func NewBackend(cfg *config.Config, opts *BackendOptions) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var c *metrics.Collector
	if opts != nil && opts.Registerer != nil {
		var err error
		if c, err = metrics.NewCollector(opts.Registerer); err != nil {
			return nil, fmt.Errorf("failed to register driver metrics: %w", err)
		}
	}
	drivers := make(map[driver.Category]driver.Driver, len(driver.Categories))
	for _, category := range driver.Categories {
		d, err := factory.Create(cfg.Engine, cfg.Storage, category)
		if err != nil {
			return nil, err
		}
		if c != nil {
			d = c.Instrument(d, category)
		}
		drivers[category] = d
	}
	return NewBackendWithDrivers(drivers[driver.Sessions], drivers[driver.Notifications], &Options{TTL: cfg.TTL}), nil
}

// NewBackendWithDrivers returns a new Backend using the provided drivers,
// which must not share a namespace. A nil opts selects defaults.
func NewBackendWithDrivers(sessions, notifications driver.Driver, opts *Options) *Backend {
	if opts == nil {
		opts = &Options{}
	}
	return &Backend{sessions: sessions, notifications: notifications, opts: opts}
}

// Sessions returns a Manager for session documents keyed by r.
func (b *Backend) Sessions(r KeyResolver) *Manager {
	return NewManager(b.sessions, r, b.opts)
}

// Notifications returns a read-once Notifications keyed by r.
func (b *Backend) Notifications(r KeyResolver) *Notifications {
	return NewNotifications(b.notifications, r, b.opts)
}

func (b *Backend) drivers() []driver.Driver {
	return []driver.Driver{b.sessions, b.notifications}
}

// Ping checks that the backend serving every category is reachable. Drivers
// without a notion of reachability are skipped.
func (b *Backend) Ping(ctx context.Context) error {
	for _, d := range b.drivers() {
		if p, ok := d.(driver.Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close releases backend connections held by the drivers.
func (b *Backend) Close() error {
	var errs []error
	for _, d := range b.drivers() {
		if c, ok := d.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
