// Package metrics instruments storage drivers with Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/swfrench/kvsession/driver"
)

const namespace = "kvsession"

// Collector holds the driver metrics. A single Collector may instrument any
// number of drivers; they are distinguished by the category label.
type Collector struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewCollector creates the driver metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "driver",
			Name:      "operations_total",
			Help:      "Storage driver operations, by category, operation and outcome.",
		}, []string{"category", "op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "driver",
			Name:      "operation_duration_seconds",
			Help:      "Storage driver operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"category", "op"}),
	}
	for _, m := range []prometheus.Collector{c.ops, c.duration} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Ops returns the operation counter (e.g., for inspection in tests).
func (c *Collector) Ops() *prometheus.CounterVec {
	return c.ops
}

// Instrument wraps d so that every Get and Set is counted and timed under the
// given category. Ping and Close are forwarded when d supports them.
func (c *Collector) Instrument(d driver.Driver, category driver.Category) driver.Driver {
	return &instrumented{next: d, c: c, category: string(category)}
}

type instrumented struct {
	next     driver.Driver
	c        *Collector
	category string
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, driver.ErrBackendUnavailable):
		return "unavailable"
	case errors.Is(err, driver.ErrInvalidDocument), errors.Is(err, driver.ErrInvalidStoredDocument):
		return "invalid"
	}
	return "error"
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.c.duration.WithLabelValues(i.category, op).Observe(time.Since(start).Seconds())
	i.c.ops.WithLabelValues(i.category, op, outcome(err)).Inc()
}

func (i *instrumented) Get(ctx context.Context, key string) (driver.Document, error) {
	start := time.Now()
	doc, err := i.next.Get(ctx, key)
	i.observe("get", start, err)
	return doc, err
}

func (i *instrumented) Set(ctx context.Context, key string, doc driver.Document, ttl time.Duration) error {
	start := time.Now()
	err := i.next.Set(ctx, key, doc, ttl)
	i.observe("set", start, err)
	return err
}

func (i *instrumented) Ping(ctx context.Context) error {
	p, ok := i.next.(driver.Pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}

func (i *instrumented) Close() error {
	cl, ok := i.next.(io.Closer)
	if !ok {
		return nil
	}
	return cl.Close()
}
