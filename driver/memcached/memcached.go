// Package memcached provides a Memcached-backed driver.Driver.
package memcached

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/swfrench/kvsession/driver"
	"github.com/swfrench/kvsession/internal/codec"
	"golang.org/x/exp/slog"
)

// DefaultServer is used when Settings lists no servers.
const DefaultServer = "localhost:11211"

// Settings holds the Memcached connection parameters understood by Driver.
type Settings struct {
	// Servers lists the host:port addresses of the Memcached pool.
	// Default if unspecified: ["localhost:11211"]
	Servers []string `mapstructure:"servers"`
	// Prefix is prepended to every key. Memcached has no notion of separate
	// databases, so the prefix is what partitions documents by category.
	Prefix string `mapstructure:"prefix"`
	// Timeout is the socket read/write timeout. Zero selects the gomemcache
	// default.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxIdleConns bounds idle connections kept per server. Zero selects the
	// gomemcache default.
	MaxIdleConns int `mapstructure:"max_idle_conns"`
}

func (s Settings) servers() []string {
	if len(s.Servers) == 0 {
		return []string{DefaultServer}
	}
	return s.Servers
}

// Driver stores documents in Memcached, as serialized values under their
// (prefixed) key, with the TTL applied as part of the same set command. The
// client is created on first use. Multiple goroutines may use a given Driver
// concurrently.
//
// Note: gomemcache does not accept a Context, so cancellation is not honored;
// Settings.Timeout bounds each call instead.
type Driver struct {
	settings Settings
	once     sync.Once
	mc       *memcache.Client
}

// New returns a new Driver for the provided settings.
func New(s Settings) *Driver {
	return &Driver{settings: s}
}

func (md *Driver) client() *memcache.Client {
	md.once.Do(func() {
		servers := md.settings.servers()
		slog.Debug("Creating Memcached client", "servers", servers, "prefix", md.settings.Prefix)
		mc := memcache.New(servers...)
		if md.settings.Timeout > 0 {
			mc.Timeout = md.settings.Timeout
		}
		if md.settings.MaxIdleConns > 0 {
			mc.MaxIdleConns = md.settings.MaxIdleConns
		}
		md.mc = mc
	})
	return md.mc
}

// Settings returns the settings the Driver was constructed with.
func (md *Driver) Settings() Settings {
	return md.settings
}

func (md *Driver) itemKey(key string) string {
	return md.settings.Prefix + key
}

// Get returns the document stored under key, or an empty document if none
// exists.
func (md *Driver) Get(ctx context.Context, key string) (driver.Document, error) {
	it, err := md.client().Get(md.itemKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return driver.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document from Memcached (error: %v): %w", err, driver.ErrBackendUnavailable)
	}
	return codec.Decode(it.Value)
}

// Set stores doc under key, expiring after ttl (rounded up to whole seconds).
// A non-positive ttl stores the document without expiration.
func (md *Driver) Set(ctx context.Context, key string, doc driver.Document, ttl time.Duration) error {
	val, err := codec.Encode(doc)
	if err != nil {
		return err
	}
	it := &memcache.Item{
		Key:        md.itemKey(key),
		Value:      val,
		Expiration: expiration(ttl, time.Now()),
	}
	if err := md.client().Set(it); err != nil {
		return fmt.Errorf("failed to store document to Memcached (error: %v): %w", err, driver.ErrBackendUnavailable)
	}
	return nil
}

// maxRelativeExpiration is the longest expiration Memcached reads as relative
// to now; larger values are absolute Unix times.
const maxRelativeExpiration = 30 * 24 * 60 * 60

// expiration converts ttl to Memcached's relative expiration in seconds.
// Values beyond 30 days would be read as absolute Unix times by the server,
// so they are converted to one, relative to now. Absolute times that do not
// fit the protocol's 32 bits are clamped to the largest one that does.
func expiration(ttl time.Duration, now time.Time) int32 {
	if ttl <= 0 {
		return 0
	}
	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		secs++
	}
	if secs <= maxRelativeExpiration {
		return int32(secs)
	}
	if abs := now.Unix(); secs > math.MaxInt32-abs {
		return math.MaxInt32
	}
	return int32(now.Unix() + secs)
}

// Ping checks that every configured server is reachable.
func (md *Driver) Ping(ctx context.Context) error {
	if err := md.client().Ping(); err != nil {
		return fmt.Errorf("failed to ping Memcached (error: %v): %w", err, driver.ErrBackendUnavailable)
	}
	return nil
}
