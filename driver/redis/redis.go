// Package redis provides a Redis-backed driver.Driver.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/swfrench/kvsession/driver"
	"github.com/swfrench/kvsession/internal/codec"
	"golang.org/x/exp/slog"
)

// Settings holds the Redis connection parameters understood by Driver.
type Settings struct {
	// Host is the Redis server host.
	// Default if unspecified: "localhost"
	Host string `mapstructure:"host"`
	// Port is the Redis server port.
	// Default if unspecified: 6379
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// DB is the logical database index, which partitions documents by
	// category.
	DB int `mapstructure:"db"`
	// MaxConnections bounds the connection pool size. Zero selects the
	// go-redis default.
	MaxConnections int           `mapstructure:"max_connections"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the host:port address described by s, applying defaults.
func (s Settings) Addr() string {
	host := s.Host
	if host == "" {
		host = "localhost"
	}
	port := s.Port
	if port == 0 {
		port = 6379
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (s Settings) options() *goredis.Options {
	return &goredis.Options{
		Addr:         s.Addr(),
		Username:     s.Username,
		Password:     s.Password,
		DB:           s.DB,
		PoolSize:     s.MaxConnections,
		DialTimeout:  s.DialTimeout,
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
	}
}

// Driver stores documents in Redis, as serialized values under their key. The
// Redis client is created on first use, so constructing a Driver never dials.
// Multiple goroutines may use a given Driver concurrently.
type Driver struct {
	settings Settings
	once     sync.Once
	rc       *goredis.Client
}

// New returns a new Driver for the provided settings.
func New(s Settings) *Driver {
	return &Driver{settings: s}
}

var errClosed = errors.New("driver closed")

func (rd *Driver) client() (*goredis.Client, error) {
	rd.once.Do(func() {
		slog.Debug("Creating Redis client", "addr", rd.settings.Addr(), "db", rd.settings.DB)
		rd.rc = goredis.NewClient(rd.settings.options())
	})
	if rd.rc == nil {
		return nil, fmt.Errorf("failed to create Redis client (error: %v): %w", errClosed, driver.ErrBackendUnavailable)
	}
	return rd.rc, nil
}

// Settings returns the settings the Driver was constructed with.
func (rd *Driver) Settings() Settings {
	return rd.settings
}

// Get returns the document stored under key, or an empty document if none
// exists.
func (rd *Driver) Get(ctx context.Context, key string) (driver.Document, error) {
	rc, err := rd.client()
	if err != nil {
		return nil, err
	}
	val, err := rc.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return driver.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document from Redis (error: %v): %w", err, driver.ErrBackendUnavailable)
	}
	return codec.Decode(val)
}

// Set stores doc under key and then applies ttl with a separate EXPIRE, both
// sent in one MULTI/EXEC round trip. A non-positive ttl leaves the key
// without expiration.
func (rd *Driver) Set(ctx context.Context, key string, doc driver.Document, ttl time.Duration) error {
	val, err := codec.Encode(doc)
	if err != nil {
		return err
	}
	rc, err := rd.client()
	if err != nil {
		return err
	}
	_, err = rc.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, key, val, 0)
		if ttl > 0 {
			p.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store document to Redis (error: %v): %w", err, driver.ErrBackendUnavailable)
	}
	return nil
}

// Ping checks that the Redis server is reachable.
func (rd *Driver) Ping(ctx context.Context) error {
	rc, err := rd.client()
	if err != nil {
		return err
	}
	if err := rc.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis (error: %v): %w", err, driver.ErrBackendUnavailable)
	}
	return nil
}

// Close releases the Redis client, if one was created.
func (rd *Driver) Close() error {
	// Ensures a later client() call cannot create a fresh client.
	rd.once.Do(func() {})
	if rd.rc == nil {
		return nil
	}
	return rd.rc.Close()
}
