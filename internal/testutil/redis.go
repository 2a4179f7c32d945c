package testutil

import (
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// RedisBundle bundles together a miniredis instance and an associated Redis
// client for inspecting its contents.
type RedisBundle struct {
	mr *miniredis.Miniredis
	rc *redis.Client
}

// MustCreateRedisBundle returns a new RedisBundle. The miniredis instance is
// shut down automatically when the test completes.
func MustCreateRedisBundle(t *testing.T) *RedisBundle {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { rc.Close() })
	return &RedisBundle{mr: mr, rc: rc}
}

// Miniredis returns the miniredis instance (e.g., for FastForward or DB).
func (rb *RedisBundle) Miniredis() *miniredis.Miniredis {
	return rb.mr
}

// Client returns a Redis client connected to database 0.
func (rb *RedisBundle) Client() *redis.Client {
	return rb.rc
}

// Host returns the miniredis host.
func (rb *RedisBundle) Host() string {
	return rb.mr.Host()
}

// MustPort returns the miniredis port.
func (rb *RedisBundle) MustPort(t *testing.T) int {
	p, err := strconv.Atoi(rb.mr.Port())
	if err != nil {
		t.Fatalf("Unexpected error parsing miniredis port %q: %v", rb.mr.Port(), err)
	}
	return p
}

// Settings returns storage settings (as found in configuration) pointing at
// the miniredis instance.
func (rb *RedisBundle) Settings(t *testing.T) map[string]any {
	return map[string]any{
		"host": rb.Host(),
		"port": rb.MustPort(t),
	}
}

// Flush flushes all keys from miniredis.
func (rb *RedisBundle) Flush() {
	rb.mr.FlushAll()
}
