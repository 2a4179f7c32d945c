// Package factory constructs storage drivers by engine name.
//
// Storage settings are the loosely typed mapping found in configuration: the
// backend connection parameters, plus optional per-category overrides keyed
// by the category name (e.g., "db_sessions"). Create resolves the category
// override, strips every category key, and decodes what remains into the
// engine's typed settings.
package factory

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/swfrench/kvsession/driver"
	"github.com/swfrench/kvsession/driver/memcached"
	"github.com/swfrench/kvsession/driver/memory"
	"github.com/swfrench/kvsession/driver/redis"
	"golang.org/x/exp/slog"
)

var (
	// ErrUnsupportedEngine indicates that no driver is registered for the
	// requested engine name.
	ErrUnsupportedEngine = errors.New("unsupported engine")
	// ErrUnknownCategory indicates that the requested category is not one of
	// driver.Categories.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrInvalidSettings indicates that the storage settings could not be
	// decoded for the requested engine (e.g., unknown or mistyped keys).
	ErrInvalidSettings = errors.New("invalid storage settings")
)

// Constructor builds a driver for one category from storage settings. The
// settings passed to a Constructor are a private copy.
type Constructor func(settings map[string]any, category driver.Category) (driver.Driver, error)

// Engine names.
const (
	Redis     = "redis"
	Memcached = "memcached"
	Memory    = "memory"
)

var engines = map[string]Constructor{
	Redis:     newRedis,
	Memcached: newMemcached,
	Memory:    newMemory,
}

// Engines returns the supported engine names, sorted.
func Engines() []string {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Supported reports whether a driver is registered for engine.
func Supported(engine string) bool {
	_, ok := engines[engine]
	return ok
}

// Create returns a driver for the named engine, bound to the namespace
// selected by category. The provided settings are not modified.
func Create(engine string, settings map[string]any, category driver.Category) (driver.Driver, error) {
	ctor, ok := engines[engine]
	if !ok {
		return nil, fmt.Errorf("engine %q is not one of %v: %w", engine, Engines(), ErrUnsupportedEngine)
	}
	if !category.Valid() {
		return nil, fmt.Errorf("category %q: %w", category, ErrUnknownCategory)
	}
	cp := make(map[string]any, len(settings))
	for k, v := range settings {
		cp[k] = v
	}
	d, err := ctor(cp, category)
	if err != nil {
		return nil, err
	}
	slog.Debug("Created storage driver", "engine", engine, "category", string(category))
	return d, nil
}

// takeCategory removes every category key from settings, returning the value
// stored under category (if any).
func takeCategory(settings map[string]any, category driver.Category) (any, bool) {
	v, ok := settings[string(category)]
	for _, c := range driver.Categories {
		delete(settings, string(c))
	}
	return v, ok
}

func decode(engine string, input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("failed to decode %s settings (error: %v): %w", engine, err, ErrInvalidSettings)
	}
	return nil
}

var defaultRedisDB = map[driver.Category]int{
	driver.Sessions:      0,
	driver.Notifications: 1,
}

func newRedis(settings map[string]any, category driver.Category) (driver.Driver, error) {
	if v, ok := takeCategory(settings, category); ok {
		settings["db"] = v
	} else {
		settings["db"] = defaultRedisDB[category]
	}
	var s redis.Settings
	if err := decode(Redis, settings, &s); err != nil {
		return nil, err
	}
	return redis.New(s), nil
}

var defaultMemcachedPrefix = map[driver.Category]string{
	driver.Sessions:      "sessions:",
	driver.Notifications: "notifications:",
}

func newMemcached(settings map[string]any, category driver.Category) (driver.Driver, error) {
	if v, ok := takeCategory(settings, category); ok {
		settings["prefix"] = v
	} else {
		settings["prefix"] = defaultMemcachedPrefix[category]
	}
	var s memcached.Settings
	if err := decode(Memcached, settings, &s); err != nil {
		return nil, err
	}
	if slices.Contains(s.Servers, "") {
		return nil, fmt.Errorf("empty memcached server address: %w", ErrInvalidSettings)
	}
	return memcached.New(s), nil
}

// newMemory ignores settings: each memory driver is its own namespace.
func newMemory(settings map[string]any, category driver.Category) (driver.Driver, error) {
	return memory.New(), nil
}
