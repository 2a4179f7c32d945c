package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	session "github.com/swfrench/kvsession"
	"github.com/swfrench/kvsession/driver"
	"github.com/swfrench/kvsession/driver/memory"
)

func TestNotificationsReadOnce(t *testing.T) {
	n := session.NewNotifications(memory.New(), fakeKey, nil)
	ctx := context.Background()
	if err := n.Set(ctx, "flash", "Saved!"); err != nil {
		t.Fatalf("Set() returned unexpected error: %v", err)
	}
	ok, err := n.Contains(ctx, "flash")
	if err != nil {
		t.Fatalf("Contains() returned unexpected error: %v", err)
	}
	if !ok {
		t.Errorf("Contains(%q) = false before read, want true", "flash")
	}
	got, err := n.Get(ctx, "flash", nil)
	if err != nil {
		t.Fatalf("Get() returned unexpected error: %v", err)
	}
	if got != "Saved!" {
		t.Errorf("Get() on first read = %v, want %q", got, "Saved!")
	}
	got, err = n.Get(ctx, "flash", "none")
	if err != nil {
		t.Fatalf("Get() returned unexpected error: %v", err)
	}
	if got != "none" {
		t.Errorf("Get() on second read = %v, want %q", got, "none")
	}
	if ok, err := n.Contains(ctx, "flash"); err != nil || ok {
		t.Errorf("Contains(%q) after read = (%v, %v), want (false, nil)", "flash", ok, err)
	}
}

func TestNotificationsItem(t *testing.T) {
	n := session.NewNotifications(memory.New(), fakeKey, nil)
	ctx := context.Background()
	if err := n.Set(ctx, "flash", map[string]any{"level": "info"}); err != nil {
		t.Fatalf("Set() returned unexpected error: %v", err)
	}
	got, err := n.Item(ctx, "flash")
	if err != nil {
		t.Fatalf("Item() returned unexpected error: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"level": "info"}, got); diff != "" {
		t.Errorf("Item() returned incorrect value (+got, -want):\n%s", diff)
	}
	if _, err := n.Item(ctx, "flash"); !errors.Is(err, session.ErrFieldNotFound) {
		t.Errorf("Item() on second read returned unexpected error - got: %v, want: %v", err, session.ErrFieldNotFound)
	}
}

func TestNotificationsLeavesOtherFields(t *testing.T) {
	n := session.NewNotifications(memory.New(), fakeKey, nil)
	ctx := context.Background()
	for _, f := range []string{"a", "b", "c"} {
		if err := n.Set(ctx, f, f); err != nil {
			t.Fatalf("Set() returned unexpected error: %v", err)
		}
	}
	if _, err := n.Get(ctx, "b", nil); err != nil {
		t.Fatalf("Get() returned unexpected error: %v", err)
	}
	got, err := n.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() returned unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "c"}, got); diff != "" {
		t.Errorf("Keys() returned incorrect fields (+got, -want):\n%s", diff)
	}
}

func TestNotificationsMissDoesNotStore(t *testing.T) {
	sd := newStubDriver()
	n := session.NewNotifications(sd, fakeKey, nil)
	got, err := n.Get(context.Background(), "flash", "default")
	if err != nil {
		t.Fatalf("Get() returned unexpected error: %v", err)
	}
	if got != "default" {
		t.Errorf("Get() = %v, want %q", got, "default")
	}
	if sd.sets != 0 {
		t.Errorf("Get() of absent field stored the document (%d sets)", sd.sets)
	}
}

func TestNotificationsFailedRemoval(t *testing.T) {
	sd := newStubDriver()
	n := session.NewNotifications(sd, fakeKey, nil)
	ctx := context.Background()
	if err := n.Set(ctx, "flash", "Saved!"); err != nil {
		t.Fatalf("Set() returned unexpected error: %v", err)
	}
	sd.setErr = func() error { return driver.ErrBackendUnavailable }
	got, err := n.Get(ctx, "flash", nil)
	if !errors.Is(err, driver.ErrBackendUnavailable) {
		t.Errorf("Get() returned unexpected error - got: %v, want: %v", err, driver.ErrBackendUnavailable)
	}
	if got != nil {
		t.Errorf("Get() returned value %v despite failed removal", got)
	}
	// The value was not consumed.
	sd.setErr = func() error { return nil }
	if got, err := n.Get(ctx, "flash", nil); err != nil || got != "Saved!" {
		t.Errorf("Get() after recovery = (%v, %v), want (%q, nil)", got, err, "Saved!")
	}
}

func TestSessionsAndNotificationsIsolated(t *testing.T) {
	b := session.NewBackendWithDrivers(memory.New(), memory.New(), nil)
	ctx := context.Background()
	s := b.Sessions(fakeKey)
	n := b.Notifications(fakeKey)
	if err := s.Set(ctx, "k", "session value"); err != nil {
		t.Fatalf("Set() returned unexpected error: %v", err)
	}
	if err := n.Set(ctx, "k", "notification value"); err != nil {
		t.Fatalf("Set() returned unexpected error: %v", err)
	}
	if got, err := n.Get(ctx, "k", nil); err != nil || got != "notification value" {
		t.Errorf("Notifications Get() = (%v, %v), want (%q, nil)", got, err, "notification value")
	}
	for i := 0; i < 2; i++ {
		if got, err := s.Get(ctx, "k", nil); err != nil || got != "session value" {
			t.Errorf("Sessions Get() = (%v, %v), want (%q, nil)", got, err, "session value")
		}
	}
}
