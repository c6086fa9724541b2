package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"stronghold/server/logging"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

var _ logging.Clock = (*manualClock)(nil)

func TestMemoryKVRoundTrip(t *testing.T) {
	kv := NewMemoryKV(nil)
	ctx := context.Background()

	if err := kv.Set(ctx, "session:abc", []byte("payload"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, err := kv.Get(ctx, "session:abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(value) != "payload" {
		t.Fatalf("value = %q", value)
	}

	if _, err := kv.Get(ctx, "session:missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing key error = %v, want ErrNotFound", err)
	}
}

func TestMemoryKVTTLExpiry(t *testing.T) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	kv := NewMemoryKV(clock)
	ctx := context.Background()

	if err := kv.Set(ctx, "k", []byte("v"), 30*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	clock.now = clock.now.Add(29 * time.Second)
	if _, err := kv.Get(ctx, "k"); err != nil {
		t.Fatalf("entry expired early: %v", err)
	}
	clock.now = clock.now.Add(2 * time.Second)
	if _, err := kv.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("entry should expire, got %v", err)
	}
}

func TestMemoryKVDeleteAndIsolation(t *testing.T) {
	kv := NewMemoryKV(nil)
	ctx := context.Background()

	original := []byte("data")
	if err := kv.Set(ctx, "k", original, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	original[0] = 'X'
	value, err := kv.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(value) != "data" {
		t.Fatalf("stored value aliased the caller's slice: %q", value)
	}

	if err := kv.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := kv.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted key error = %v, want ErrNotFound", err)
	}
	if err := kv.Delete(ctx, "k"); err != nil {
		t.Fatalf("double delete must be a no-op, got %v", err)
	}
}
