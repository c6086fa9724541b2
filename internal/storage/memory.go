package storage

import (
	"context"
	"sync"
	"time"

	"stronghold/server/logging"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryKV is a process-local KV with lazy TTL expiry.
type MemoryKV struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	clock   logging.Clock
}

// NewMemoryKV constructs an empty in-memory store. A nil clock falls back to
// the system clock.
func NewMemoryKV(clock logging.Clock) *MemoryKV {
	if clock == nil {
		clock = logging.SystemClock{}
	}
	return &MemoryKV{
		entries: make(map[string]memoryEntry),
		clock:   clock,
	}
}

// Get returns the value stored under key or ErrNotFound.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && !m.clock.Now().Before(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set stores value under key with the given TTL.
func (m *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: make([]byte, len(value))}
	copy(entry.value, value)
	if ttl > 0 {
		entry.expiresAt = m.clock.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

// Delete removes key.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryKV) Close() error { return nil }

var _ KV = (*MemoryKV)(nil)
