package kv

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"time"
)

// memEntry holds a stored value with its expiration time.
type memEntry struct {
	expiresAt time.Time // zero value = never expires
	value     []byte
}

// isExpired reports whether the entry has passed its expiration time.
func (e *memEntry) isExpired() bool {
	if e.expiresAt.IsZero() {
		return false
	}
	return time.Now().After(e.expiresAt)
}

// Memory is an in-memory Store with TTL support, intended for tests and
// single-process setups. Expired entries are dropped lazily on access.
type Memory struct {
	mu    sync.Mutex
	items map[string]*memEntry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]*memEntry)}
}

// Get retrieves the value stored under key.
// Returns ErrNotFound if the key does not exist or has expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(key)
	if !ok {
		return nil, ErrNotFound
	}

	// Copy so callers cannot mutate the stored slice.
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores value under key with the given TTL.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = newMemEntry(value, ttl)
	return nil
}

// SetNX stores value under key only if the key is absent or expired.
func (m *Memory) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookup(key); ok {
		return false, nil
	}

	m.items[key] = newMemEntry(value, ttl)
	return true, nil
}

// Delete removes key and reports whether it existed.
func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.lookup(key)
	delete(m.items, key)
	return ok, nil
}

// CompareAndDelete removes key only if it still holds value.
func (m *Memory) CompareAndDelete(_ context.Context, key string, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(key)
	if !ok || !bytes.Equal(e.value, value) {
		return false, nil
	}

	delete(m.items, key)
	return true, nil
}

// Incr atomically increments the counter under key, creating it at 1.
// Returns ErrNotInteger if the key holds a non-numeric value.
func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	if e, ok := m.lookup(key); ok {
		parsed, err := strconv.ParseInt(string(e.value), 10, 64)
		if err != nil {
			return 0, ErrNotInteger
		}
		n = parsed
	}

	n++
	var expiresAt time.Time
	if e, ok := m.items[key]; ok {
		expiresAt = e.expiresAt
	}
	m.items[key] = &memEntry{value: []byte(strconv.FormatInt(n, 10)), expiresAt: expiresAt}
	return n, nil
}

// lookup returns the live entry for key, dropping it if expired.
// Caller must hold mu.
func (m *Memory) lookup(key string) (*memEntry, bool) {
	e, ok := m.items[key]
	if !ok {
		return nil, false
	}
	if e.isExpired() {
		delete(m.items, key)
		return nil, false
	}
	return e, true
}

func newMemEntry(value []byte, ttl time.Duration) *memEntry {
	e := &memEntry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	return e
}

var _ Store = (*Memory)(nil)
