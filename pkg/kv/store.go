package kv

import (
	"context"
	"time"
)

// Store is the minimal key-value surface the resilience layer depends on.
//
// TTL semantics for Set and SetNX: a positive duration expires the key
// after that duration; zero or negative means the key never expires.
type Store interface {
	// Get retrieves the value stored under key.
	// Returns ErrNotFound if the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value under key only if the key is absent.
	// Returns true iff this call created the key. The test-and-set is
	// atomic: a single round trip against the backing store.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes key. Returns true if the key existed.
	Delete(ctx context.Context, key string) (bool, error)

	// CompareAndDelete removes key only if its current value equals
	// value. Returns true if the key was deleted. Used for lock release
	// so a caller can never delete a lock it no longer owns.
	CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error)

	// Incr atomically increments the integer counter stored under key,
	// creating it with value 1 if absent, and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
}
