// Package lock provides a distributed mutual-exclusion primitive built
// on the key-value store's atomic set-if-absent.
//
// Each acquisition stores a random owner token as the lock value.
// Release is a compare-and-delete against that token, so a holder whose
// lease expired can never delete a lock that has since been acquired by
// someone else. The TTL is a safety net against a crashed holder, not a
// renewal mechanism: critical sections must pick a TTL longer than
// their expected duration.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dealrush/dealrush/pkg/kv"
)

// ErrNotHeld is returned by Release when the lock key no longer holds
// this mutex's token, either because the lease expired or because the
// lock was never acquired.
var ErrNotHeld = errors.New("lock: not held")

// Locker hands out distributed mutexes backed by a shared store.
type Locker struct {
	store kv.Store
}

// New creates a Locker on top of the given store.
func New(store kv.Store) *Locker {
	return &Locker{store: store}
}

// Acquire attempts to take the lock named key for at most ttl.
// Returns (nil, false, nil) when another holder owns the lock.
// The returned Mutex must be released by the caller on every path.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Mutex, bool, error) {
	token := []byte(uuid.NewString())

	ok, err := l.store.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	return &Mutex{store: l.store, key: key, token: token}, true, nil
}

// Mutex is a held distributed lock. The zero value is not usable;
// mutexes are obtained from Locker.Acquire.
type Mutex struct {
	store kv.Store
	key   string
	token []byte
}

// Key returns the store key the lock is held under.
func (m *Mutex) Key() string { return m.key }

// Release deletes the lock only if it still holds this mutex's token.
// Returns ErrNotHeld when the lease already expired and the key is
// absent or owned by another holder; in that case nothing is deleted.
func (m *Mutex) Release(ctx context.Context) error {
	ok, err := m.store.CompareAndDelete(ctx, m.key, m.token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}
