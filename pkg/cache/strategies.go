package cache

import (
	"context"
	"errors"
	"time"

	"github.com/dealrush/dealrush/pkg/kv"
	"github.com/dealrush/dealrush/pkg/lock"
)

// Loader fetches an entity from the store of record. It returns
// ErrNotFound when no such entity exists; any other error is treated as
// an infrastructure failure and propagated without a cache write.
type Loader[V any] func(ctx context.Context, id string) (V, error)

// lockPrefix namespaces the rebuild locks away from the cached values.
const lockPrefix = "lock:"

// GetWithPassThrough resolves prefix+id cache-aside with null-marker
// protection against cache penetration.
//
// A cache read distinguishes three outcomes: a hit returns the value, a
// null-marker hit returns ErrNotFound without touching the loader, and
// a true miss invokes the loader exactly once. A loader hit is written
// back with ttl; a loader miss writes a null marker with the configured
// short null TTL, so subsequent lookups of the same absent id are
// answered from the cache until the marker expires.
//
// Concurrent misses for the same key within this process are collapsed
// to a single loader call.
func GetWithPassThrough[V any](ctx context.Context, c *Client, prefix, id string, ttl time.Duration, loader Loader[V]) (V, error) {
	var zero V
	key := prefix + id

	data, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		if isNullMarker(data) {
			return zero, ErrNotFound
		}
		return unmarshalValue[V](data)
	case !errors.Is(err, kv.ErrNotFound):
		return zero, err
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		val, err := loader(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Authoritative absence: remember it briefly so repeated
				// lookups stop hammering the store of record.
				if werr := c.store.Set(ctx, key, nil, c.opts.nullTTL); werr != nil {
					c.log.WarnContext(ctx, "failed to write null marker", "key", key, "error", werr)
				}
			}
			return nil, err
		}

		data, err := marshalValue(val)
		if err != nil {
			return nil, err
		}

		// Best-effort write: the loaded value is still good even if the
		// cache is briefly unreachable.
		if err := c.store.Set(ctx, key, data, c.jitterTTL(ttl)); err != nil {
			c.log.WarnContext(ctx, "failed to write cache entry", "key", key, "error", err)
		}
		return val, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(V), nil
}

// GetWithMutex resolves prefix+id like GetWithPassThrough but
// serializes rebuilds of an expired key behind a distributed lock, so
// at most one loader call is in flight per key across all processes.
//
// A caller that loses the lock sleeps the configured backoff and
// re-runs the whole read sequence; by then the winner has usually
// repopulated the key. The loop is bounded only by ctx; callers
// needing a deadline set one on the context.
func GetWithMutex[V any](ctx context.Context, c *Client, prefix, id string, ttl time.Duration, loader Loader[V]) (V, error) {
	var zero V
	key := prefix + id

	for {
		data, err := c.store.Get(ctx, key)
		switch {
		case err == nil:
			if isNullMarker(data) {
				return zero, ErrNotFound
			}
			return unmarshalValue[V](data)
		case !errors.Is(err, kv.ErrNotFound):
			return zero, err
		}

		m, ok, err := c.locker.Acquire(ctx, lockPrefix+key, c.opts.lockTTL)
		if err != nil {
			return zero, err
		}
		if !ok {
			if err := sleep(ctx, c.opts.retryBackoff); err != nil {
				return zero, err
			}
			continue
		}

		return rebuildLocked(ctx, c, m, key, id, ttl, loader)
	}
}

// rebuildLocked runs the loader while holding the rebuild lock and
// releases it on every path.
func rebuildLocked[V any](ctx context.Context, c *Client, m *lock.Mutex, key, id string, ttl time.Duration, loader Loader[V]) (V, error) {
	var zero V

	defer func() {
		// Release on a cancellation-immune context so an aborted caller
		// cannot leave the lock held until its TTL.
		if err := m.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, lock.ErrNotHeld) {
			c.log.WarnContext(ctx, "failed to release rebuild lock", "key", m.Key(), "error", err)
		}
	}()

	// Another holder may have finished the rebuild while we raced for
	// the lock; serve its result instead of loading again.
	if data, err := c.store.Get(ctx, key); err == nil {
		if isNullMarker(data) {
			return zero, ErrNotFound
		}
		return unmarshalValue[V](data)
	}

	val, err := loader(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if werr := c.store.Set(ctx, key, nil, c.opts.nullTTL); werr != nil {
				c.log.WarnContext(ctx, "failed to write null marker", "key", key, "error", werr)
			}
		}
		return zero, err
	}

	data, err := marshalValue(val)
	if err != nil {
		return zero, err
	}

	if err := c.store.Set(ctx, key, data, c.jitterTTL(ttl)); err != nil {
		c.log.WarnContext(ctx, "failed to write cache entry", "key", key, "error", err)
	}
	return val, nil
}

// GetWithLogicalExpire resolves prefix+id with the stale-while-
// revalidate strategy. The caller never blocks on a rebuild: an entry
// whose embedded logical expiry has passed is returned as-is, and the
// refresh runs on the client's bounded worker pool if this caller wins
// the rebuild lock. Callers racing behind an in-flight rebuild also get
// the stale value.
//
// The strategy assumes the key was pre-warmed with Warm; an absent key
// is ErrNotFound, with no synchronous loader fallback. Entries hold an
// expiry envelope rather than the bare value, so a key served by this
// strategy must never be shared with the other strategies.
//
// logicalTTL is the freshness window stamped on the rebuilt entry.
func GetWithLogicalExpire[V any](ctx context.Context, c *Client, prefix, id string, logicalTTL time.Duration, loader Loader[V]) (V, error) {
	var zero V
	key := prefix + id

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return zero, ErrNotFound
		}
		return zero, err
	}

	env, err := unmarshalValue[envelope](data)
	if err != nil {
		return zero, err
	}
	val, err := unmarshalValue[V](env.Data)
	if err != nil {
		return zero, err
	}

	if env.ExpiresAt.After(time.Now()) {
		return val, nil
	}

	// Logically expired: kick off an async rebuild if nobody else has,
	// then serve the stale value either way.
	m, ok, err := c.locker.Acquire(ctx, lockPrefix+key, c.opts.lockTTL)
	if err != nil {
		c.log.WarnContext(ctx, "failed to acquire rebuild lock", "key", key, "error", err)
		return val, nil
	}
	if ok {
		task := func() { rebuildLogical(c, key, id, logicalTTL, m, loader) }
		if !c.submit(task) {
			// Queue full: drop the task and free the lock so the next
			// expired read can try again.
			if err := m.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, lock.ErrNotHeld) {
				c.log.WarnContext(ctx, "failed to release rebuild lock", "key", key, "error", err)
			}
			c.log.DebugContext(ctx, "rebuild queue full, task dropped", "key", key)
		}
	}

	return val, nil
}

// rebuildLogical refreshes one logically expired key on a worker
// goroutine. It is decoupled from the originating request, so it runs
// under its own deadline derived from the lock TTL.
func rebuildLogical[V any](c *Client, key, id string, logicalTTL time.Duration, m *lock.Mutex, loader Loader[V]) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.lockTTL)
	defer cancel()

	defer func() {
		// The rebuild deadline must not take the release down with it.
		if err := m.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, lock.ErrNotHeld) {
			c.log.Warn("failed to release rebuild lock", "key", key, "error", err)
		}
	}()

	val, err := loader(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// The entity vanished from the store of record; drop the
			// stale copy instead of refreshing it.
			if _, derr := c.store.Delete(ctx, key); derr != nil {
				c.log.Warn("failed to drop vanished cache entry", "key", key, "error", derr)
			}
			return
		}
		c.log.Error("cache rebuild failed", "key", key, "error", err)
		return
	}

	if err := setLogical(ctx, c, key, val, logicalTTL); err != nil {
		c.log.Error("failed to write rebuilt cache entry", "key", key, "error", err)
	}
}

// Warm loads an entity and writes it with an embedded logical expiry
// and no physical TTL. Use it to pre-populate keys served by
// GetWithLogicalExpire.
func Warm[V any](ctx context.Context, c *Client, prefix, id string, logicalTTL time.Duration, loader Loader[V]) error {
	val, err := loader(ctx, id)
	if err != nil {
		return err
	}
	return setLogical(ctx, c, prefix+id, val, logicalTTL)
}

func setLogical[V any](ctx context.Context, c *Client, key string, val V, logicalTTL time.Duration) error {
	payload, err := marshalValue(val)
	if err != nil {
		return err
	}
	data, err := marshalValue(envelope{
		ExpiresAt: time.Now().Add(logicalTTL),
		Data:      payload,
	})
	if err != nil {
		return err
	}
	// No physical TTL: logical-expire entries are refreshed, never evicted.
	return c.store.Set(ctx, key, data, 0)
}

// isNullMarker reports whether a cached payload is the null marker
// recorded for an absent entity.
func isNullMarker(data []byte) bool {
	return len(data) == 0
}
