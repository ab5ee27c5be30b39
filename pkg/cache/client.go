package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dealrush/dealrush/pkg/kv"
	"github.com/dealrush/dealrush/pkg/lock"
)

// Client coordinates cache-aside reads against a shared key-value store.
// It owns the rebuild locks and the bounded worker pool used by the
// logical-expire strategy. A Client is safe for concurrent use.
type Client struct {
	store  kv.Store
	locker *lock.Locker
	opts   *options
	log    *slog.Logger
	sf     singleflight.Group

	rebuilds chan func()
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a cache client on top of the given store.
//
// Example:
//
//	c := cache.New(store,
//	    cache.WithNullTTL(2*time.Minute),
//	    cache.WithLockTTL(10*time.Second),
//	)
//	defer c.Close()
func New(store kv.Store, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	log := o.logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Client{
		store:    store,
		locker:   lock.New(store),
		opts:     o,
		log:      log,
		rebuilds: make(chan func(), o.rebuildQueue),
	}

	for range max(o.rebuildWorkers, 1) {
		c.wg.Add(1)
		go c.worker()
	}

	return c
}

// Invalidate deletes the cache key for an entity. This is the write
// path for all three strategies: updates to the backing entity remove
// the cached copy instead of overwriting it.
func (c *Client) Invalidate(ctx context.Context, prefix, id string) error {
	_, err := c.store.Delete(ctx, prefix+id)
	return err
}

// Close stops the rebuild workers and waits for in-flight rebuilds to
// finish. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.rebuilds)
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

// submit queues a rebuild task without blocking. Returns false when the
// queue is full or the client is closed; the caller must then release
// the rebuild lock itself.
func (c *Client) submit(task func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.rebuilds <- task:
		return true
	default:
		return false
	}
}

func (c *Client) worker() {
	defer c.wg.Done()
	for task := range c.rebuilds {
		task()
	}
}

// jitterTTL spreads the physical TTL by the configured fraction so
// co-written keys do not expire in the same instant.
func (c *Client) jitterTTL(ttl time.Duration) time.Duration {
	if c.opts.ttlJitter <= 0 || ttl <= 0 {
		return ttl
	}
	spread := int64(float64(ttl) * c.opts.ttlJitter)
	if spread <= 0 {
		return ttl
	}
	return ttl + time.Duration(rand.Int64N(spread))
}

// envelope wraps a cached payload with its logical expiry for the
// logical-expire strategy. The enclosing key carries no physical TTL.
type envelope struct {
	ExpiresAt time.Time       `json:"expiresAt"`
	Data      json.RawMessage `json:"data"`
}

func marshalValue[V any](v V) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Join(ErrMarshal, err)
	}
	return data, nil
}

func unmarshalValue[V any](data []byte) (V, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return v, errors.Join(ErrUnmarshal, err)
	}
	return v, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
