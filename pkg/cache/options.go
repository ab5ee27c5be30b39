package cache

import (
	"log/slog"
	"time"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	nullTTL        time.Duration
	lockTTL        time.Duration
	retryBackoff   time.Duration
	ttlJitter      float64
	rebuildWorkers int
	rebuildQueue   int
}

func defaultOptions() *options {
	return &options{
		nullTTL:        2 * time.Minute,
		lockTTL:        10 * time.Second,
		retryBackoff:   50 * time.Millisecond,
		rebuildWorkers: 10,
		rebuildQueue:   64,
	}
}

// WithNullTTL sets how long a null marker stays authoritative for an
// absent entity. Short by design: a newly created entity becomes
// visible once the marker expires.
// Default: 2 minutes
func WithNullTTL(d time.Duration) Option {
	return func(o *options) {
		o.nullTTL = d
	}
}

// WithLockTTL sets the TTL of the rebuild locks taken by the mutex and
// logical-expire strategies. Must exceed the slowest expected loader
// call.
// Default: 10 seconds
func WithLockTTL(d time.Duration) Option {
	return func(o *options) {
		o.lockTTL = d
	}
}

// WithRetryBackoff sets how long a mutex-strategy caller sleeps after
// failing to acquire the rebuild lock, before re-running the read
// sequence.
// Default: 50 milliseconds
func WithRetryBackoff(d time.Duration) Option {
	return func(o *options) {
		o.retryBackoff = d
	}
}

// WithTTLJitter spreads physical TTLs by up to the given fraction of
// the requested TTL, so keys written together do not expire together.
// A fraction of 0.1 turns a 30m TTL into 30m-33m. Zero disables jitter.
// Default: 0
func WithTTLJitter(fraction float64) Option {
	return func(o *options) {
		o.ttlJitter = fraction
	}
}

// WithRebuildWorkers sets the number of goroutines serving asynchronous
// logical-expire rebuilds.
// Default: 10
func WithRebuildWorkers(n int) Option {
	return func(o *options) {
		o.rebuildWorkers = n
	}
}

// WithRebuildQueue sets the rebuild task queue capacity. When the queue
// is full new tasks are dropped and their lock released; the next
// expired read resubmits.
// Default: 64
func WithRebuildQueue(n int) Option {
	return func(o *options) {
		o.rebuildQueue = n
	}
}

// WithLogger sets the logger used for background rebuild outcomes.
// Default: discard
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}
