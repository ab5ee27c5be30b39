// Package idgen mints globally unique, time-ordered 64-bit identifiers.
//
// An identifier packs the seconds elapsed since a fixed epoch anchor
// into the high bits and a per-day sequence number into the low 32
// bits. The sequence comes from an atomic counter in the shared
// key-value store, scoped to the business tag and the current date, so
// identifiers are unique across every process sharing the store and
// strictly increasing with generation time.
package idgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dealrush/dealrush/pkg/kv"
)

const (
	// sequenceBits is the width of the per-second sequence segment.
	sequenceBits = 32

	// counterKeyFormat yields a fresh counter key each day, so the
	// sequence effectively resets at midnight without explicit cleanup.
	counterKeyFormat = "2006:01:02"
)

// epochAnchor is 2022-01-01T00:00:00Z.
var epochAnchor = time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC)

// ErrUnavailable is returned when the counter increment cannot be
// performed. NextID never silently falls back to a possibly duplicate
// identifier.
var ErrUnavailable = errors.New("idgen: counter unavailable")

// Option configures a Generator.
type Option func(*Generator)

// WithNow overrides the wall-clock source. Intended for tests.
func WithNow(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// Generator produces identifiers backed by a shared atomic counter.
type Generator struct {
	store kv.Store
	now   func() time.Time
}

// New creates a Generator on top of the given store.
func New(store kv.Store, opts ...Option) *Generator {
	g := &Generator{store: store, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NextID returns the next identifier for the given business tag, e.g.
// "order". Identifiers for the same tag are strictly increasing within
// a day and unique within a second.
func (g *Generator) NextID(ctx context.Context, tag string) (int64, error) {
	now := g.now().UTC()
	seconds := now.Unix() - epochAnchor.Unix()

	seq, err := g.store.Incr(ctx, counterKey(tag, now))
	if err != nil {
		return 0, errors.Join(ErrUnavailable, err)
	}

	return seconds<<sequenceBits | seq, nil
}

// Timestamp extracts the generation time embedded in an identifier.
func Timestamp(id int64) time.Time {
	return epochAnchor.Add(time.Duration(id>>sequenceBits) * time.Second)
}

func counterKey(tag string, now time.Time) string {
	return fmt.Sprintf("icr:%s:%s", tag, now.Format(counterKeyFormat))
}
