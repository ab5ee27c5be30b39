package seckill

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/dealrush/dealrush/pkg/cache"
)

// Cache keys for the voucher catalog. Pass-through entries hold a bare
// voucher while logical-expire entries hold an expiry envelope, so the
// hot path gets its own prefix; the two encodings must never share a
// key. Voucher ids are numeric, so the listing key can never collide
// with an entity key.
const (
	voucherKeyPrefix    = "cache:voucher:"
	voucherHotKeyPrefix = "cache:voucher:hot:"
	voucherListKey      = "all"
)

// VoucherRepository is the store-of-record surface the catalog fronts.
type VoucherRepository interface {
	VoucherByID(ctx context.Context, id int64) (Voucher, error)
	ListVouchers(ctx context.Context) ([]Voucher, error)
	UpdateVoucher(ctx context.Context, v Voucher) error
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithVoucherTTL sets the physical TTL for cached vouchers and the
// cached listing.
// Default: 30 minutes
func WithVoucherTTL(d time.Duration) CatalogOption {
	return func(c *Catalog) {
		c.ttl = d
	}
}

// WithHotTTL sets the logical freshness window for pre-warmed hot
// vouchers served by HotVoucherByID.
// Default: 20 seconds
func WithHotTTL(d time.Duration) CatalogOption {
	return func(c *Catalog) {
		c.hotTTL = d
	}
}

// Catalog serves voucher reads cache-aside and owns the write path's
// cache invalidation.
type Catalog struct {
	repo   VoucherRepository
	cache  *cache.Client
	ttl    time.Duration
	hotTTL time.Duration
}

// NewCatalog creates a catalog over the given repository and cache
// client.
func NewCatalog(repo VoucherRepository, c *cache.Client, opts ...CatalogOption) *Catalog {
	cat := &Catalog{
		repo:   repo,
		cache:  c,
		ttl:    30 * time.Minute,
		hotTTL: 20 * time.Second,
	}
	for _, opt := range opts {
		opt(cat)
	}
	return cat
}

// VoucherByID resolves a voucher with the penetration-guarded
// pass-through strategy: absent ids are remembered with a short-lived
// null marker so they stop reaching the database.
func (c *Catalog) VoucherByID(ctx context.Context, id int64) (Voucher, error) {
	v, err := cache.GetWithPassThrough(ctx, c.cache, voucherKeyPrefix, formatID(id), c.ttl, c.load)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return Voucher{}, ErrVoucherNotFound
		}
		return Voucher{}, err
	}
	return v, nil
}

// HotVoucherByID resolves a voucher with the logical-expire strategy:
// bounded staleness, no blocking, no synchronous database fallback. The
// voucher must have been pre-warmed with WarmVoucher; an unwarmed id is
// reported as ErrVoucherNotFound.
func (c *Catalog) HotVoucherByID(ctx context.Context, id int64) (Voucher, error) {
	v, err := cache.GetWithLogicalExpire(ctx, c.cache, voucherHotKeyPrefix, formatID(id), c.hotTTL, c.load)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return Voucher{}, ErrVoucherNotFound
		}
		return Voucher{}, err
	}
	return v, nil
}

// WarmVoucher pre-populates the cache entry for a voucher with an
// embedded logical expiry, ahead of its sale window opening.
func (c *Catalog) WarmVoucher(ctx context.Context, id int64, freshFor time.Duration) error {
	return cache.Warm(ctx, c.cache, voucherHotKeyPrefix, formatID(id), freshFor, c.load)
}

// ListVouchers returns all vouchers, cached as a whole under one key.
// An empty catalog is a valid cached value, so no null marker is
// involved here.
func (c *Catalog) ListVouchers(ctx context.Context) ([]Voucher, error) {
	return cache.GetWithPassThrough(ctx, c.cache, voucherKeyPrefix, voucherListKey, c.ttl,
		func(ctx context.Context, _ string) ([]Voucher, error) {
			return c.repo.ListVouchers(ctx)
		})
}

// UpdateVoucher writes the voucher to the store of record and then
// invalidates its cache entry and the listing. Deleting instead of
// overwriting keeps a racing reader from persisting a stale copy past
// the update.
func (c *Catalog) UpdateVoucher(ctx context.Context, v Voucher) error {
	if err := c.repo.UpdateVoucher(ctx, v); err != nil {
		return err
	}
	// The hot entry is left in place: logical-expire readers tolerate
	// staleness bounded by the freshness window and pick up the update
	// on the next background refresh.
	if err := c.cache.Invalidate(ctx, voucherKeyPrefix, formatID(v.ID)); err != nil {
		return err
	}
	return c.cache.Invalidate(ctx, voucherKeyPrefix, voucherListKey)
}

// load adapts the repository to the cache loader contract.
func (c *Catalog) load(ctx context.Context, id string) (Voucher, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Voucher{}, cache.ErrNotFound
	}
	v, err := c.repo.VoucherByID(ctx, n)
	if err != nil {
		if errors.Is(err, ErrVoucherNotFound) {
			return Voucher{}, cache.ErrNotFound
		}
		return Voucher{}, err
	}
	return v, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

var _ VoucherReader = (*Catalog)(nil)
