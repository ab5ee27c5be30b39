// Package cache implements a cache-aside client with three resilience
// strategies against cache penetration and cache breakdown.
//
//   - [GetWithPassThrough] guards against penetration: a miss that the
//     loader cannot satisfy writes a short-lived null marker, so
//     repeated lookups of non-existent ids stop reaching the store of
//     record.
//   - [GetWithMutex] guards against breakdown by serializing rebuilds
//     of an expired key behind a distributed lock. Losing callers back
//     off briefly and re-run the read sequence; the winner is the only
//     one to invoke the loader.
//   - [GetWithLogicalExpire] guards against breakdown without ever
//     blocking the caller. Entries carry an embedded logical expiry and
//     no physical TTL; an expired read returns the stale value
//     immediately and, if it wins the rebuild lock, hands the refresh
//     to a bounded background worker pool.
//
// All strategies share the write-path rule: updating the backing entity
// deletes the cache key ([Client.Invalidate]) instead of overwriting
// it, forcing the next read to repopulate.
//
// # Choosing a strategy
//
// Pass-through is the default. The mutex strategy trades latency under
// contention for a strict single-loader guarantee. Logical expiration
// trades bounded staleness for flat tail latency and assumes the cache
// has been pre-warmed with [Warm]; it never falls back to the loader
// synchronously.
//
// # Usage
//
//	c := cache.New(store,
//	    cache.WithNullTTL(2*time.Minute),
//	    cache.WithRebuildWorkers(10),
//	)
//	defer c.Close()
//
//	voucher, err := cache.GetWithPassThrough(ctx, c, "cache:voucher:", "7",
//	    30*time.Minute, loadVoucher)
//	if errors.Is(err, cache.ErrNotFound) {
//	    // authoritative absence
//	}
package cache
