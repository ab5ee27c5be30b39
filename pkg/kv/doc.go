// Package kv defines the key-value store contract shared by the cache
// client, the distributed lock, and the id generator, together with a
// Redis-backed implementation for production and an in-memory one for
// tests.
//
// The contract is deliberately small: plain byte values, TTL-capable
// writes, an atomic set-if-absent, a compare-and-delete for lock
// ownership checks, and an atomic counter increment. Anything richer
// belongs in the packages built on top.
//
// # Usage
//
//	client := redis.MustOpen(ctx, os.Getenv("REDIS_URL"))
//	store := kv.NewRedis(client)
//
//	if err := store.Set(ctx, "greeting", []byte("hi"), time.Minute); err != nil {
//		log.Fatal(err)
//	}
//
// Absent keys are reported via [ErrNotFound]; infrastructure failures
// are returned as-is from the underlying client.
package kv
