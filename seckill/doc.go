// Package seckill implements the flash-sale order pipeline: time-boxed
// vouchers with strictly limited stock, sold under heavy concurrent
// load without overselling or duplicate orders.
//
// [Engine.Purchase] drives the state machine for one purchase attempt:
// window validation, an advisory stock check, a per-user distributed
// lock, then, inside a single database transaction, the duplicate
// check, the conditional stock decrement, and the order insert. The
// conditional decrement (stock = stock - 1 WHERE stock > 0) is the
// authoritative guard against overselling; the user lock exists solely
// to prevent one user racing two attempts into two orders, which the
// decrement alone cannot stop. A UNIQUE constraint on (user_id,
// voucher_id) backstops the duplicate check at the database level.
//
// [Catalog] serves voucher reads through the cache-resilience layer and
// owns the write-path invalidation rule: voucher updates delete the
// cached copy rather than overwriting it.
//
// Business rejections (window closed, sold out, duplicate order) are
// sentinel errors checked with errors.Is; infrastructure failures are
// returned wrapped and are never mistaken for rejections.
package seckill
