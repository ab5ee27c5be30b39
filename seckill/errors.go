package seckill

import "errors"

// Business rejections. These are expected negative outcomes of a
// purchase attempt, not faults: callers branch on them with errors.Is
// and translate them to user-facing responses.
var (
	// ErrVoucherNotFound is returned when the voucher does not exist.
	ErrVoucherNotFound = errors.New("seckill: voucher not found")

	// ErrNotStarted is returned for purchase attempts before the
	// voucher window opens.
	ErrNotStarted = errors.New("seckill: sale has not started")

	// ErrEnded is returned for purchase attempts after the voucher
	// window closed.
	ErrEnded = errors.New("seckill: sale has ended")

	// ErrStockExhausted is returned when the conditional decrement
	// affects no rows (or the advisory pre-check already sees zero).
	ErrStockExhausted = errors.New("seckill: out of stock")

	// ErrDuplicateOrder is returned when the user already holds an
	// order for this voucher.
	ErrDuplicateOrder = errors.New("seckill: duplicate order")

	// ErrLockContention is returned when the per-user lock could not be
	// acquired within the retry budget. Transient: the caller may retry
	// the whole operation.
	ErrLockContention = errors.New("seckill: user lock contention")
)
