package seckill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dealrush/dealrush/pkg/idgen"
	"github.com/dealrush/dealrush/pkg/lock"
)

// orderTag scopes the id generator's daily counter for orders.
const orderTag = "order"

// userLockKey serializes all purchase attempts of one user, across
// every instance sharing the key-value store. Scoped to the user, not
// the (user, voucher) pair: the lock's job is to keep one user's racing
// requests out of the transaction concurrently.
func userLockKey(userID int64) string {
	return fmt.Sprintf("lock:seckill:user:%d", userID)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithUserLockTTL sets the per-user lock TTL. The TTL is a crash safety
// net; it must exceed the duration of the purchase transaction.
// Default: 10 seconds
func WithUserLockTTL(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.lockTTL = d
	}
}

// WithUserLockRetry bounds the lock acquisition: attempts tries with a
// fixed backoff between them, then ErrLockContention. Keeps a request
// from hanging behind a stuck holder.
// Default: 5 attempts, 20ms backoff
func WithUserLockRetry(attempts int, backoff time.Duration) EngineOption {
	return func(e *Engine) {
		e.lockAttempts = attempts
		e.lockBackoff = backoff
	}
}

// WithEngineLogger sets the engine's logger.
// Default: discard
func WithEngineLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = log
	}
}

// WithPublisher sets an optional publisher notified after each
// committed order. Publish failures are logged, never surfaced: the
// order already exists.
func WithPublisher(p OrderPublisher) EngineOption {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithNow overrides the wall-clock source. Intended for tests.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// OrderPublisher receives committed orders, e.g. for downstream
// fulfillment pipelines.
type OrderPublisher interface {
	PublishOrderCreated(ctx context.Context, o Order) error
}

// Engine orchestrates seckill purchases.
type Engine struct {
	vouchers  VoucherReader
	orders    OrderStore
	locker    *lock.Locker
	ids       *idgen.Generator
	publisher OrderPublisher
	log       *slog.Logger
	now       func() time.Time

	lockTTL      time.Duration
	lockAttempts int
	lockBackoff  time.Duration
}

// NewEngine assembles a purchase engine. The locker and id generator
// must share the key-value store with every other instance of the
// service; a process-local substitute would silently void both the
// one-order-per-user guarantee and id uniqueness.
func NewEngine(vouchers VoucherReader, orders OrderStore, locker *lock.Locker, ids *idgen.Generator, opts ...EngineOption) *Engine {
	e := &Engine{
		vouchers:     vouchers,
		orders:       orders,
		locker:       locker,
		ids:          ids,
		now:          time.Now,
		lockTTL:      10 * time.Second,
		lockAttempts: 5,
		lockBackoff:  20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e
}

// Purchase runs one purchase attempt for (userID, voucherID) and
// returns the minted order id on success.
//
// Rejections are the package's sentinel errors: ErrVoucherNotFound,
// ErrNotStarted, ErrEnded, ErrStockExhausted, ErrDuplicateOrder, and
// ErrLockContention. Anything else is an infrastructure failure.
func (e *Engine) Purchase(ctx context.Context, userID, voucherID int64) (int64, error) {
	v, err := e.vouchers.VoucherByID(ctx, voucherID)
	if err != nil {
		return 0, err
	}

	now := e.now()
	if now.Before(v.BeginTime) {
		return 0, ErrNotStarted
	}
	if now.After(v.EndTime) {
		return 0, ErrEnded
	}
	// Advisory short-circuit only; the conditional decrement below is
	// the authoritative check.
	if v.Stock <= 0 {
		return 0, ErrStockExhausted
	}

	m, err := e.acquireUserLock(ctx, userID)
	if err != nil {
		return 0, err
	}
	defer func() {
		// The release must survive the request being canceled mid-flight,
		// or the lock lingers until its TTL.
		if err := m.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, lock.ErrNotHeld) {
			e.log.WarnContext(ctx, "failed to release user lock", "user_id", userID, "error", err)
		}
	}()

	var order Order
	err = e.orders.InTx(ctx, func(tx OrderTx) error {
		n, err := tx.CountOrders(ctx, userID, voucherID)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicateOrder
		}

		ok, err := tx.DecrementStock(ctx, voucherID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrStockExhausted
		}

		id, err := e.ids.NextID(ctx, orderTag)
		if err != nil {
			return err
		}
		order = Order{ID: id, UserID: userID, VoucherID: voucherID, CreatedAt: now}
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		return 0, err
	}

	e.publishCreated(ctx, order)

	return order.ID, nil
}

// acquireUserLock takes the per-user lock with a bounded retry budget.
func (e *Engine) acquireUserLock(ctx context.Context, userID int64) (*lock.Mutex, error) {
	key := userLockKey(userID)

	attempts := max(e.lockAttempts, 1)
	for i := range attempts {
		m, ok, err := e.locker.Acquire(ctx, key, e.lockTTL)
		if err != nil {
			return nil, err
		}
		if ok {
			return m, nil
		}

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.lockBackoff):
		}
	}

	return nil, ErrLockContention
}

// publishCreated hands a committed order to the publisher, if any.
func (e *Engine) publishCreated(ctx context.Context, o Order) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishOrderCreated(ctx, o); err != nil {
		e.log.ErrorContext(ctx, "failed to publish order-created event",
			"order_id", o.ID, "user_id", o.UserID, "voucher_id", o.VoucherID, "error", err)
	}
}
