package seckill_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dealrush/dealrush/pkg/idgen"
	"github.com/dealrush/dealrush/pkg/kv"
	"github.com/dealrush/dealrush/pkg/lock"
	"github.com/dealrush/dealrush/seckill"
)

// memStore is an in-memory stand-in for the PostgreSQL repository. InTx
// holds one mutex for the whole unit of work, which gives the same
// serializable behavior the engine relies on, and rolls back staged
// changes when fn fails.
type memStore struct {
	mu       sync.Mutex
	vouchers map[int64]*seckill.Voucher
	orders   map[[2]int64]seckill.Order
}

func newMemStore(vouchers ...seckill.Voucher) *memStore {
	s := &memStore{
		vouchers: make(map[int64]*seckill.Voucher),
		orders:   make(map[[2]int64]seckill.Order),
	}
	for _, v := range vouchers {
		vv := v
		s.vouchers[v.ID] = &vv
	}
	return s
}

func (s *memStore) VoucherByID(_ context.Context, id int64) (seckill.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[id]
	if !ok {
		return seckill.Voucher{}, seckill.ErrVoucherNotFound
	}
	return *v, nil
}

func (s *memStore) stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vouchers[id].Stock
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) InTx(_ context.Context, fn func(tx seckill.OrderTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

type memTx struct {
	s           *memStore
	decremented []int64
	inserted    [][2]int64
}

func (t *memTx) CountOrders(_ context.Context, userID, voucherID int64) (int64, error) {
	if _, ok := t.s.orders[[2]int64{userID, voucherID}]; ok {
		return 1, nil
	}
	return 0, nil
}

func (t *memTx) DecrementStock(_ context.Context, voucherID int64) (bool, error) {
	v, ok := t.s.vouchers[voucherID]
	if !ok || v.Stock <= 0 {
		return false, nil
	}
	v.Stock--
	t.decremented = append(t.decremented, voucherID)
	return true, nil
}

func (t *memTx) InsertOrder(_ context.Context, o seckill.Order) error {
	key := [2]int64{o.UserID, o.VoucherID}
	if _, ok := t.s.orders[key]; ok {
		return seckill.ErrDuplicateOrder
	}
	t.s.orders[key] = o
	t.inserted = append(t.inserted, key)
	return nil
}

func (t *memTx) rollback() {
	for _, id := range t.decremented {
		t.s.vouchers[id].Stock++
	}
	for _, key := range t.inserted {
		delete(t.s.orders, key)
	}
}

type capturingPublisher struct {
	mu     sync.Mutex
	orders []seckill.Order
	err    error
}

func (p *capturingPublisher) PublishOrderCreated(_ context.Context, o seckill.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.orders = append(p.orders, o)
	return nil
}

func activeVoucher(id int64, stock int) seckill.Voucher {
	now := time.Now()
	return seckill.Voucher{
		ID:        id,
		Title:     "flash deal",
		Stock:     stock,
		BeginTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
	}
}

func newEngine(store *memStore, opts ...seckill.EngineOption) *seckill.Engine {
	kvs := kv.NewMemory()
	return seckill.NewEngine(store, store, lock.New(kvs), idgen.New(kvs), opts...)
}

func TestEngine_Purchase_Validation(t *testing.T) {
	t.Parallel()

	t.Run("unknown voucher", func(t *testing.T) {
		t.Parallel()

		e := newEngine(newMemStore())
		_, err := e.Purchase(context.Background(), 1, 404)
		require.ErrorIs(t, err, seckill.ErrVoucherNotFound)
	})

	t.Run("sale not started", func(t *testing.T) {
		t.Parallel()

		v := activeVoucher(7, 10)
		v.BeginTime = time.Now().Add(time.Hour)
		v.EndTime = time.Now().Add(2 * time.Hour)
		e := newEngine(newMemStore(v))

		_, err := e.Purchase(context.Background(), 1, 7)
		require.ErrorIs(t, err, seckill.ErrNotStarted)
	})

	t.Run("sale ended", func(t *testing.T) {
		t.Parallel()

		v := activeVoucher(7, 10)
		v.BeginTime = time.Now().Add(-2 * time.Hour)
		v.EndTime = time.Now().Add(-time.Hour)
		e := newEngine(newMemStore(v))

		_, err := e.Purchase(context.Background(), 1, 7)
		require.ErrorIs(t, err, seckill.ErrEnded)
	})

	t.Run("zero stock rejected before locking", func(t *testing.T) {
		t.Parallel()

		e := newEngine(newMemStore(activeVoucher(7, 0)))
		_, err := e.Purchase(context.Background(), 1, 7)
		require.ErrorIs(t, err, seckill.ErrStockExhausted)
	})
}

func TestEngine_Purchase_Success(t *testing.T) {
	t.Parallel()

	store := newMemStore(activeVoucher(7, 3))
	pub := &capturingPublisher{}
	e := newEngine(store, seckill.WithPublisher(pub))

	orderID, err := e.Purchase(context.Background(), 42, 7)
	require.NoError(t, err)
	require.Positive(t, orderID)

	require.Equal(t, 2, store.stock(7))
	require.Equal(t, 1, store.orderCount())

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.orders, 1)
	require.Equal(t, orderID, pub.orders[0].ID)
	require.EqualValues(t, 42, pub.orders[0].UserID)
}

func TestEngine_Purchase_DuplicateOrder(t *testing.T) {
	t.Parallel()

	store := newMemStore(activeVoucher(7, 10))
	e := newEngine(store)
	ctx := context.Background()

	_, err := e.Purchase(ctx, 42, 7)
	require.NoError(t, err)

	_, err = e.Purchase(ctx, 42, 7)
	require.ErrorIs(t, err, seckill.ErrDuplicateOrder)

	// The rejection rolled back cleanly: only one unit of stock is gone.
	require.Equal(t, 9, store.stock(7))
	require.Equal(t, 1, store.orderCount())
}

func TestEngine_Purchase_SameUserRace(t *testing.T) {
	t.Parallel()

	store := newMemStore(activeVoucher(7, 1))
	// Generous lock budget so every attempt resolves to a business
	// outcome instead of lock contention.
	e := newEngine(store, seckill.WithUserLockRetry(200, time.Millisecond))
	ctx := context.Background()

	const attempts = 20
	var wg sync.WaitGroup
	outcomes := make(chan error, attempts)

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Purchase(ctx, 42, 7)
			outcomes <- err
		}()
	}
	wg.Wait()
	close(outcomes)

	var successes, rejections int
	for err := range outcomes {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, seckill.ErrDuplicateOrder), errors.Is(err, seckill.ErrStockExhausted):
			rejections++
		default:
			t.Errorf("unexpected outcome: %v", err)
		}
	}

	require.Equal(t, 1, successes, "exactly one attempt may succeed")
	require.Equal(t, attempts-1, rejections)
	require.Equal(t, 0, store.stock(7))
	require.Equal(t, 1, store.orderCount())
}

func TestEngine_Purchase_DistinctUsersLimitedStock(t *testing.T) {
	t.Parallel()

	const stock = 5
	const users = 100

	store := newMemStore(activeVoucher(7, stock))
	e := newEngine(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	outcomes := make(chan error, users)

	for u := int64(1); u <= users; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := e.Purchase(ctx, userID, 7)
			outcomes <- err
		}(u)
	}
	wg.Wait()
	close(outcomes)

	var successes, soldOut int
	for err := range outcomes {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, seckill.ErrStockExhausted):
			soldOut++
		default:
			t.Errorf("unexpected outcome: %v", err)
		}
	}

	require.Equal(t, stock, successes, "successes must equal initial stock")
	require.Equal(t, users-stock, soldOut)
	require.Equal(t, 0, store.stock(7), "stock drains to exactly zero")
	require.Equal(t, stock, store.orderCount())
}

func TestEngine_Purchase_LockContention(t *testing.T) {
	t.Parallel()

	store := newMemStore(activeVoucher(7, 10))
	kvs := kv.NewMemory()
	e := seckill.NewEngine(store, store, lock.New(kvs), idgen.New(kvs),
		seckill.WithUserLockRetry(2, time.Millisecond))
	ctx := context.Background()

	// Another instance holds this user's lock.
	ok, err := kvs.SetNX(ctx, "lock:seckill:user:42", []byte("other"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = e.Purchase(ctx, 42, 7)
	require.ErrorIs(t, err, seckill.ErrLockContention)

	// Nothing was touched.
	require.Equal(t, 10, store.stock(7))
	require.Equal(t, 0, store.orderCount())
}

// cancelAwareKV fails compare-and-delete once its context is canceled,
// the way a real network client would.
type cancelAwareKV struct {
	kv.Store
}

func (s cancelAwareKV) CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.Store.CompareAndDelete(ctx, key, value)
}

// cancelingPublisher cancels the request context after the order
// committed, simulating a caller that disconnects at that moment.
type cancelingPublisher struct {
	cancel context.CancelFunc
}

func (p *cancelingPublisher) PublishOrderCreated(context.Context, seckill.Order) error {
	p.cancel()
	return nil
}

func TestEngine_Purchase_CanceledCallerReleasesUserLock(t *testing.T) {
	t.Parallel()

	store := newMemStore(activeVoucher(7, 10))
	kvs := kv.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := seckill.NewEngine(store, store, lock.New(cancelAwareKV{kvs}), idgen.New(kvs),
		seckill.WithPublisher(&cancelingPublisher{cancel: cancel}))

	orderID, err := e.Purchase(ctx, 42, 7)
	require.NoError(t, err)
	require.Positive(t, orderID)

	// The user lock must not linger until its TTL.
	ok, err := kvs.SetNX(context.Background(), "lock:seckill:user:42", []byte("x"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "user lock must be released despite the canceled request")
}

func TestEngine_Purchase_PublisherFailureDoesNotFailOrder(t *testing.T) {
	t.Parallel()

	store := newMemStore(activeVoucher(7, 1))
	pub := &capturingPublisher{err: errors.New("broker down")}
	e := newEngine(store, seckill.WithPublisher(pub))

	orderID, err := e.Purchase(context.Background(), 42, 7)
	require.NoError(t, err)
	require.Positive(t, orderID)
	require.Equal(t, 1, store.orderCount())
}

func TestEngine_Purchase_OrderIDsAreTimeOrdered(t *testing.T) {
	t.Parallel()

	store := newMemStore(activeVoucher(7, 50))
	e := newEngine(store)
	ctx := context.Background()

	var prev int64
	for u := int64(1); u <= 10; u++ {
		id, err := e.Purchase(ctx, u, 7)
		require.NoError(t, err)
		require.Greater(t, id, prev)
		prev = id
	}
}
