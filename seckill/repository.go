package seckill

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealrush/dealrush/pkg/db"
)

// VoucherReader resolves vouchers for the purchase path. Satisfied by
// both Repository (direct reads) and Catalog (cache-aside reads).
type VoucherReader interface {
	VoucherByID(ctx context.Context, id int64) (Voucher, error)
}

// OrderTx is the unit of work executed inside one purchase
// transaction. Its three operations are atomic relative to each other:
// a crash between them can never leave stock decremented without an
// order, or vice versa.
type OrderTx interface {
	// CountOrders returns how many orders the user holds for the voucher.
	CountOrders(ctx context.Context, userID, voucherID int64) (int64, error)

	// DecrementStock issues the conditional decrement
	// (stock = stock - 1 WHERE id = ? AND stock > 0) and reports whether
	// a row was affected. This is the authoritative stock guard.
	DecrementStock(ctx context.Context, voucherID int64) (bool, error)

	// InsertOrder persists the order row. Returns ErrDuplicateOrder on
	// a (user_id, voucher_id) uniqueness violation.
	InsertOrder(ctx context.Context, o Order) error
}

// OrderStore runs order units of work transactionally.
type OrderStore interface {
	InTx(ctx context.Context, fn func(tx OrderTx) error) error
}

// uniqueViolation is the PostgreSQL error code for a violated UNIQUE
// constraint.
const uniqueViolation = "23505"

// Repository is the PostgreSQL store of record for vouchers and orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a repository on top of the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// VoucherByID loads one voucher. Returns ErrVoucherNotFound when no row
// exists.
func (r *Repository) VoucherByID(ctx context.Context, id int64) (Voucher, error) {
	var v Voucher
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, stock, begin_time, end_time FROM seckill_vouchers WHERE id = $1`,
		id,
	).Scan(&v.ID, &v.Title, &v.Stock, &v.BeginTime, &v.EndTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, ErrVoucherNotFound
		}
		return Voucher{}, err
	}
	return v, nil
}

// ListVouchers returns all vouchers ordered by their window opening.
func (r *Repository) ListVouchers(ctx context.Context) ([]Voucher, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, stock, begin_time, end_time FROM seckill_vouchers ORDER BY begin_time, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Voucher
	for rows.Next() {
		var v Voucher
		if err := rows.Scan(&v.ID, &v.Title, &v.Stock, &v.BeginTime, &v.EndTime); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CreateVoucher inserts a voucher row.
func (r *Repository) CreateVoucher(ctx context.Context, v Voucher) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO seckill_vouchers (id, title, stock, begin_time, end_time) VALUES ($1, $2, $3, $4, $5)`,
		v.ID, v.Title, v.Stock, v.BeginTime, v.EndTime)
	return err
}

// UpdateVoucher rewrites a voucher row. Returns ErrVoucherNotFound when
// no row matched. Cache invalidation is the caller's job (see
// Catalog.UpdateVoucher).
func (r *Repository) UpdateVoucher(ctx context.Context, v Voucher) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE seckill_vouchers SET title = $2, stock = $3, begin_time = $4, end_time = $5 WHERE id = $1`,
		v.ID, v.Title, v.Stock, v.BeginTime, v.EndTime)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVoucherNotFound
	}
	return nil
}

// OrdersByUser returns the user's orders, newest first.
func (r *Repository) OrdersByUser(ctx context.Context, userID int64) ([]Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, voucher_id, created_at FROM voucher_orders WHERE user_id = $1 ORDER BY id DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.VoucherID, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// InTx runs fn inside one database transaction.
func (r *Repository) InTx(ctx context.Context, fn func(tx OrderTx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&repoTx{tx: tx})
	})
}

type repoTx struct {
	tx pgx.Tx
}

func (t *repoTx) CountOrders(ctx context.Context, userID, voucherID int64) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx,
		`SELECT count(*) FROM voucher_orders WHERE user_id = $1 AND voucher_id = $2`,
		userID, voucherID,
	).Scan(&n)
	return n, err
}

func (t *repoTx) DecrementStock(ctx context.Context, voucherID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE seckill_vouchers SET stock = stock - 1 WHERE id = $1 AND stock > 0`,
		voucherID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *repoTx) InsertOrder(ctx context.Context, o Order) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO voucher_orders (id, user_id, voucher_id, created_at) VALUES ($1, $2, $3, $4)`,
		o.ID, o.UserID, o.VoucherID, o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateOrder
		}
		return err
	}
	return nil
}

var (
	_ VoucherReader = (*Repository)(nil)
	_ OrderStore    = (*Repository)(nil)
)
