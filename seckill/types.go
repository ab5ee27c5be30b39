package seckill

import "time"

// Voucher is a flash-sale voucher: purchasable only inside its
// [BeginTime, EndTime] window and only while stock remains.
//
// Stock is never read-then-written by application code; the only
// decrement path is the conditional update issued inside the purchase
// transaction.
type Voucher struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Stock     int       `json:"stock"`
	BeginTime time.Time `json:"beginTime"`
	EndTime   time.Time `json:"endTime"`
}

// Active reports whether the voucher window is open at t.
func (v Voucher) Active(t time.Time) bool {
	return !t.Before(v.BeginTime) && !t.After(v.EndTime)
}

// Order is a completed purchase. At most one order exists per
// (UserID, VoucherID) pair; the id is minted by the distributed id
// generator, so it is time-ordered across all instances.
type Order struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	VoucherID int64     `json:"voucherId"`
	CreatedAt time.Time `json:"createdAt"`
}
