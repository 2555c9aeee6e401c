package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oakmart/lucky-store/internal/domain/coupon"
)

const (
	couponColumns = `code, discount_percentage, slot_number, expires_at,
		is_used, is_active, reserved_by_user, generated_by_order, created_at`

	getCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = UPPER($1)`

	// FOR UPDATE holds the row lock until the surrounding transaction ends,
	// serializing concurrent claims of the same code.
	claimCouponSQL = getCouponSQL + ` FOR UPDATE`

	markCouponUsedSQL = `UPDATE coupons
		SET is_used = TRUE, updated_at = now()
		WHERE UPPER(code) = UPPER($1)`

	issueRewardSQL = `INSERT INTO coupons
		(code, discount_percentage, slot_number, expires_at, is_active, reserved_by_user, generated_by_order)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6)`
)

var _ coupon.Ledger = (*CouponLedger)(nil)

// CouponLedger implements coupon.Ledger backed by PostgreSQL.
type CouponLedger struct {
	db DBTX
}

// NewCouponLedger returns a CouponLedger that uses the given pool.
func NewCouponLedger(pool *pgxpool.Pool) *CouponLedger {
	return &CouponLedger{db: pool}
}

// FindByCode looks up a coupon by code (case-insensitive). Pure read.
func (l *CouponLedger) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return l.get(ctx, getCouponSQL, code)
}

// Claim loads the coupon under an exclusive row lock. The lock lives until
// the enclosing transaction commits or aborts; a second concurrent claimant
// blocks here and then re-reads the post-commit state.
func (l *CouponLedger) Claim(ctx context.Context, code string) (*coupon.Coupon, error) {
	return l.get(ctx, claimCouponSQL, code)
}

func (l *CouponLedger) get(ctx context.Context, sql, code string) (*coupon.Coupon, error) {
	rows, err := l.db.Query(ctx, sql, code)
	if err != nil {
		return nil, errors.Wrapf(err, "query coupon %q", code)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "scan coupon %q", code)
	}
	return &c, nil
}

// MarkUsed flips is_used inside the caller's transaction. The consuming
// order records the code on its own row in the same unit.
func (l *CouponLedger) MarkUsed(ctx context.Context, code, orderID string) error {
	tag, err := l.db.Exec(ctx, markCouponUsedSQL, code)
	if err != nil {
		return errors.Wrapf(err, "mark coupon %q used for order %q", code, orderID)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// IssueReward inserts a fresh reward coupon for the slot. A racing insert
// for the same slot loses on the unique slot_number constraint.
func (l *CouponLedger) IssueReward(ctx context.Context, slot int64, orderID, userID string, now time.Time) (*coupon.Coupon, error) {
	expires := now.Add(coupon.RewardTTL)
	c := &coupon.Coupon{
		Code:               coupon.NewRewardCode(slot),
		DiscountPercent:    coupon.RewardDiscountPercent,
		SlotNumber:         &slot,
		ExpiresAt:          &expires,
		IsActive:           true,
		ReservedByUser:     &userID,
		GeneratedByOrderID: &orderID,
	}

	_, err := l.db.Exec(ctx, issueRewardSQL,
		c.Code, c.DiscountPercent, slot, expires, userID, orderID,
	)
	if err != nil {
		if isUniqueViolation(err, "coupons_slot_number_key") {
			return nil, coupon.ErrDuplicateSlot
		}
		return nil, errors.Wrapf(err, "issue reward coupon for slot %d", slot)
	}
	return c, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(
		&c.Code, &c.DiscountPercent, &c.SlotNumber, &c.ExpiresAt,
		&c.IsUsed, &c.IsActive, &c.ReservedByUser, &c.GeneratedByOrderID, &c.CreatedAt,
	)
	return c, err
}
