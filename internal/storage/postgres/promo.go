package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/oakmart/lucky-store/internal/domain/promo"
)

const (
	// FOR UPDATE serializes every concurrent reconciliation on the single
	// counter row; the lock is released when the transaction ends. Keep the
	// critical section short: peek, increment, nothing else.
	peekNextSlotSQL = `SELECT current_count + 1 FROM global_order_counter WHERE id = 1 FOR UPDATE`

	commitSlotSQL = `UPDATE global_order_counter SET current_count = current_count + 1 WHERE id = 1`

	getSettingSQL = `SELECT value, is_active FROM store_settings WHERE key = $1`
)

var _ promo.Allocator = (*SlotAllocator)(nil)

// SlotAllocator implements promo.Allocator over the single-row global
// counter. It is only meaningful inside a transaction; the Store hands it
// out bound to one.
type SlotAllocator struct {
	db DBTX
}

// PeekNextSlot locks the counter row and returns current_count + 1 without
// mutating it.
func (a *SlotAllocator) PeekNextSlot(ctx context.Context) (int64, error) {
	var next int64
	if err := a.db.QueryRow(ctx, peekNextSlotSQL).Scan(&next); err != nil {
		return 0, errors.Wrap(err, "peek next slot")
	}
	return next, nil
}

// Commit increments the counter by exactly one.
func (a *SlotAllocator) Commit(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, commitSlotSQL); err != nil {
		return errors.Wrap(err, "increment global order counter")
	}
	return nil
}

var _ promo.Settings = (*StoreSettings)(nil)

// StoreSettings reads promotion configuration from the store_settings table.
type StoreSettings struct {
	db DBTX
}

// NthOrder returns the configured N for the lucky-Nth-customer promotion.
// ok is false when the rule is missing, inactive, or non-positive.
func (s *StoreSettings) NthOrder(ctx context.Context) (int64, bool, error) {
	var value int64
	var active bool
	err := s.db.QueryRow(ctx, getSettingSQL, promo.SettingNthOrder).Scan(&value, &active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, errors.Wrap(err, "load nth_order setting")
	}
	return value, active && value > 0, nil
}
