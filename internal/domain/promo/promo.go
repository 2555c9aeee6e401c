// Package promo owns the lucky-Nth-customer promotion: a single global
// monotonic order counter and the rule deciding which slot wins a reward.
package promo

import "context"

// SettingNthOrder is the store_settings key holding N for the
// every-Nth-order promotion.
const SettingNthOrder = "nth_order"

// Allocator is the promotion slot allocator over the single-row global
// counter. PeekNextSlot must take an exclusive lock on the counter row that
// is held until the enclosing transaction finishes, serializing all
// concurrent placements: each integer slot is observed by exactly one
// transaction.
type Allocator interface {
	// PeekNextSlot returns current_count + 1 without mutating the counter.
	PeekNextSlot(ctx context.Context) (int64, error)
	// Commit increments the counter by exactly one. Called only once the
	// surrounding order is guaranteed to have succeeded.
	Commit(ctx context.Context) error
}

// Settings reads promotion configuration.
type Settings interface {
	// NthOrder returns the configured N. ok is false when the promotion
	// rule is absent or inactive, in which case the reward check is skipped
	// entirely.
	NthOrder(ctx context.Context) (n int64, ok bool, err error)
}

// IsRewardSlot reports whether the given slot wins a reward under rule N.
func IsRewardSlot(slot, n int64) bool {
	return n > 0 && slot%n == 0
}
