// Package coupon owns promotional coupon records, their validity predicate,
// and the ledger contract for atomically claiming a coupon for one order.
package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Validation outcomes. Each one is an ordinary business result, not a system
// failure.
var (
	ErrNotFound    = errors.New("coupon not found")
	ErrAlreadyUsed = errors.New("coupon already used")
	ErrInactive    = errors.New("coupon inactive")
	ErrExpired     = errors.New("coupon expired")
	ErrWrongOwner  = errors.New("coupon reserved for another user")
	// ErrDuplicateSlot is returned when a reward for the same slot number
	// was already issued. The race is resolved by the unique constraint on
	// slot_number, never by pre-checking.
	ErrDuplicateSlot = errors.New("reward slot already taken")
)

// RewardDiscountPercent is the discount granted to lucky-Nth-customer
// reward coupons.
const RewardDiscountPercent = 10

// RewardTTL is how long a reward coupon stays redeemable after issue.
const RewardTTL = 10 * time.Minute

// Coupon is a single-use percentage discount. A coupon with a SlotNumber was
// issued as a lucky-Nth-customer reward; ReservedByUser restricts redemption
// to one user.
type Coupon struct {
	Code               string
	DiscountPercent    int64
	SlotNumber         *int64
	ExpiresAt          *time.Time
	IsUsed             bool
	IsActive           bool
	ReservedByUser     *string
	GeneratedByOrderID *string
	CreatedAt          time.Time
}

// Validate is the validity predicate: a pure function of the coupon's state
// against the requesting user and the current time. It is evaluated fresh on
// every use, never cached.
func Validate(c *Coupon, userID string, now time.Time) error {
	switch {
	case c == nil:
		return ErrNotFound
	case c.IsUsed:
		return ErrAlreadyUsed
	case !c.IsActive:
		return ErrInactive
	case c.ExpiresAt != nil && now.After(*c.ExpiresAt):
		return ErrExpired
	case c.ReservedByUser != nil && *c.ReservedByUser != userID:
		return ErrWrongOwner
	}
	return nil
}

// NewRewardCode builds a fresh reward code of the form LUCKY-<slot>-<rand>.
func NewRewardCode(slot int64) string {
	suffix := strings.ToUpper(uuid.NewString()[:4])
	return fmt.Sprintf("LUCKY-%d-%s", slot, suffix)
}

// Ledger provides coupon lookup and the two mutations the checkout flow
// needs. Claim must hold an exclusive row-level lock on the coupon for the
// remainder of the enclosing transaction, so concurrent claims of the same
// code serialize; the later claimant re-reads the row and fails validation
// with ErrAlreadyUsed.
type Ledger interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// Claim locks the coupon row exclusively and returns its current state.
	// The lock lives until the surrounding transaction commits or aborts.
	Claim(ctx context.Context, code string) (*Coupon, error)
	// MarkUsed flips is_used to true and records the consuming order. Runs
	// in the same atomic unit that creates the order; an abort rolls both
	// back together.
	MarkUsed(ctx context.Context, code, orderID string) error
	// IssueReward creates a brand-new reward coupon for the given slot.
	// A concurrent issue for the same slot fails with ErrDuplicateSlot.
	IssueReward(ctx context.Context, slot int64, orderID, userID string, now time.Time) (*Coupon, error)
}
