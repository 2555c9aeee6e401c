// Package order is the append-mostly ledger of placed orders: immutable
// headers and item snapshots plus the order lifecycle state machine.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/oakmart/lucky-store/internal/domain/cart"
	"github.com/oakmart/lucky-store/internal/domain/money"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusPaid          Status = "PAID"
	StatusPaymentFailed Status = "PAYMENT_FAILED"
	StatusShipped       Status = "SHIPPED"
	StatusRefunded      Status = "REFUNDED"
	StatusCancelled     Status = "CANCELLED"
)

// transitions enumerates the allowed lifecycle edges. CANCELLED is reachable
// from any non-terminal state and handled in CanTransition.
var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusPaymentFailed},
	StatusPaid:    {StatusShipped, StatusRefunded},
}

// terminal states admit no further transitions at all.
var terminal = map[Status]bool{
	StatusPaymentFailed: true,
	StatusShipped:       true,
	StatusRefunded:      true,
	StatusCancelled:     true,
}

// CanTransition reports whether the edge from -> to is allowed. A transition
// to the current status is always allowed; callers treat it as a no-op so
// at-least-once payment deliveries stay idempotent.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if to == StatusCancelled {
		return !terminal[from]
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	// ErrEmptyCart is returned when a placement is attempted on a cart with
	// no items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrLimitExceeded is returned when the final amount exceeds the
	// configured maximum transaction amount.
	ErrLimitExceeded = errors.New("order exceeds maximum transaction amount")
	// ErrNotFound is returned when an order id resolves to nothing.
	ErrNotFound = errors.New("order not found")
)

// InvalidTransitionError reports a lifecycle edge that is not allowed, e.g.
// a "failed" webhook arriving after the order was already marked PAID.
type InvalidTransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: invalid transition %s -> %s", e.OrderID, e.From, e.To)
}

// Item is an immutable snapshot of one purchased line, captured at order
// creation so later catalog price edits never change historical orders.
type Item struct {
	ProductID       string
	Name            string
	Quantity        int
	PriceAtPurchase money.Amount
}

// Order is a placed order. Identity and monetary fields are immutable once
// the order leaves PENDING; only Status advances afterwards.
type Order struct {
	ID             string
	UserID         string
	Status         Status
	TotalAmount    money.Amount
	DiscountAmount money.Amount
	FinalAmount    money.Amount
	CouponCode     *string
	Items          []Item
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewPending builds a PENDING order from a cart snapshot, applying the given
// discount percentage (0 when no coupon) and enforcing maxAmount. maxAmount
// of zero means no limit.
func NewPending(userID string, lines []cart.Line, couponCode *string, discountPercent int64, maxAmount money.Amount) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	total := money.Zero
	items := make([]Item, len(lines))
	for i, l := range lines {
		total = total.Add(l.Subtotal())
		items[i] = Item{
			ProductID:       l.ProductID,
			Name:            l.Name,
			Quantity:        l.Quantity,
			PriceAtPurchase: l.UnitPrice,
		}
	}

	discount := total.PercentOf(discountPercent)
	final := total.Sub(discount)
	if final.IsNegative() {
		final = money.Zero
	}

	if !maxAmount.IsZero() && final.GreaterThan(maxAmount) {
		return nil, ErrLimitExceeded
	}

	return &Order{
		ID:             uuid.NewString(),
		UserID:         userID,
		Status:         StatusPending,
		TotalAmount:    total,
		DiscountAmount: discount,
		FinalAmount:    final,
		CouponCode:     couponCode,
		Items:          items,
	}, nil
}

// Ledger defines persistence operations for orders.
type Ledger interface {
	// CreatePending writes the order header and its item snapshots as one
	// atomic unit.
	CreatePending(ctx context.Context, o *Order) error
	// GetForUpdate loads an order by id under an exclusive row lock, so
	// concurrent reconciliations of the same order serialize.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	// SetStatus records a new lifecycle status. The caller has already
	// checked CanTransition.
	SetStatus(ctx context.Context, id string, status Status) error
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}
