// Package checkout orchestrates cart, coupon ledger, promotion slot
// allocator, order ledger, and the external payment gateway into one atomic
// order placement, and reconciles asynchronous payment outcomes against
// existing orders.
package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/oakmart/lucky-store/internal/domain/coupon"
	"github.com/oakmart/lucky-store/internal/domain/money"
	"github.com/oakmart/lucky-store/internal/domain/order"
	"github.com/oakmart/lucky-store/internal/domain/promo"
	"github.com/oakmart/lucky-store/internal/payment"
)

// ErrUnknownOrder is returned when a payment outcome references an order we
// have no record of. It indicates a desync with the provider; the delivery
// is logged and acknowledged, never retried.
var ErrUnknownOrder = errors.New("unknown order reference")

// Config holds checkout policy.
type Config struct {
	// MaxOrderAmount caps the final amount of a single order. Zero means
	// unlimited.
	MaxOrderAmount money.Amount
	// SuccessURL and CancelURL are where the provider redirects the
	// customer after the hosted payment page.
	SuccessURL string
	CancelURL  string
}

// Placement is the result of a successful order placement. The payment is
// not confirmed yet; the order stays PENDING until the provider delivers an
// outcome.
type Placement struct {
	OrderID        string
	CheckoutURL    string
	TotalAmount    money.Amount
	DiscountAmount money.Amount
	FinalAmount    money.Amount
}

// Coordinator implements order placement and payment reconciliation.
type Coordinator struct {
	uow     UnitOfWork
	gateway payment.Gateway
	cfg     Config
	now     func() time.Time
}

// New creates a Coordinator.
func New(uow UnitOfWork, gateway payment.Gateway, cfg Config) *Coordinator {
	return &Coordinator{
		uow:     uow,
		gateway: gateway,
		cfg:     cfg,
		now:     time.Now,
	}
}

// PlaceOrder snapshots the user's cart, claims the optional coupon, creates
// a PENDING order with frozen item prices, and requests a payment session
// from the provider, all in one atomic unit. Any failure, including the
// provider call, rolls the whole placement back: no PENDING order survives
// without a payment session. The cart and the global counter are left
// untouched; both are finalized only on a confirmed payment.
func (c *Coordinator) PlaceOrder(ctx context.Context, userID, couponCode string) (*Placement, error) {
	var placement Placement

	err := c.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		lines, err := tx.Carts().Snapshot(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "snapshot cart")
		}
		if len(lines) == 0 {
			return order.ErrEmptyCart
		}

		// Claim locks the coupon row for the rest of this transaction, so a
		// concurrent placement with the same code waits here and then fails
		// validation with ErrAlreadyUsed.
		var claimedCode *string
		var discountPercent int64
		if couponCode != "" {
			claimed, err := tx.Coupons().Claim(ctx, couponCode)
			if err != nil {
				return errors.Wrap(err, "claim coupon")
			}
			if err := coupon.Validate(claimed, userID, c.now()); err != nil {
				return err
			}
			claimedCode = &claimed.Code
			discountPercent = claimed.DiscountPercent
		}

		o, err := order.NewPending(userID, lines, claimedCode, discountPercent, c.cfg.MaxOrderAmount)
		if err != nil {
			return err
		}

		if err := tx.Orders().CreatePending(ctx, o); err != nil {
			return errors.Wrap(err, "create pending order")
		}

		if claimedCode != nil {
			if err := tx.Coupons().MarkUsed(ctx, *claimedCode, o.ID); err != nil {
				return errors.Wrap(err, "mark coupon used")
			}
		}

		items := make([]payment.LineItem, len(lines))
		for i, l := range lines {
			ref := l.ExternalRef
			if ref == "" {
				ref = l.ProductID
			}
			items[i] = payment.LineItem{
				UnitAmountCents: l.UnitPrice.Cents(),
				Quantity:        l.Quantity,
				ProductRef:      ref,
			}
		}

		session, err := c.gateway.CreateSession(ctx, payment.SessionRequest{
			LineItems:      items,
			CorrelationRef: o.ID,
			SuccessURL:     c.cfg.SuccessURL,
			CancelURL:      c.cfg.CancelURL,
		})
		if err != nil {
			return errors.Wrap(err, "create payment session")
		}

		placement = Placement{
			OrderID:        o.ID,
			CheckoutURL:    session.RedirectURL,
			TotalAmount:    o.TotalAmount,
			DiscountAmount: o.DiscountAmount,
			FinalAmount:    o.FinalAmount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("order placed",
		zap.String("order_id", placement.OrderID),
		zap.String("final_amount", placement.FinalAmount.String()),
	)
	return &placement, nil
}

// ReconcilePayment applies an asynchronous payment outcome to the order it
// references. Deliveries are at-least-once and may be duplicated or arrive
// in contradictory pairs; the first outcome to land wins. A duplicate of the
// winning outcome is a pure acknowledgement with no further mutation, and a
// contradicting one fails with InvalidTransitionError.
func (c *Coordinator) ReconcilePayment(ctx context.Context, correlationRef string, outcome payment.Outcome) error {
	lg := zctx.From(ctx).With(zap.String("order_id", correlationRef))

	target := order.StatusPaymentFailed
	if outcome == payment.OutcomeSucceeded {
		target = order.StatusPaid
	}

	return c.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		// The row lock serializes concurrent deliveries for this order;
		// deliveries for different orders do not contend here.
		o, err := tx.Orders().GetForUpdate(ctx, correlationRef)
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				return ErrUnknownOrder
			}
			return errors.Wrap(err, "load order")
		}

		if o.Status == target {
			lg.Info("duplicate payment outcome acknowledged", zap.String("status", string(target)))
			return nil
		}
		if !order.CanTransition(o.Status, target) {
			return &order.InvalidTransitionError{OrderID: o.ID, From: o.Status, To: target}
		}

		if err := tx.Orders().SetStatus(ctx, o.ID, target); err != nil {
			return errors.Wrap(err, "set order status")
		}

		if target == order.StatusPaymentFailed {
			// Cart stays intact so the user can retry checkout.
			lg.Info("payment failed, order closed")
			return nil
		}

		return c.finalizePaid(ctx, tx, o, lg)
	})
}

// finalizePaid runs the side effects owed exactly once per paid order:
// advance the global counter, clear the originating cart, and issue a reward
// coupon when this order lands on a lucky slot. It executes only on the
// transition that actually moves the order to PAID, which is what keeps the
// whole succeeded path idempotent across duplicate deliveries.
func (c *Coordinator) finalizePaid(ctx context.Context, tx Tx, o *order.Order, lg *zap.Logger) error {
	// Exclusive counter lock: held from here to commit, kept short. Two
	// orders racing for the same slot serialize on this lock, so each
	// integer slot is observed exactly once.
	slot, err := tx.Slots().PeekNextSlot(ctx)
	if err != nil {
		return errors.Wrap(err, "peek next slot")
	}
	if err := tx.Slots().Commit(ctx); err != nil {
		return errors.Wrap(err, "commit counter")
	}

	if err := tx.Carts().Clear(ctx, o.UserID); err != nil {
		return errors.Wrap(err, "clear cart")
	}

	n, active, err := tx.Settings().NthOrder(ctx)
	if err != nil {
		return errors.Wrap(err, "load promotion rule")
	}
	if active && promo.IsRewardSlot(slot, n) {
		reward, err := tx.Coupons().IssueReward(ctx, slot, o.ID, o.UserID, c.now())
		if err != nil {
			if errors.Is(err, coupon.ErrDuplicateSlot) {
				// Someone already holds this slot; the paid order still
				// finalizes normally.
				lg.Warn("reward slot already taken", zap.Int64("slot", slot))
				return nil
			}
			return errors.Wrap(err, "issue reward coupon")
		}
		lg.Info("lucky order: reward coupon issued",
			zap.Int64("slot", slot),
			zap.String("coupon_code", reward.Code),
		)
	}

	lg.Info("order paid", zap.Int64("slot", slot))
	return nil
}
