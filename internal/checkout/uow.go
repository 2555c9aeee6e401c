package checkout

import (
	"context"

	"github.com/oakmart/lucky-store/internal/domain/cart"
	"github.com/oakmart/lucky-store/internal/domain/coupon"
	"github.com/oakmart/lucky-store/internal/domain/order"
	"github.com/oakmart/lucky-store/internal/domain/promo"
)

// Tx exposes every repository the coordinator touches, all bound to one
// transaction. Row locks taken through any of them live until the unit of
// work finishes.
type Tx interface {
	Carts() cart.Store
	Coupons() coupon.Ledger
	Orders() order.Ledger
	Slots() promo.Allocator
	Settings() promo.Settings
}

// UnitOfWork runs fn inside a single atomic unit. If fn returns an error,
// every mutation made through the Tx rolls back together; invariants across
// orders, coupons, and the global counter are enforced by the persistence
// layer's isolation, never by in-process locks, so multiple server instances
// stay correct against shared storage.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
