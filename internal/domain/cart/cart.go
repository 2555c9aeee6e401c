// Package cart holds the per-user shopping cart: a mutable line-item
// collection that merges duplicate product entries and is independent of
// checkout until a snapshot is taken.
package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/oakmart/lucky-store/internal/domain/money"
)

var (
	// ErrItemNotFound is returned when a cart line does not exist or belongs
	// to a different user.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrInvalidQuantity is returned for quantities below one. Deleting a
	// line is an explicit RemoveItem, never a zero-quantity update.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// Item is one line in a user's cart. At most one Item exists per
// (cart, product) pair; re-adding a product merges quantities.
type Item struct {
	ID        string
	CartID    string
	ProductID string
	Quantity  int
}

// Line is a priced cart line as seen at snapshot time. UnitPrice is the live
// catalog price the moment the snapshot was taken; it is what gets frozen
// into the order items.
type Line struct {
	ProductID   string
	Name        string
	Quantity    int
	UnitPrice   money.Amount
	ExternalRef string
}

// Subtotal returns unit price times quantity.
func (l Line) Subtotal() money.Amount {
	return l.UnitPrice.MulInt(int64(l.Quantity))
}

// Store defines persistence operations for carts. Implementations create a
// user's cart lazily on first write.
type Store interface {
	// AddItem upserts a line: quantity is added to an existing
	// (cart, product) line, or a new line is created.
	AddItem(ctx context.Context, userID, productID string, quantity int) (*Item, error)
	// UpdateQuantity sets the quantity of an existing line. qty < 1 is
	// rejected with ErrInvalidQuantity.
	UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) (*Item, error)
	RemoveItem(ctx context.Context, userID, itemID string) error
	// Items lists the user's current cart lines with live prices.
	Items(ctx context.Context, userID string) ([]Line, error)
	// Snapshot is Items taken inside the placement transaction, immediately
	// before order-item creation.
	Snapshot(ctx context.Context, userID string) ([]Line, error)
	// Clear removes every line from the user's cart. One-way: used once the
	// order paid for this cart is confirmed.
	Clear(ctx context.Context, userID string) error
}
