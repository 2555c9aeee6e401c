package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/oakmart/lucky-store/internal/domain/cart"
	"github.com/oakmart/lucky-store/internal/domain/money"
	"github.com/oakmart/lucky-store/internal/domain/product"
)

const (
	upsertCartSQL = `INSERT INTO carts (id, user_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = now()
		RETURNING id`

	upsertCartItemSQL = `INSERT INTO cart_items (id, cart_id, product_id, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, cart_id, product_id, quantity`

	updateCartItemSQL = `UPDATE cart_items ci SET quantity = $3
		FROM carts c
		WHERE ci.id = $2 AND ci.cart_id = c.id AND c.user_id = $1
		RETURNING ci.id, ci.cart_id, ci.product_id, ci.quantity`

	removeCartItemSQL = `DELETE FROM cart_items ci
		USING carts c
		WHERE ci.id = $2 AND ci.cart_id = c.id AND c.user_id = $1`

	cartLinesSQL = `SELECT ci.product_id, p.name, ci.quantity, p.price, p.external_ref
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		JOIN products p ON p.id = ci.product_id
		WHERE c.user_id = $1
		ORDER BY ci.id`

	clearCartSQL = `DELETE FROM cart_items ci
		USING carts c
		WHERE ci.cart_id = c.id AND c.user_id = $1`
)

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store backed by PostgreSQL. The unique
// (cart_id, product_id) constraint is what makes AddItem a merge.
type CartStore struct {
	db DBTX
}

// NewCartStore returns a CartStore that uses the given pool.
func NewCartStore(pool *pgxpool.Pool) *CartStore {
	return &CartStore{db: pool}
}

// AddItem merges quantity into the user's existing line for the product, or
// creates the line (and lazily the cart). An unknown product surfaces as
// product.ErrNotFound.
func (s *CartStore) AddItem(ctx context.Context, userID, productID string, quantity int) (*cart.Item, error) {
	if quantity < 1 {
		return nil, cart.ErrInvalidQuantity
	}

	var cartID string
	if err := s.db.QueryRow(ctx, upsertCartSQL, uuid.NewString(), userID).Scan(&cartID); err != nil {
		return nil, errors.Wrapf(err, "upsert cart for user %q", userID)
	}

	var item cart.Item
	err := s.db.QueryRow(ctx, upsertCartItemSQL, uuid.NewString(), cartID, productID, quantity).
		Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "upsert cart item %q", productID)
	}
	return &item, nil
}

// UpdateQuantity sets an existing line to the given quantity. Quantities
// below one are rejected, never treated as deletes.
func (s *CartStore) UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) (*cart.Item, error) {
	if quantity < 1 {
		return nil, cart.ErrInvalidQuantity
	}

	var item cart.Item
	err := s.db.QueryRow(ctx, updateCartItemSQL, userID, itemID, quantity).
		Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrItemNotFound
		}
		return nil, errors.Wrapf(err, "update cart item %q", itemID)
	}
	return &item, nil
}

// RemoveItem deletes one line from the user's cart.
func (s *CartStore) RemoveItem(ctx context.Context, userID, itemID string) error {
	tag, err := s.db.Exec(ctx, removeCartItemSQL, userID, itemID)
	if err != nil {
		return errors.Wrapf(err, "remove cart item %q", itemID)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

// Items lists the user's cart lines with live catalog prices.
func (s *CartStore) Items(ctx context.Context, userID string) ([]cart.Line, error) {
	return s.lines(ctx, userID)
}

// Snapshot reads the cart with live prices inside the placement transaction;
// the returned values are what gets frozen into the order items.
func (s *CartStore) Snapshot(ctx context.Context, userID string) ([]cart.Line, error) {
	return s.lines(ctx, userID)
}

func (s *CartStore) lines(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := s.db.Query(ctx, cartLinesSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "list cart lines for user %q", userID)
	}

	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		var price decimal.Decimal
		if err := row.Scan(&l.ProductID, &l.Name, &l.Quantity, &price, &l.ExternalRef); err != nil {
			return cart.Line{}, err
		}
		l.UnitPrice = money.FromDecimal(price)
		return l, nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "collect cart lines for user %q", userID)
	}
	return lines, nil
}

// Clear removes every line from the user's cart. Idempotent; clearing an
// already-empty cart succeeds.
func (s *CartStore) Clear(ctx context.Context, userID string) error {
	if _, err := s.db.Exec(ctx, clearCartSQL, userID); err != nil {
		return errors.Wrapf(err, "clear cart for user %q", userID)
	}
	return nil
}
