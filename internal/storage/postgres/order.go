package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/oakmart/lucky-store/internal/domain/money"
	"github.com/oakmart/lucky-store/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, user_id, status, total_amount, discount_amount, final_amount, coupon_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertOrderItemSQL = `INSERT INTO order_items
		(order_id, product_id, name, quantity, price_at_purchase)
		VALUES ($1, $2, $3, $4, $5)`

	orderColumns = `id, user_id, status, total_amount, discount_amount,
		final_amount, coupon_code, created_at, updated_at`

	getOrderForUpdateSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	setOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC`

	listOrderItemsSQL = `SELECT order_id, product_id, name, quantity, price_at_purchase
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`
)

var _ order.Ledger = (*OrderLedger)(nil)

// OrderLedger implements order.Ledger backed by PostgreSQL.
type OrderLedger struct {
	db DBTX
}

// NewOrderLedger returns an OrderLedger that uses the given pool.
func NewOrderLedger(pool *pgxpool.Pool) *OrderLedger {
	return &OrderLedger{db: pool}
}

// CreatePending writes the order header and its item snapshots. Runs inside
// the placement transaction, so a later abort removes both.
func (l *OrderLedger) CreatePending(ctx context.Context, o *order.Order) error {
	_, err := l.db.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, string(o.Status),
		o.TotalAmount.Decimal(), o.DiscountAmount.Decimal(), o.FinalAmount.Decimal(),
		o.CouponCode,
	)
	if err != nil {
		return errors.Wrapf(err, "insert order %q", o.ID)
	}

	for _, item := range o.Items {
		_, err := l.db.Exec(ctx, insertOrderItemSQL,
			o.ID, item.ProductID, item.Name, item.Quantity, item.PriceAtPurchase.Decimal(),
		)
		if err != nil {
			return errors.Wrapf(err, "insert order item %q for order %q", item.ProductID, o.ID)
		}
	}
	return nil
}

// GetForUpdate loads the order header under an exclusive row lock,
// serializing concurrent reconciliations of the same order.
func (l *OrderLedger) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	rows, err := l.db.Query(ctx, getOrderForUpdateSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "query order %q", id)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "scan order %q", id)
	}
	return &o, nil
}

// SetStatus records the new lifecycle status.
func (l *OrderLedger) SetStatus(ctx context.Context, id string, status order.Status) error {
	tag, err := l.db.Exec(ctx, setOrderStatusSQL, id, string(status))
	if err != nil {
		return errors.Wrapf(err, "set status of order %q", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// ListByUser returns the user's orders with item snapshots, newest first.
func (l *OrderLedger) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := l.db.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for user %q", userID)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrapf(err, "collect orders for user %q", userID)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = &orders[i]
	}

	itemRows, err := l.db.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "list order items")
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var orderID string
		var item order.Item
		var price decimal.Decimal
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.Name, &item.Quantity, &price); err != nil {
			return nil, errors.Wrap(err, "scan order item")
		}
		item.PriceAtPurchase = money.FromDecimal(price)
		if o, ok := index[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate order items")
	}

	return orders, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	var status string
	var total, discount, final decimal.Decimal
	err := row.Scan(
		&o.ID, &o.UserID, &status, &total, &discount, &final,
		&o.CouponCode, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	o.TotalAmount = money.FromDecimal(total)
	o.DiscountAmount = money.FromDecimal(discount)
	o.FinalAmount = money.FromDecimal(final)
	return o, err
}
