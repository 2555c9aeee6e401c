package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/oakmart/lucky-store/internal/domain/money"
	"github.com/oakmart/lucky-store/internal/domain/product"
)

const (
	productColumns = `id, name, description, price, thumbnail_url, active, external_ref`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE active = TRUE ORDER BY created_at DESC`

	getProductSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db DBTX
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{db: pool}
}

// List returns all active products, newest first.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}

	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "collect products")
	}
	return products, nil
}

// GetByID looks up a single product.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.db.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "query product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "scan product %q", id)
	}
	return &p, nil
}

// GetByIDs fetches all listed products in one query.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, getProductsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "query products")
	}

	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "collect products")
	}
	return products, nil
}

// Update applies only the fields present in the change set and returns the
// resulting row.
func (r *ProductRepository) Update(ctx context.Context, id string, changed product.ChangedFields) (*product.Product, error) {
	if changed.Empty() {
		return r.GetByID(ctx, id)
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if changed.Name != nil {
		add("name", *changed.Name)
	}
	if changed.Description != nil {
		add("description", *changed.Description)
	}
	if changed.Price != nil {
		add("price", changed.Price.Decimal())
	}
	if changed.Thumbnail != nil {
		add("thumbnail_url", *changed.Thumbnail)
	}
	if changed.Active != nil {
		add("active", *changed.Active)
	}

	args = append(args, id)
	sql := `UPDATE products SET ` + strings.Join(sets, ", ") +
		`, updated_at = now() WHERE id = $` + strconv.Itoa(len(args)) +
		` RETURNING ` + productColumns

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "update product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "scan updated product %q", id)
	}
	return &p, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	var price decimal.Decimal
	err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Thumbnail, &p.Active, &p.ExternalRef)
	p.Price = money.FromDecimal(price)
	return p, err
}
