// Package postgres implements every repository over PostgreSQL using pgx.
// Cross-entity invariants (coupon claims, the global counter, order
// creation) rely on transactional row locks here, not on in-process
// synchronization, so multiple server instances stay correct against the
// same database.
package postgres

import (
	"context"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/go-faster/errors"

	"github.com/oakmart/lucky-store/db"
	"github.com/oakmart/lucky-store/internal/checkout"
	"github.com/oakmart/lucky-store/internal/domain/cart"
	"github.com/oakmart/lucky-store/internal/domain/coupon"
	"github.com/oakmart/lucky-store/internal/domain/order"
	"github.com/oakmart/lucky-store/internal/domain/promo"
)

// DBTX is the subset of pgx operations repositories need. Both *pgxpool.Pool
// and pgx.Tx satisfy it, so every repository works standalone and inside a
// unit of work.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}

// Store bundles the repositories and implements checkout.UnitOfWork on top
// of database transactions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store over the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ checkout.UnitOfWork = (*Store)(nil)

// Do runs fn inside a single database transaction. Repositories obtained
// from the Tx are bound to that transaction; any error rolls every mutation
// back together.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, &storeTx{db: tx})
	})
}

// storeTx exposes transaction-bound repositories.
type storeTx struct {
	db pgx.Tx
}

func (t *storeTx) Carts() cart.Store        { return &CartStore{db: t.db} }
func (t *storeTx) Coupons() coupon.Ledger   { return &CouponLedger{db: t.db} }
func (t *storeTx) Orders() order.Ledger     { return &OrderLedger{db: t.db} }
func (t *storeTx) Slots() promo.Allocator   { return &SlotAllocator{db: t.db} }
func (t *storeTx) Settings() promo.Settings { return &StoreSettings{db: t.db} }

// isUniqueViolation reports whether err is a violation of the named unique
// constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

// isForeignKeyViolation reports whether err is any foreign key violation.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
