// Command seed-db loads the product catalog, the lucky-order promotion rule,
// and development API keys into the database. Safe to re-run; everything is
// upserted.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/oakmart/lucky-store/internal/domain/promo"
	"github.com/oakmart/lucky-store/internal/handler"
	"github.com/oakmart/lucky-store/internal/storage/postgres"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Thumbnail   string          `json:"thumbnail"`
	ExternalRef string          `json:"external_ref"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		nthOrder     int
		customerKey  string
		adminKey     string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.IntVar(&nthOrder, "nth-order", 0, "every Nth paid order wins a reward coupon; 0 leaves the rule untouched")
	flag.StringVar(&customerKey, "customer-key", "", "customer API key to seed (or STORE_SEED_CUSTOMER_KEY env)")
	flag.StringVar(&adminKey, "admin-key", "", "admin API key to seed (or STORE_SEED_ADMIN_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if customerKey == "" {
		customerKey = os.Getenv("STORE_SEED_CUSTOMER_KEY")
	}
	if adminKey == "" {
		adminKey = os.Getenv("STORE_SEED_ADMIN_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("STORE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, nthOrder, customerKey, adminKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string, nthOrder int, customerKey, adminKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if nthOrder > 0 {
		if err := seedPromotion(ctx, pool, nthOrder); err != nil {
			return errors.Wrap(err, "seed promotion rule")
		}
	}

	if customerKey != "" {
		if err := seedAPIKey(ctx, pool, customerKey, pepper, "demo-customer", "Demo customer key", nil); err != nil {
			return errors.Wrap(err, "seed customer key")
		}
	}
	if adminKey != "" {
		if err := seedAPIKey(ctx, pool, adminKey, pepper, "demo-admin", "Demo admin key", []string{"admin"}); err != nil {
			return errors.Wrap(err, "seed admin key")
		}
	}

	return nil
}

const upsertProductSQL = `
INSERT INTO products (id, name, description, price, thumbnail_url, active, external_ref)
VALUES ($1, $2, $3, $4, $5, TRUE, $6)
ON CONFLICT (id) DO UPDATE SET
    name          = EXCLUDED.name,
    description   = EXCLUDED.description,
    price         = EXCLUDED.price,
    thumbnail_url = EXCLUDED.thumbnail_url,
    external_ref  = EXCLUDED.external_ref,
    updated_at    = now()
`

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Description, p.Price, p.Thumbnail, p.ExternalRef,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

const upsertSettingSQL = `
INSERT INTO store_settings (key, value, is_active)
VALUES ($1, $2, TRUE)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, is_active = TRUE
`

func seedPromotion(ctx context.Context, pool *pgxpool.Pool, n int) error {
	slog.Info("setting lucky-order rule", slog.String("nth_order", strconv.Itoa(n)))

	_, err := pool.Exec(ctx, upsertSettingSQL, promo.SettingNthOrder, n)
	return err
}

const upsertAPIKeySQL = `
INSERT INTO api_keys (id, key_hash, user_id, name, scopes)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (key_hash) DO UPDATE SET user_id = EXCLUDED.user_id, name = EXCLUDED.name, scopes = EXCLUDED.scopes
`

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, rawKey, pepper, userID, name string, scopes []string) error {
	keyHash := handler.HashAPIKey(rawKey, []byte(pepper))
	if scopes == nil {
		scopes = []string{}
	}

	if _, err := pool.Exec(ctx, upsertAPIKeySQL,
		uuid.NewString(), keyHash, userID, name, scopes,
	); err != nil {
		return errors.Wrapf(err, "upsert API key %s", name)
	}

	slog.Info("upserted API key", slog.String("user_id", userID), slog.String("name", name))
	return nil
}
