// Package rediscache provides read-through Redis caching for hot catalog
// reads. Cache failures degrade to the underlying repository; the cache is
// never authoritative.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/oakmart/lucky-store/internal/domain/money"
	"github.com/oakmart/lucky-store/internal/domain/product"
)

const productListKey = "catalog:products"

var _ product.Repository = (*ProductRepository)(nil)

// cachedProduct is the cache wire form. Prices travel as decimal strings.
type cachedProduct struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Thumbnail   string `json:"thumbnail"`
	Active      bool   `json:"active"`
	ExternalRef string `json:"external_ref"`
}

// ProductRepository decorates a product.Repository with a Redis cache for
// List. Point lookups and updates always hit the source; Update invalidates
// the list.
type ProductRepository struct {
	source product.Repository
	client *redis.Client
	ttl    time.Duration
}

// New creates the caching decorator.
func New(source product.Repository, client *redis.Client, ttl time.Duration) *ProductRepository {
	return &ProductRepository{source: source, client: client, ttl: ttl}
}

// List serves the catalog from cache when possible.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	raw, err := r.client.Get(ctx, productListKey).Result()
	if err == nil {
		var cached []cachedProduct
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return fromCache(cached)
		}
	} else if err != redis.Nil {
		zctx.From(ctx).Warn("product cache read failed", zap.Error(err))
	}

	products, err := r.source.List(ctx)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(toCache(products)); err == nil {
		if err := r.client.Set(ctx, productListKey, encoded, r.ttl).Err(); err != nil {
			zctx.From(ctx).Warn("product cache write failed", zap.Error(err))
		}
	}
	return products, nil
}

// GetByID always reads the source; single lookups feed checkout pricing and
// must be live.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return r.source.GetByID(ctx, id)
}

// GetByIDs always reads the source.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	return r.source.GetByIDs(ctx, ids)
}

// Update writes through and drops the cached list.
func (r *ProductRepository) Update(ctx context.Context, id string, changed product.ChangedFields) (*product.Product, error) {
	p, err := r.source.Update(ctx, id, changed)
	if err != nil {
		return nil, err
	}
	if err := r.client.Del(ctx, productListKey).Err(); err != nil {
		zctx.From(ctx).Warn("product cache invalidation failed", zap.Error(err))
	}
	return p, nil
}

func toCache(products []product.Product) []cachedProduct {
	out := make([]cachedProduct, len(products))
	for i, p := range products {
		out[i] = cachedProduct{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price.String(),
			Thumbnail:   p.Thumbnail,
			Active:      p.Active,
			ExternalRef: p.ExternalRef,
		}
	}
	return out
}

func fromCache(cached []cachedProduct) ([]product.Product, error) {
	out := make([]product.Product, len(cached))
	for i, c := range cached {
		price, err := money.FromString(c.Price)
		if err != nil {
			return nil, err
		}
		out[i] = product.Product{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Price:       price,
			Thumbnail:   c.Thumbnail,
			Active:      c.Active,
			ExternalRef: c.ExternalRef,
		}
	}
	return out, nil
}
