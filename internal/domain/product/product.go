package product

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/oakmart/lucky-store/internal/domain/money"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       money.Amount
	Thumbnail   string
	Active      bool
	// ExternalRef is the product's identifier at the payment provider,
	// attached to payment-session line items.
	ExternalRef string
}

// ChangedFields is the explicit change set for an update. Only non-nil
// fields are written locally and synced externally; the caller that mutated
// the entity decides what changed, nothing is diffed at save time.
type ChangedFields struct {
	Name        *string
	Description *string
	Price       *money.Amount
	Thumbnail   *string
	Active      *bool
}

// Empty reports whether the change set contains no fields.
func (c ChangedFields) Empty() bool {
	return c.Name == nil && c.Description == nil && c.Price == nil &&
		c.Thumbnail == nil && c.Active == nil
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Update(ctx context.Context, id string, changed ChangedFields) (*Product, error)
}
