package product

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/apperr"
)

// Product is a catalog item as stored, priced in major units.
type Product struct {
	ID         string
	Name       string
	Price      decimal.Decimal
	CategoryID string
	Image      string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	// GetByIDs returns the products that exist among ids. Missing ids are
	// silently skipped; callers decide whether that is an error.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// NotFoundError is returned when a cart references a product that is not
// in the catalog.
type NotFoundError struct {
	ProductID string
}

var _ apperr.Coded = (*NotFoundError)(nil)

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *NotFoundError) Kind() apperr.Kind { return apperr.KindNotFound }
func (e *NotFoundError) Code() string      { return "product_not_found" }
