// Package catalog holds the product view the pricing engine works on.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a sellable item together with the identifiers promotions can target.
type Product struct {
	ID         string
	Name       string
	Price      decimal.Decimal
	CategoryID string
	BrandID    string
	VendorID   string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
