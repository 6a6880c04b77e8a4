package domain

import (
	"context"

	"github.com/offmarket/offmarket/internal/geo"
	"github.com/shopspring/decimal"
)

type Store struct {
	ID        uint
	Name      string
	Website   string
	Address   string
	Latitude  *float64
	Longitude *float64
}

func (s Store) Coordinates() (*float64, *float64) { return s.Latitude, s.Longitude }

type Product struct {
	ID       uint
	StoreID  uint
	Name     string
	Price    decimal.Decimal
	Currency string
}

// ProductListing is a product with the location of the store selling it.
type ProductListing struct {
	Product
	StoreName string
	Latitude  *float64
	Longitude *float64
}

func (p ProductListing) Coordinates() (*float64, *float64) { return p.Latitude, p.Longitude }

type ProductFilter struct {
	StoreID uint
	Box     *geo.Box
}

// CatalogStore is the read side of the store/product catalog. A non-nil box
// narrows rows to coordinates inside it; rows without coordinates are then
// left out.
type CatalogStore interface {
	GetStore(ctx context.Context, storeID uint) (*Store, error)
	ListStores(ctx context.Context, box *geo.Box) ([]Store, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]ProductListing, error)
}
