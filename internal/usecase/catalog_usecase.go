package usecase

import (
	"context"

	"github.com/offmarket/offmarket/internal/domain"
	"github.com/offmarket/offmarket/internal/geo"
)

// Nearby narrows a listing to a radius around Center.
type Nearby struct {
	Center   geo.Point
	RadiusKm float64
}

type StoreResult struct {
	domain.Store
	DistanceKm *float64
}

type ProductResult struct {
	domain.ProductListing
	DistanceKm *float64
}

type CatalogUsecase struct {
	catalog domain.CatalogStore
}

func NewCatalogUsecase(catalog domain.CatalogStore) *CatalogUsecase {
	return &CatalogUsecase{catalog: catalog}
}

// NearbyStores lists stores, nearest first when near is set. Without near
// every store is returned in catalog order.
func (u *CatalogUsecase) NearbyStores(ctx context.Context, near *Nearby) ([]StoreResult, error) {
	if near == nil {
		stores, err := u.catalog.ListStores(ctx, nil)
		if err != nil {
			return nil, err
		}
		results := make([]StoreResult, 0, len(stores))
		for _, store := range stores {
			results = append(results, StoreResult{Store: store})
		}
		return results, nil
	}

	box := geo.BoundingBox(near.Center, near.RadiusKm)
	stores, err := u.catalog.ListStores(ctx, &box)
	if err != nil {
		return nil, err
	}
	matches := geo.Within(near.Center, near.RadiusKm, stores)
	geo.SortByDistance(matches)

	results := make([]StoreResult, 0, len(matches))
	for _, m := range matches {
		d := m.DistanceKm
		results = append(results, StoreResult{Store: m.Item, DistanceKm: &d})
	}
	return results, nil
}

// NearbyProducts lists products, optionally of one store, nearest first when
// near is set.
func (u *CatalogUsecase) NearbyProducts(ctx context.Context, storeID uint, near *Nearby) ([]ProductResult, error) {
	if storeID != 0 {
		if _, err := u.catalog.GetStore(ctx, storeID); err != nil {
			return nil, err
		}
	}

	filter := domain.ProductFilter{StoreID: storeID}
	if near == nil {
		listings, err := u.catalog.ListProducts(ctx, filter)
		if err != nil {
			return nil, err
		}
		results := make([]ProductResult, 0, len(listings))
		for _, listing := range listings {
			results = append(results, ProductResult{ProductListing: listing})
		}
		return results, nil
	}

	box := geo.BoundingBox(near.Center, near.RadiusKm)
	filter.Box = &box
	listings, err := u.catalog.ListProducts(ctx, filter)
	if err != nil {
		return nil, err
	}
	matches := geo.Within(near.Center, near.RadiusKm, listings)
	geo.SortByDistance(matches)

	results := make([]ProductResult, 0, len(matches))
	for _, m := range matches {
		d := m.DistanceKm
		results = append(results, ProductResult{ProductListing: m.Item, DistanceKm: &d})
	}
	return results, nil
}
