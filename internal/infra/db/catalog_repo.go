package db

import (
	"context"
	"errors"

	"github.com/offmarket/offmarket/internal/domain"
	"github.com/offmarket/offmarket/internal/geo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) GetStore(ctx context.Context, storeID uint) (*domain.Store, error) {
	var model storeModel
	if err := r.db.WithContext(ctx).First(&model, storeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	store := mapStoreToDomain(model)
	return &store, nil
}

func (r *CatalogRepository) ListStores(ctx context.Context, box *geo.Box) ([]domain.Store, error) {
	query := r.db.WithContext(ctx).Model(&storeModel{})
	if box != nil {
		query = query.
			Where("latitude BETWEEN ? AND ?", box.MinLat, box.MaxLat).
			Where("longitude BETWEEN ? AND ?", box.MinLon, box.MaxLon)
	}

	var models []storeModel
	if err := query.Order("name").Find(&models).Error; err != nil {
		return nil, err
	}

	stores := make([]domain.Store, 0, len(models))
	for _, model := range models {
		stores = append(stores, mapStoreToDomain(model))
	}
	return stores, nil
}

type productListingRow struct {
	ID        uint
	StoreID   uint
	Name      string
	Price     decimal.Decimal
	Currency  string
	StoreName string
	Latitude  *float64
	Longitude *float64
}

func (r *CatalogRepository) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.ProductListing, error) {
	query := r.db.WithContext(ctx).
		Table("products AS p").
		Select("p.id, p.store_id, p.name, p.price, p.currency, COALESCE(s.name, '') AS store_name, s.latitude, s.longitude").
		Joins("LEFT JOIN stores s ON s.id = p.store_id")
	if filter.StoreID != 0 {
		query = query.Where("p.store_id = ?", filter.StoreID)
	}
	if filter.Box != nil {
		query = query.
			Where("s.latitude BETWEEN ? AND ?", filter.Box.MinLat, filter.Box.MaxLat).
			Where("s.longitude BETWEEN ? AND ?", filter.Box.MinLon, filter.Box.MaxLon)
	}

	var rows []productListingRow
	if err := query.Order("p.id DESC").Scan(&rows).Error; err != nil {
		return nil, err
	}

	listings := make([]domain.ProductListing, 0, len(rows))
	for _, row := range rows {
		listings = append(listings, domain.ProductListing{
			Product: domain.Product{
				ID:       row.ID,
				StoreID:  row.StoreID,
				Name:     row.Name,
				Price:    row.Price,
				Currency: row.Currency,
			},
			StoreName: row.StoreName,
			Latitude:  row.Latitude,
			Longitude: row.Longitude,
		})
	}
	return listings, nil
}

func mapStoreToDomain(model storeModel) domain.Store {
	return domain.Store{
		ID:        model.ID,
		Name:      model.Name,
		Website:   model.Website,
		Address:   model.Address,
		Latitude:  model.Latitude,
		Longitude: model.Longitude,
	}
}
