// Package memory keeps users, the catalog and alerts in process memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/offmarket/offmarket/internal/domain"
	"github.com/offmarket/offmarket/internal/geo"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu       sync.RWMutex
	users    map[uint]domain.User
	stores   map[uint]domain.Store
	products map[uint]domain.Product
	alerts   map[uint]domain.Alert
	nextID   uint
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:    make(map[uint]domain.User),
		stores:   make(map[uint]domain.Store),
		products: make(map[uint]domain.Product),
		alerts:   make(map[uint]domain.Alert),
		now:      time.Now,
	}
}

func (s *Store) PutUser(email string) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := domain.User{ID: s.id(), Email: email, CreatedAt: s.now()}
	s.users[user.ID] = user
	return user
}

// DeleteUser removes the user together with their alerts.
func (s *Store) DeleteUser(userID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	for id, alert := range s.alerts {
		if alert.UserID == userID {
			delete(s.alerts, id)
		}
	}
}

func (s *Store) PutStore(store domain.Store) domain.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	store.ID = s.id()
	s.stores[store.ID] = store
	return store
}

func (s *Store) PutProduct(product domain.Product) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	product.ID = s.id()
	s.products[product.ID] = product
	return product
}

func (s *Store) SetPrice(productID uint, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.products[productID]
	if !ok {
		return domain.ErrNotFound
	}
	product.Price = price
	s.products[productID] = product
	return nil
}

// Alert returns a copy of the stored alert.
func (s *Store) Alert(alertID uint) (domain.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alert, ok := s.alerts[alertID]
	return alert, ok
}

func (s *Store) GetByID(_ context.Context, userID uint) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListDueForEvaluation(ctx context.Context) ([]domain.AlertWithContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []domain.AlertWithContext
	for _, alert := range s.sortedAlerts() {
		if !alert.Active || alert.Triggered {
			continue
		}
		product, ok := s.products[alert.ProductID]
		if !ok {
			continue
		}
		user, ok := s.users[alert.UserID]
		if !ok {
			continue
		}
		due = append(due, domain.AlertWithContext{
			Alert:        alert,
			ProductName:  product.Name,
			CurrentPrice: product.Price,
			Currency:     product.Currency,
			StoreName:    s.stores[product.StoreID].Name,
			OwnerEmail:   user.Email,
		})
	}
	return due, nil
}

func (s *Store) MarkTriggered(_ context.Context, alertID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[alertID]
	if !ok {
		return domain.ErrNotFound
	}
	alert.Triggered = true
	alert.Active = false
	s.alerts[alertID] = alert
	return nil
}

func (s *Store) Create(_ context.Context, userID, productID uint, targetPrice, radiusKm decimal.Decimal) (*domain.Alert, error) {
	if err := domain.ValidateNewAlert(userID, productID, targetPrice, radiusKm); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return nil, &domain.ValidationError{Field: "product_id", Reason: "unknown product or user"}
	}
	if _, ok := s.products[productID]; !ok {
		return nil, &domain.ValidationError{Field: "product_id", Reason: "unknown product or user"}
	}

	alert := domain.Alert{
		ID:          s.id(),
		UserID:      userID,
		ProductID:   productID,
		TargetPrice: targetPrice,
		RadiusKm:    radiusKm,
		Active:      true,
		CreatedAt:   s.now(),
	}
	s.alerts[alert.ID] = alert
	return &alert, nil
}

func (s *Store) ToggleActive(_ context.Context, alertID, ownerUserID uint) (*domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[alertID]
	if !ok || alert.UserID != ownerUserID {
		return nil, domain.ErrNotFound
	}
	if alert.Triggered {
		return nil, &domain.ValidationError{Field: "active", Reason: "alert already triggered"}
	}
	alert.Active = !alert.Active
	s.alerts[alertID] = alert
	return &alert, nil
}

func (s *Store) Delete(_ context.Context, alertID, ownerUserID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[alertID]
	if !ok || alert.UserID != ownerUserID {
		return domain.ErrNotFound
	}
	delete(s.alerts, alertID)
	return nil
}

func (s *Store) ListByUser(_ context.Context, userID uint) ([]domain.AlertView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]domain.AlertView, 0)
	alerts := s.sortedAlerts()
	for i := len(alerts) - 1; i >= 0; i-- {
		alert := alerts[i]
		if alert.UserID != userID {
			continue
		}
		product := s.products[alert.ProductID]
		views = append(views, domain.AlertView{
			Alert:        alert,
			ProductName:  product.Name,
			CurrentPrice: product.Price,
			Currency:     product.Currency,
			StoreName:    s.stores[product.StoreID].Name,
		})
	}
	return views, nil
}

func (s *Store) GetStore(_ context.Context, storeID uint) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	store, ok := s.stores[storeID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &store, nil
}

func (s *Store) ListStores(_ context.Context, box *geo.Box) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stores := make([]domain.Store, 0, len(s.stores))
	for _, store := range s.stores {
		if box != nil && !inBox(box, store.Latitude, store.Longitude) {
			continue
		}
		stores = append(stores, store)
	}
	sort.Slice(stores, func(i, j int) bool {
		if stores[i].Name != stores[j].Name {
			return stores[i].Name < stores[j].Name
		}
		return stores[i].ID < stores[j].ID
	})
	return stores, nil
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.ProductListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listings := make([]domain.ProductListing, 0, len(s.products))
	for _, product := range s.products {
		if filter.StoreID != 0 && product.StoreID != filter.StoreID {
			continue
		}
		store := s.stores[product.StoreID]
		if filter.Box != nil && !inBox(filter.Box, store.Latitude, store.Longitude) {
			continue
		}
		listings = append(listings, domain.ProductListing{
			Product:   product,
			StoreName: store.Name,
			Latitude:  store.Latitude,
			Longitude: store.Longitude,
		})
	}
	sort.Slice(listings, func(i, j int) bool { return listings[i].ID > listings[j].ID })
	return listings, nil
}

// sortedAlerts returns alerts by ascending id. Callers hold the lock.
func (s *Store) sortedAlerts() []domain.Alert {
	alerts := make([]domain.Alert, 0, len(s.alerts))
	for _, alert := range s.alerts {
		alerts = append(alerts, alert)
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID < alerts[j].ID })
	return alerts
}

func (s *Store) id() uint {
	s.nextID++
	return s.nextID
}

func inBox(box *geo.Box, lat, lon *float64) bool {
	if lat == nil || lon == nil {
		return false
	}
	return box.Contains(geo.Point{Lat: *lat, Lon: *lon})
}
