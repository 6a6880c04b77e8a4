package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/offmarket/offmarket/internal/domain"
	"github.com/offmarket/offmarket/internal/infra/memory"
	"github.com/shopspring/decimal"
)

func TestAddAlertDefaultsRadius(t *testing.T) {
	c := newCatalog("9.00")
	user := c.store.PutUser("ana@example.com")
	uc := NewAlertUsecase(c.store, c.store)
	ctx := context.Background()

	alert, err := uc.AddAlert(ctx, user.ID, c.product.ID, decimal.RequireFromString("8.00"), nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !alert.RadiusKm.Equal(domain.DefaultRadiusKm) {
		t.Fatalf("expected default radius, got %s", alert.RadiusKm)
	}

	radius := decimal.NewFromInt(5)
	alert, err = uc.AddAlert(ctx, user.ID, c.product.ID, decimal.RequireFromString("8.00"), &radius)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !alert.RadiusKm.Equal(radius) {
		t.Fatalf("expected radius 5, got %s", alert.RadiusKm)
	}
}

func TestAlertUsecaseUnknownUser(t *testing.T) {
	c := newCatalog("9.00")
	uc := NewAlertUsecase(c.store, c.store)
	ctx := context.Background()

	if _, err := uc.AddAlert(ctx, 404, c.product.ID, decimal.NewFromInt(1), nil); !errors.Is(err, ErrUserNotRegistered) {
		t.Fatalf("expected unregistered user, got %v", err)
	}
	if _, err := uc.ListAlerts(ctx, 0); !errors.Is(err, ErrUserNotRegistered) {
		t.Fatalf("expected unregistered user, got %v", err)
	}
	if !errors.Is(ErrUserNotRegistered, domain.ErrNotFound) {
		t.Fatal("unregistered user should read as not found")
	}
}

func TestAlertUsecaseLifecycle(t *testing.T) {
	c := newCatalog("9.00")
	owner := c.store.PutUser("ana@example.com")
	stranger := c.store.PutUser("bo@example.com")
	uc := NewAlertUsecase(c.store, c.store)
	ctx := context.Background()

	alert, err := uc.AddAlert(ctx, owner.ID, c.product.ID, decimal.RequireFromString("8.00"), nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, err := uc.ToggleAlert(ctx, stranger.ID, alert.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for stranger, got %v", err)
	}
	toggled, err := uc.ToggleAlert(ctx, owner.ID, alert.ID)
	if err != nil || toggled.Active {
		t.Fatalf("toggle: %+v %v", toggled, err)
	}

	views, err := uc.ListAlerts(ctx, owner.ID)
	if err != nil || len(views) != 1 || views[0].ProductName != "Coffee" {
		t.Fatalf("list: %+v %v", views, err)
	}

	if err := uc.DeleteAlert(ctx, stranger.ID, alert.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for stranger, got %v", err)
	}
	if err := uc.DeleteAlert(ctx, owner.ID, alert.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	views, _ = uc.ListAlerts(ctx, owner.ID)
	if len(views) != 0 {
		t.Fatalf("expected no alerts, got %d", len(views))
	}
}

func coords(lat, lon float64) (*float64, *float64) { return &lat, &lon }

func TestNearbyStores(t *testing.T) {
	s := memory.NewStore()
	lat, lon := coords(0, 0)
	origin := s.PutStore(domain.Store{Name: "Origin", Latitude: lat, Longitude: lon})
	lat, lon = coords(0, 1)
	east := s.PutStore(domain.Store{Name: "East", Latitude: lat, Longitude: lon})
	lat, lon = coords(0, 0.5)
	mid := s.PutStore(domain.Store{Name: "Mid", Latitude: lat, Longitude: lon})
	s.PutStore(domain.Store{Name: "Unplaced"})
	uc := NewCatalogUsecase(s)
	ctx := context.Background()

	results, err := uc.NearbyStores(ctx, &Nearby{RadiusKm: 112})
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 stores, got %d", len(results))
	}
	wantOrder := []uint{origin.ID, mid.ID, east.ID}
	for i, r := range results {
		if r.ID != wantOrder[i] {
			t.Fatalf("position %d: want %d, got %d", i, wantOrder[i], r.ID)
		}
	}
	if math.Abs(*results[2].DistanceKm-111.19) > 0.5 {
		t.Fatalf("unexpected distance %f", *results[2].DistanceKm)
	}

	results, _ = uc.NearbyStores(ctx, &Nearby{RadiusKm: 100})
	if len(results) != 2 {
		t.Fatalf("expected 2 stores within 100 km, got %d", len(results))
	}

	all, err := uc.NearbyStores(ctx, nil)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 4 || all[0].DistanceKm != nil {
		t.Fatalf("expected full listing without distances, got %+v", all)
	}
}

func TestNearbyProducts(t *testing.T) {
	s := memory.NewStore()
	lat, lon := coords(0, 0)
	near := s.PutStore(domain.Store{Name: "Near", Latitude: lat, Longitude: lon})
	lat, lon = coords(10, 10)
	far := s.PutStore(domain.Store{Name: "Far", Latitude: lat, Longitude: lon})
	s.PutProduct(domain.Product{StoreID: near.ID, Name: "Milk", Price: decimal.NewFromInt(1), Currency: "USD"})
	s.PutProduct(domain.Product{StoreID: far.ID, Name: "Bread", Price: decimal.NewFromInt(2), Currency: "USD"})
	uc := NewCatalogUsecase(s)
	ctx := context.Background()

	results, err := uc.NearbyProducts(ctx, 0, &Nearby{RadiusKm: 10})
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(results) != 1 || results[0].Name != "Milk" || results[0].DistanceKm == nil {
		t.Fatalf("unexpected products %+v", results)
	}

	byStore, err := uc.NearbyProducts(ctx, far.ID, nil)
	if err != nil {
		t.Fatalf("by store: %v", err)
	}
	if len(byStore) != 1 || byStore[0].Name != "Bread" {
		t.Fatalf("unexpected products %+v", byStore)
	}

	if _, err := uc.NearbyProducts(ctx, 999, nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown store, got %v", err)
	}
}
