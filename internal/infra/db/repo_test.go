package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/offmarket/offmarket/internal/config"
	"github.com/offmarket/offmarket/internal/domain"
	"github.com/offmarket/offmarket/internal/geo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := config.Config{
		DatabaseURL:       "sqlite:" + filepath.Join(t.TempDir(), "alerts.db"),
		DBMaxIdleConns:    1,
		DBMaxOpenConns:    1,
		DBConnMaxLifetime: time.Minute,
	}
	conn, err := Open(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

func ptr(v float64) *float64 { return &v }

type seeded struct {
	user    userModel
	store   storeModel
	product productModel
}

func seed(t *testing.T, conn *gorm.DB) seeded {
	t.Helper()
	s := seeded{
		user:  userModel{Email: "ana@example.com"},
		store: storeModel{Name: "Corner", Latitude: ptr(-34.6), Longitude: ptr(-58.4)},
	}
	if err := conn.Create(&s.user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := conn.Create(&s.store).Error; err != nil {
		t.Fatalf("seed store: %v", err)
	}
	s.product = productModel{StoreID: s.store.ID, Name: "Coffee", Price: decimal.RequireFromString("8.50"), Currency: "USD"}
	if err := conn.Omit("Store").Create(&s.product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return s
}

func TestDialectorFor(t *testing.T) {
	tests := []struct {
		url     string
		dialect string
		wantErr bool
	}{
		{url: "postgres://u:p@localhost:5432/app", dialect: "postgres"},
		{url: "postgresql://u:p@localhost:5432/app", dialect: "postgres"},
		{url: "sqlite:./dev.db", dialect: "sqlite"},
		{url: "data/alerts.db", dialect: "sqlite"},
		{url: "mysql://localhost/app", wantErr: true},
	}
	for _, tt := range tests {
		d, err := dialectorFor(tt.url)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.url)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tt.url, err)
		}
		if d.Name() != tt.dialect {
			t.Errorf("%s: want %s, got %s", tt.url, tt.dialect, d.Name())
		}
	}
}

func TestWithForeignKeys(t *testing.T) {
	if got := withForeignKeys("a.db"); got != "a.db?_foreign_keys=on" {
		t.Fatalf("unexpected %s", got)
	}
	if got := withForeignKeys("a.db?cache=shared"); got != "a.db?cache=shared&_foreign_keys=on" {
		t.Fatalf("unexpected %s", got)
	}
}

func TestAlertRepositoryLifecycle(t *testing.T) {
	conn := openTestDB(t)
	s := seed(t, conn)
	repo := NewAlertRepository(conn)
	ctx := context.Background()

	alert, err := repo.Create(ctx, s.user.ID, s.product.ID, decimal.RequireFromString("9.99"), domain.DefaultRadiusKm)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !alert.Active || alert.Triggered {
		t.Fatalf("unexpected new alert %+v", alert)
	}

	due, err := repo.ListDueForEvaluation(ctx)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 due alert, got %d", len(due))
	}
	got := due[0]
	if got.OwnerEmail != "ana@example.com" || got.StoreName != "Corner" || got.ProductName != "Coffee" {
		t.Fatalf("unexpected context %+v", got)
	}
	if !got.CurrentPrice.Equal(decimal.RequireFromString("8.5")) {
		t.Fatalf("unexpected current price %s", got.CurrentPrice)
	}
	if !got.TargetPrice.Equal(decimal.RequireFromString("9.99")) {
		t.Fatalf("unexpected target price %s", got.TargetPrice)
	}

	for i := 0; i < 2; i++ {
		if err := repo.MarkTriggered(ctx, alert.ID); err != nil {
			t.Fatalf("mark %d: %v", i, err)
		}
	}
	due, err = repo.ListDueForEvaluation(ctx)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("triggered alert still due")
	}

	var stored alertModel
	if err := conn.First(&stored, alert.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Active || !stored.Triggered {
		t.Fatalf("expected triggered and inactive, got %+v", stored)
	}

	if err := repo.MarkTriggered(ctx, 4242); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAlertRepositoryCreateValidation(t *testing.T) {
	conn := openTestDB(t)
	s := seed(t, conn)
	repo := NewAlertRepository(conn)
	ctx := context.Background()

	if _, err := repo.Create(ctx, s.user.ID, s.product.ID, decimal.NewFromInt(-1), domain.DefaultRadiusKm); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for negative target, got %v", err)
	}
	if _, err := repo.Create(ctx, s.user.ID, 9999, decimal.NewFromInt(1), domain.DefaultRadiusKm); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for unknown product, got %v", err)
	}
	var count int64
	conn.Model(&alertModel{}).Count(&count)
	if count != 0 {
		t.Fatalf("rejected alerts must not be stored, got %d", count)
	}
}

func TestAlertRepositoryOwnership(t *testing.T) {
	conn := openTestDB(t)
	s := seed(t, conn)
	repo := NewAlertRepository(conn)
	ctx := context.Background()

	alert, err := repo.Create(ctx, s.user.ID, s.product.ID, decimal.NewFromInt(5), domain.DefaultRadiusKm)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := repo.ToggleActive(ctx, alert.ID, s.user.ID+1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found toggling a foreign alert, got %v", err)
	}
	paused, err := repo.ToggleActive(ctx, alert.ID, s.user.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if paused.Active {
		t.Fatal("expected paused alert")
	}
	resumed, err := repo.ToggleActive(ctx, alert.ID, s.user.ID)
	if err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if !resumed.Active {
		t.Fatal("expected active alert")
	}

	if err := repo.MarkTriggered(ctx, alert.ID); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if _, err := repo.ToggleActive(ctx, alert.ID, s.user.ID); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error toggling a triggered alert, got %v", err)
	}

	if err := repo.Delete(ctx, alert.ID, s.user.ID+1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found deleting a foreign alert, got %v", err)
	}
	if err := repo.Delete(ctx, alert.ID, s.user.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx, alert.ID, s.user.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestAlertRepositoryListByUser(t *testing.T) {
	conn := openTestDB(t)
	s := seed(t, conn)
	repo := NewAlertRepository(conn)
	ctx := context.Background()

	first, err := repo.Create(ctx, s.user.ID, s.product.ID, decimal.NewFromInt(7), domain.DefaultRadiusKm)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := repo.Create(ctx, s.user.ID, s.product.ID, decimal.NewFromInt(6), decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	views, err := repo.ListByUser(ctx, s.user.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(views))
	}
	if views[0].ID != second.ID || views[1].ID != first.ID {
		t.Fatalf("expected newest first, got %d then %d", views[0].ID, views[1].ID)
	}
	if views[0].StoreName != "Corner" || views[0].ProductName != "Coffee" {
		t.Fatalf("missing context %+v", views[0])
	}
	if !views[0].RadiusKm.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected radius %s", views[0].RadiusKm)
	}

	empty, err := repo.ListByUser(ctx, s.user.ID+1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no alerts for another user, got %d", len(empty))
	}
}

func TestUserRepositoryGetByID(t *testing.T) {
	conn := openTestDB(t)
	s := seed(t, conn)
	repo := NewUserRepository(conn)

	user, err := repo.GetByID(context.Background(), s.user.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if user.Email != "ana@example.com" {
		t.Fatalf("unexpected user %+v", user)
	}
	if _, err := repo.GetByID(context.Background(), 777); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCatalogRepositoryBoxFilter(t *testing.T) {
	conn := openTestDB(t)
	s := seed(t, conn)
	far := storeModel{Name: "Far", Latitude: ptr(40.4), Longitude: ptr(-3.7)}
	nowhere := storeModel{Name: "Nowhere"}
	if err := conn.Create(&far).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := conn.Create(&nowhere).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	tea := productModel{StoreID: far.ID, Name: "Tea", Price: decimal.NewFromInt(3), Currency: "EUR"}
	if err := conn.Omit("Store").Create(&tea).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	repo := NewCatalogRepository(conn)
	ctx := context.Background()
	box := geo.BoundingBox(geo.Point{Lat: -34.6, Lon: -58.4}, 10)

	stores, err := repo.ListStores(ctx, &box)
	if err != nil {
		t.Fatalf("list stores: %v", err)
	}
	if len(stores) != 1 || stores[0].ID != s.store.ID {
		t.Fatalf("expected only the nearby store, got %+v", stores)
	}
	all, err := repo.ListStores(ctx, nil)
	if err != nil {
		t.Fatalf("list stores: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 stores, got %d", len(all))
	}

	products, err := repo.ListProducts(ctx, domain.ProductFilter{Box: &box})
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(products) != 1 || products[0].Name != "Coffee" || products[0].Latitude == nil {
		t.Fatalf("unexpected products %+v", products)
	}

	byStore, err := repo.ListProducts(ctx, domain.ProductFilter{StoreID: far.ID})
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(byStore) != 1 || byStore[0].StoreName != "Far" {
		t.Fatalf("unexpected products %+v", byStore)
	}

	store, err := repo.GetStore(ctx, far.ID)
	if err != nil {
		t.Fatalf("get store: %v", err)
	}
	if store.Name != "Far" {
		t.Fatalf("unexpected store %+v", store)
	}
	if _, err := repo.GetStore(ctx, 9999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
