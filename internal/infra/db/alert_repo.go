package db

import (
	"context"
	"errors"
	"time"

	"github.com/offmarket/offmarket/internal/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

type alertContextRow struct {
	ID           uint
	UserID       uint
	ProductID    uint
	TargetPrice  decimal.Decimal
	Radius       decimal.Decimal
	Active       bool
	Triggered    bool
	CreatedAt    time.Time
	ProductName  string
	CurrentPrice decimal.Decimal
	Currency     string
	StoreName    string
	OwnerEmail   string
}

func (r *AlertRepository) ListDueForEvaluation(ctx context.Context) ([]domain.AlertWithContext, error) {
	var rows []alertContextRow
	err := r.db.WithContext(ctx).
		Table("alerts AS a").
		Select(`a.id, a.user_id, a.product_id, a.target_price, a.radius, a.active, a.triggered, a.created_at,
			p.name AS product_name, p.price AS current_price, p.currency,
			s.name AS store_name, u.email AS owner_email`).
		Joins("JOIN products p ON p.id = a.product_id").
		Joins("JOIN stores s ON s.id = p.store_id").
		Joins("JOIN users u ON u.id = a.user_id").
		Where("a.active = ? AND a.triggered = ?", true, false).
		Order("a.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	due := make([]domain.AlertWithContext, 0, len(rows))
	for _, row := range rows {
		due = append(due, domain.AlertWithContext{
			Alert:        row.alert(),
			ProductName:  row.ProductName,
			CurrentPrice: row.CurrentPrice,
			Currency:     row.Currency,
			StoreName:    row.StoreName,
			OwnerEmail:   row.OwnerEmail,
		})
	}
	return due, nil
}

// MarkTriggered resolves the alert. Repeating it leaves the same row.
func (r *AlertRepository) MarkTriggered(ctx context.Context, alertID uint) error {
	result := r.db.WithContext(ctx).
		Model(&alertModel{}).
		Where("id = ?", alertID).
		Updates(map[string]any{"triggered": true, "active": false})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *AlertRepository) Create(ctx context.Context, userID, productID uint, targetPrice, radiusKm decimal.Decimal) (*domain.Alert, error) {
	if err := domain.ValidateNewAlert(userID, productID, targetPrice, radiusKm); err != nil {
		return nil, err
	}

	model := alertModel{
		UserID:      userID,
		ProductID:   productID,
		TargetPrice: targetPrice,
		RadiusKm:    radiusKm,
		Active:      true,
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) || !r.referencesExist(ctx, userID, productID) {
			return nil, &domain.ValidationError{Field: "product_id", Reason: "unknown product or user"}
		}
		return nil, err
	}

	alert := mapAlertToDomain(model)
	return &alert, nil
}

func (r *AlertRepository) ToggleActive(ctx context.Context, alertID, ownerUserID uint) (*domain.Alert, error) {
	var model alertModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", alertID, ownerUserID).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		if model.Triggered {
			return &domain.ValidationError{Field: "active", Reason: "alert already triggered"}
		}
		model.Active = !model.Active
		return tx.Model(&alertModel{}).Where("id = ?", model.ID).Update("active", model.Active).Error
	})
	if err != nil {
		return nil, err
	}

	alert := mapAlertToDomain(model)
	return &alert, nil
}

func (r *AlertRepository) Delete(ctx context.Context, alertID, ownerUserID uint) error {
	result := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", alertID, ownerUserID).Delete(&alertModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *AlertRepository) ListByUser(ctx context.Context, userID uint) ([]domain.AlertView, error) {
	var rows []alertContextRow
	err := r.db.WithContext(ctx).
		Table("alerts AS a").
		Select(`a.id, a.user_id, a.product_id, a.target_price, a.radius, a.active, a.triggered, a.created_at,
			p.name AS product_name, p.price AS current_price, p.currency, COALESCE(s.name, '') AS store_name`).
		Joins("JOIN products p ON p.id = a.product_id").
		Joins("LEFT JOIN stores s ON s.id = p.store_id").
		Where("a.user_id = ?", userID).
		Order("a.created_at DESC, a.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	views := make([]domain.AlertView, 0, len(rows))
	for _, row := range rows {
		views = append(views, domain.AlertView{
			Alert:        row.alert(),
			ProductName:  row.ProductName,
			CurrentPrice: row.CurrentPrice,
			Currency:     row.Currency,
			StoreName:    row.StoreName,
		})
	}
	return views, nil
}

// referencesExist backs up drivers that report constraint failures without a
// translatable code.
func (r *AlertRepository) referencesExist(ctx context.Context, userID, productID uint) bool {
	var users, products int64
	if err := r.db.WithContext(ctx).Model(&userModel{}).Where("id = ?", userID).Count(&users).Error; err != nil {
		return true
	}
	if err := r.db.WithContext(ctx).Model(&productModel{}).Where("id = ?", productID).Count(&products).Error; err != nil {
		return true
	}
	return users > 0 && products > 0
}

func (row alertContextRow) alert() domain.Alert {
	return domain.Alert{
		ID:          row.ID,
		UserID:      row.UserID,
		ProductID:   row.ProductID,
		TargetPrice: row.TargetPrice,
		RadiusKm:    row.Radius,
		Active:      row.Active,
		Triggered:   row.Triggered,
		CreatedAt:   row.CreatedAt,
	}
}

func mapAlertToDomain(model alertModel) domain.Alert {
	return domain.Alert{
		ID:          model.ID,
		UserID:      model.UserID,
		ProductID:   model.ProductID,
		TargetPrice: model.TargetPrice,
		RadiusKm:    model.RadiusKm,
		Active:      model.Active,
		Triggered:   model.Triggered,
		CreatedAt:   model.CreatedAt,
	}
}
