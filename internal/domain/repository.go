package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type UserRepository interface {
	GetByID(ctx context.Context, userID uint) (*User, error)
}

// AlertStore persists alerts. MarkTriggered must be idempotent.
type AlertStore interface {
	ListDueForEvaluation(ctx context.Context) ([]AlertWithContext, error)
	MarkTriggered(ctx context.Context, alertID uint) error
	Create(ctx context.Context, userID, productID uint, targetPrice, radiusKm decimal.Decimal) (*Alert, error)
	ToggleActive(ctx context.Context, alertID, ownerUserID uint) (*Alert, error)
	Delete(ctx context.Context, alertID, ownerUserID uint) error
	ListByUser(ctx context.Context, userID uint) ([]AlertView, error)
}
