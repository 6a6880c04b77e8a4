package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/offmarket/offmarket/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrUserNotRegistered also matches domain.ErrNotFound.
var ErrUserNotRegistered = fmt.Errorf("user not registered: %w", domain.ErrNotFound)

type AlertUsecase struct {
	users  domain.UserRepository
	alerts domain.AlertStore
}

func NewAlertUsecase(users domain.UserRepository, alerts domain.AlertStore) *AlertUsecase {
	return &AlertUsecase{users: users, alerts: alerts}
}

// AddAlert creates an active alert. A nil radius falls back to the default.
func (u *AlertUsecase) AddAlert(ctx context.Context, userID, productID uint, targetPrice decimal.Decimal, radiusKm *decimal.Decimal) (*domain.Alert, error) {
	user, err := u.owner(ctx, userID)
	if err != nil {
		return nil, err
	}

	radius := domain.DefaultRadiusKm
	if radiusKm != nil {
		radius = *radiusKm
	}
	return u.alerts.Create(ctx, user.ID, productID, targetPrice, radius)
}

func (u *AlertUsecase) ListAlerts(ctx context.Context, userID uint) ([]domain.AlertView, error) {
	user, err := u.owner(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.alerts.ListByUser(ctx, user.ID)
}

func (u *AlertUsecase) ToggleAlert(ctx context.Context, userID, alertID uint) (*domain.Alert, error) {
	user, err := u.owner(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.alerts.ToggleActive(ctx, alertID, user.ID)
}

func (u *AlertUsecase) DeleteAlert(ctx context.Context, userID, alertID uint) error {
	user, err := u.owner(ctx, userID)
	if err != nil {
		return err
	}
	return u.alerts.Delete(ctx, alertID, user.ID)
}

func (u *AlertUsecase) owner(ctx context.Context, userID uint) (*domain.User, error) {
	if userID == 0 {
		return nil, ErrUserNotRegistered
	}
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrUserNotRegistered
		}
		return nil, err
	}
	return user, nil
}
