package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/offmarket/offmarket/internal/domain"
	"github.com/offmarket/offmarket/internal/usecase"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	kindUnauthorized = "unauthorized"
	kindRateLimited  = "rate_limited"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type alertResponse struct {
	ID          uint             `json:"id"`
	UserID      uint             `json:"user_id"`
	ProductID   uint             `json:"product_id"`
	TargetPrice decimal.Decimal  `json:"target_price"`
	Radius      decimal.Decimal  `json:"radius"`
	Active      bool             `json:"active"`
	Triggered   bool             `json:"triggered"`
	CreatedAt   time.Time        `json:"created_at"`
	ProductName string           `json:"product_name,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Currency    string           `json:"currency,omitempty"`
	StoreName   string           `json:"store_name,omitempty"`
}

type storeResponse struct {
	ID         uint     `json:"id"`
	Name       string   `json:"name"`
	Website    string   `json:"website,omitempty"`
	Address    string   `json:"address,omitempty"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

type productResponse struct {
	ID         uint            `json:"id"`
	StoreID    uint            `json:"store_id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	StoreName  string          `json:"store_name"`
	Latitude   *float64        `json:"latitude"`
	Longitude  *float64        `json:"longitude"`
	DistanceKm *float64        `json:"distance_km,omitempty"`
}

func mapAlert(alert domain.Alert) alertResponse {
	return alertResponse{
		ID:          alert.ID,
		UserID:      alert.UserID,
		ProductID:   alert.ProductID,
		TargetPrice: alert.TargetPrice,
		Radius:      alert.RadiusKm,
		Active:      alert.Active,
		Triggered:   alert.Triggered,
		CreatedAt:   alert.CreatedAt,
	}
}

func mapAlertView(view domain.AlertView) alertResponse {
	resp := mapAlert(view.Alert)
	price := view.CurrentPrice
	resp.ProductName = view.ProductName
	resp.Price = &price
	resp.Currency = view.Currency
	resp.StoreName = view.StoreName
	return resp
}

func mapStore(result usecase.StoreResult) storeResponse {
	return storeResponse{
		ID:         result.ID,
		Name:       result.Name,
		Website:    result.Website,
		Address:    result.Address,
		Latitude:   result.Latitude,
		Longitude:  result.Longitude,
		DistanceKm: result.DistanceKm,
	}
}

func mapProduct(result usecase.ProductResult) productResponse {
	return productResponse{
		ID:         result.ID,
		StoreID:    result.StoreID,
		Name:       result.Name,
		Price:      result.Price,
		Currency:   result.Currency,
		StoreName:  result.StoreName,
		Latitude:   result.Latitude,
		Longitude:  result.Longitude,
		DistanceKm: result.DistanceKm,
	}
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrMissingUser), errors.Is(err, usecase.ErrUserNotRegistered):
		return http.StatusUnauthorized, kindUnauthorized
	case errors.Is(err, ErrInvalidArguments):
		return http.StatusBadRequest, domain.KindValidation
	}

	kind := domain.Kind(err)
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest, kind
	case domain.KindNotFound:
		return http.StatusNotFound, kind
	case domain.KindConflict:
		return http.StatusConflict, kind
	case domain.KindFetch:
		return http.StatusServiceUnavailable, kind
	default:
		return http.StatusInternalServerError, domain.KindInternal
	}
}

func (h *Handlers) writeError(c *gin.Context, err error) {
	status, kind := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Warn("unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: message, Kind: kind})
}
