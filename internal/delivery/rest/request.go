package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/offmarket/offmarket/internal/domain"
	"github.com/offmarket/offmarket/internal/geo"
	"github.com/offmarket/offmarket/internal/usecase"
	"github.com/shopspring/decimal"
)

const (
	UserIDHeader = "X-User-ID"

	defaultStoreRadiusKm = 100
)

var (
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrMissingUser      = errors.New("missing user identity")
)

// NullableDecimal accepts a JSON number, a numeric string or null.
type NullableDecimal struct {
	Decimal decimal.Decimal
	Valid   bool
}

func (n *NullableDecimal) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		n.Valid = false
		return nil
	}
	trimmed := strings.TrimSpace(string(data))
	if len(trimmed) == 0 {
		n.Valid = false
		return nil
	}
	if trimmed[0] == '"' && trimmed[len(trimmed)-1] == '"' {
		trimmed = strings.TrimSpace(strings.Trim(trimmed, "\""))
		if trimmed == "" {
			n.Valid = false
			return nil
		}
	}
	dec, err := decimal.NewFromString(trimmed)
	if err != nil {
		n.Valid = false
		return err
	}
	n.Decimal = dec
	n.Valid = true
	return nil
}

func (n NullableDecimal) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Decimal.String())
}

func (n NullableDecimal) Ptr() *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	value := n.Decimal
	return &value
}

type createAlertRequest struct {
	ProductID   uint            `json:"product_id"`
	TargetPrice NullableDecimal `json:"target_price"`
	Radius      NullableDecimal `json:"radius"`
}

func ParseID(raw string) (uint, error) {
	idStr := strings.TrimSpace(raw)
	if idStr == "" {
		return 0, ErrInvalidArguments
	}
	value, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || value == 0 {
		return 0, ErrInvalidArguments
	}
	return uint(value), nil
}

// userID reads the authenticated user from the header set upstream. The
// query parameter covers websocket clients, which cannot set headers.
func userID(c *gin.Context) (uint, error) {
	raw := c.GetHeader(UserIDHeader)
	if raw == "" {
		raw = c.Query("user_id")
	}
	if raw == "" {
		return 0, ErrMissingUser
	}
	id, err := ParseID(raw)
	if err != nil {
		return 0, ErrMissingUser
	}
	return id, nil
}

// parseNearby reads latitude, longitude and radius. It returns nil when no
// position was given, or when a radius is required and missing.
func parseNearby(c *gin.Context, defaultRadius *float64) (*usecase.Nearby, error) {
	latRaw, lonRaw := c.Query("latitude"), c.Query("longitude")
	if latRaw == "" || lonRaw == "" {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, &domain.ValidationError{Field: "latitude", Reason: "must be a number between -90 and 90"}
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil || lon < -180 || lon > 180 {
		return nil, &domain.ValidationError{Field: "longitude", Reason: "must be a number between -180 and 180"}
	}

	var radius float64
	radiusRaw := c.Query("radius")
	switch {
	case radiusRaw != "":
		radius, err = strconv.ParseFloat(radiusRaw, 64)
		if err != nil || radius < 0 {
			return nil, &domain.ValidationError{Field: "radius", Reason: "must be a non-negative number"}
		}
	case defaultRadius != nil:
		radius = *defaultRadius
	default:
		return nil, nil
	}

	return &usecase.Nearby{Center: geo.Point{Lat: lat, Lon: lon}, RadiusKm: radius}, nil
}
