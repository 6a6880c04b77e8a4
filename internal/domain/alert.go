package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRadiusKm is applied when an alert is created without a radius.
var DefaultRadiusKm = decimal.NewFromInt(50)

// Alert is a user's standing request to hear about a price at or below
// TargetPrice. Triggered implies !Active.
type Alert struct {
	ID          uint
	UserID      uint
	ProductID   uint
	TargetPrice decimal.Decimal
	RadiusKm    decimal.Decimal
	Active      bool
	Triggered   bool
	CreatedAt   time.Time
}

// AlertWithContext is a pending alert joined with the data needed to
// evaluate it and to write the notification.
type AlertWithContext struct {
	Alert
	ProductName  string
	CurrentPrice decimal.Decimal
	Currency     string
	StoreName    string
	OwnerEmail   string
}

// AlertView is an alert as listed to its owner.
type AlertView struct {
	Alert
	ProductName  string
	CurrentPrice decimal.Decimal
	Currency     string
	StoreName    string
}

// AlertTriggered is emitted once per alert after it has been resolved.
type AlertTriggered struct {
	AlertID      uint            `json:"alert_id"`
	UserID       uint            `json:"user_id"`
	ProductID    uint            `json:"product_id"`
	ProductName  string          `json:"product_name"`
	StoreName    string          `json:"store_name"`
	Currency     string          `json:"currency"`
	TargetPrice  decimal.Decimal `json:"target_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Notified     bool            `json:"notified"`
	RunID        string          `json:"run_id"`
	TriggeredAt  time.Time       `json:"triggered_at"`
}

// PriceDrop is the content of one price-drop email.
type PriceDrop struct {
	To           string
	ProductName  string
	StoreName    string
	Currency     string
	TargetPrice  decimal.Decimal
	CurrentPrice decimal.Decimal
}
