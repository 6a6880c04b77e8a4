package db

import (
	"time"

	"github.com/shopspring/decimal"
)

type userModel struct {
	ID        uint   `gorm:"primaryKey"`
	Email     string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

func (userModel) TableName() string { return "users" }

type storeModel struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Website   string
	Address   string
	Latitude  *float64 `gorm:"index:idx_stores_location,priority:1"`
	Longitude *float64 `gorm:"index:idx_stores_location,priority:2"`
	CreatedAt time.Time
}

func (storeModel) TableName() string { return "stores" }

type productModel struct {
	ID        uint            `gorm:"primaryKey"`
	StoreID   uint            `gorm:"index;not null"`
	Store     storeModel      `gorm:"foreignKey:StoreID"`
	Name      string          `gorm:"not null"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency  string          `gorm:"size:10;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (productModel) TableName() string { return "products" }

type alertModel struct {
	ID          uint            `gorm:"primaryKey"`
	UserID      uint            `gorm:"index;not null"`
	User        userModel       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	ProductID   uint            `gorm:"index;not null"`
	Product     productModel    `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	TargetPrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	RadiusKm    decimal.Decimal `gorm:"column:radius;type:numeric(10,3);not null"`
	Active      bool            `gorm:"index:idx_alerts_due,priority:1;not null"`
	Triggered   bool            `gorm:"index:idx_alerts_due,priority:2;not null"`
	CreatedAt   time.Time
}

func (alertModel) TableName() string { return "alerts" }
