package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Stock represents a tradable symbol and its cached quote. LastUpdateTime is
// nil until the first successful price fetch; the quote service treats a nil
// timestamp as always stale.
type Stock struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Symbol         string          `gorm:"uniqueIndex;not null" json:"symbol"`
	Name           string          `json:"name"`
	Active         bool            `gorm:"default:true" json:"active"`
	LastPrice      decimal.Decimal `gorm:"type:decimal(15,4)" json:"last_price"`
	LastUpdateTime *time.Time      `json:"last_update_time"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Alert statuses.
const (
	AlertStatusOpen  = "OPEN"
	AlertStatusFired = "FIRED"
)

// Alert tracks one user-requested price watch. The watch direction is
// implied by PriceAtCreation vs DesiredPrice and fixed at creation:
// baseline >= desired watches for a fall, baseline < desired for a rise.
type Alert struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"index;not null" json:"user_id"`
	User            User            `gorm:"foreignKey:UserID" json:"-"`
	StockID         uint            `gorm:"index;not null" json:"stock_id"`
	Stock           Stock           `gorm:"foreignKey:StockID" json:"-"`
	PriceAtCreation decimal.Decimal `gorm:"type:decimal(15,4)" json:"price_at_creation"`
	DesiredPrice    decimal.Decimal `gorm:"type:decimal(15,4)" json:"desired_price"`
	Status          string          `gorm:"index;default:'OPEN'" json:"status"`
	TriggeredAt     *time.Time      `json:"triggered_at"`
	LastCheckedAt   *time.Time      `json:"last_checked_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// MigrateStockModels runs database migrations for stock-related models.
func MigrateStockModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Stock{},
		&Alert{},
	)
}

// SeedStocks loads a starter catalog when the stocks table is empty.
// Bulk symbol import is handled out of band; this keeps a fresh install
// usable.
func SeedStocks(db *gorm.DB) error {
	var count int64
	if err := db.Model(&Stock{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	stocks := []Stock{
		{Symbol: "AAPL", Name: "Apple Inc.", Active: true},
		{Symbol: "MSFT", Name: "Microsoft Corporation", Active: true},
		{Symbol: "GOOG", Name: "Alphabet Inc.", Active: true},
		{Symbol: "AMZN", Name: "Amazon.com Inc.", Active: true},
		{Symbol: "TSLA", Name: "Tesla Inc.", Active: true},
		{Symbol: "META", Name: "Meta Platforms Inc.", Active: true},
		{Symbol: "NVDA", Name: "NVIDIA Corporation", Active: true},
		{Symbol: "JPM", Name: "JPMorgan Chase & Co.", Active: true},
		{Symbol: "V", Name: "Visa Inc.", Active: true},
		{Symbol: "KO", Name: "The Coca-Cola Company", Active: true},
	}
	return db.Create(&stocks).Error
}
