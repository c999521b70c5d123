package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Trend labels stored on each observation
const (
	TrendUp   = "up"
	TrendDown = "down"
	TrendFlat = "flat"
)

// StockData is one daily observation per (symbol, date). Close price is
// always present; the derived columns stay NULL until enough trailing
// history exists for their window.
type StockData struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	Date        time.Time        `gorm:"type:date;uniqueIndex:idx_symbol_date;not null" json:"date"`
	Symbol      string           `gorm:"uniqueIndex:idx_symbol_date;not null" json:"symbol"`
	CompanyName string           `json:"company_name"`
	Sector      string           `json:"sector"`
	OpenPrice   *decimal.Decimal `gorm:"type:decimal(15,2)" json:"open_price"`
	HighPrice   *decimal.Decimal `gorm:"type:decimal(15,2)" json:"high_price"`
	LowPrice    *decimal.Decimal `gorm:"type:decimal(15,2)" json:"low_price"`
	ClosePrice  decimal.Decimal  `gorm:"type:decimal(15,2);not null" json:"close_price"`
	Volume      int64            `json:"volume"`
	PctChange   *decimal.Decimal `gorm:"type:decimal(10,2)" json:"pct_change"`
	MA7         *decimal.Decimal `gorm:"column:ma_7;type:decimal(15,2)" json:"ma_7"`
	MA30        *decimal.Decimal `gorm:"column:ma_30;type:decimal(15,2)" json:"ma_30"`
	Volatility  *decimal.Decimal `gorm:"type:decimal(15,2)" json:"volatility"`
	Trend       string           `json:"trend"` // up, down, flat; empty on the first row
	OilPrice    *decimal.Decimal `gorm:"type:decimal(15,2)" json:"oil_price"`
	CreatedAt   time.Time        `json:"created_at"`
}

// TableName keeps the historical table name
func (StockData) TableName() string {
	return "stock_data"
}

// MigrateETLModels runs database migrations for the ETL tables
func MigrateETLModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Company{},
		&StockData{},
		&ETLRun{},
	)
}
