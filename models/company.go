package models

import (
	"time"

	"gorm.io/gorm"
)

// Company represents a tracked energy-sector ticker
type Company struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"uniqueIndex;not null" json:"symbol"`
	Name      string    `json:"name"`
	Sector    string    `json:"sector"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultCompanies is the reference universe loaded when the companies
// table is empty
var DefaultCompanies = []Company{
	{Symbol: "XOM", Name: "Exxon Mobil Corporation", Sector: "Oil & Gas Integrated"},
	{Symbol: "CVX", Name: "Chevron Corporation", Sector: "Oil & Gas Integrated"},
	{Symbol: "SHEL", Name: "Shell plc", Sector: "Oil & Gas Integrated"},
	{Symbol: "BP", Name: "BP p.l.c.", Sector: "Oil & Gas Integrated"},
	{Symbol: "TTE", Name: "TotalEnergies SE", Sector: "Oil & Gas Integrated"},
	{Symbol: "COP", Name: "ConocoPhillips", Sector: "Oil & Gas E&P"},
	{Symbol: "EOG", Name: "EOG Resources, Inc.", Sector: "Oil & Gas E&P"},
	{Symbol: "OXY", Name: "Occidental Petroleum Corporation", Sector: "Oil & Gas E&P"},
	{Symbol: "SLB", Name: "Schlumberger Limited", Sector: "Oilfield Services"},
	{Symbol: "HAL", Name: "Halliburton Company", Sector: "Oilfield Services"},
	{Symbol: "MPC", Name: "Marathon Petroleum Corporation", Sector: "Refining & Marketing"},
	{Symbol: "PSX", Name: "Phillips 66", Sector: "Refining & Marketing"},
	{Symbol: "VLO", Name: "Valero Energy Corporation", Sector: "Refining & Marketing"},
	{Symbol: "KMI", Name: "Kinder Morgan, Inc.", Sector: "Midstream"},
	{Symbol: "WMB", Name: "The Williams Companies, Inc.", Sector: "Midstream"},
}

// SeedCompanies loads the default company list if the table is empty
func SeedCompanies(db *gorm.DB) error {
	var count int64
	db.Model(&Company{}).Count(&count)
	if count > 0 {
		// Companies already seeded
		return nil
	}

	// Insert a copy so gorm does not write generated IDs back into the
	// package-level slice
	companies := make([]Company, len(DefaultCompanies))
	copy(companies, DefaultCompanies)
	return db.Create(&companies).Error
}
