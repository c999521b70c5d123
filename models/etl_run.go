package models

import "time"

// Run statuses recorded in the audit log
const (
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// ETLRun is one audit row per pipeline execution
type ETLRun struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RunTime      time.Time `gorm:"index;not null" json:"run_time"`
	RowsInserted int       `json:"rows_inserted"`
	Status       string    `gorm:"index" json:"status"` // success, failed
	Notes        string    `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName keeps the historical table name
func (ETLRun) TableName() string {
	return "etl_log"
}
