package etl

import (
	"fmt"
	"time"

	"energy_stock_etl/models"

	"gorm.io/gorm"
)

// Decision is the outcome of a schedule check
type Decision int

const (
	// DecisionRun means the pipeline should execute now
	DecisionRun Decision = iota
	// DecisionTooEarly means the daily window has not opened yet
	DecisionTooEarly
	// DecisionAlreadyRan means a successful run was already logged today
	DecisionAlreadyRan
)

// Guard decides whether a poll should trigger a pipeline run. Pollers
// hit the endpoint every few minutes; the guard turns that into at most
// one successful run per local day.
type Guard struct {
	db        *gorm.DB
	loc       *time.Location
	runHour   int
	runMinute int
}

// NewGuard creates a guard using the given local timezone and daily
// window opening time.
func NewGuard(db *gorm.DB, loc *time.Location, runHour, runMinute int) *Guard {
	return &Guard{
		db:        db,
		loc:       loc,
		runHour:   runHour,
		runMinute: runMinute,
	}
}

// Evaluate returns the decision for a poll arriving at now. A failed
// run log lookup does not block execution; the error is returned
// alongside DecisionRun so the caller can log it.
func (g *Guard) Evaluate(now time.Time) (Decision, error) {
	if !g.WindowOpen(now) {
		return DecisionTooEarly, nil
	}

	ran, err := g.HasSuccessfulRunToday(now)
	if err != nil {
		return DecisionRun, fmt.Errorf("failed to check run history: %w", err)
	}
	if ran {
		return DecisionAlreadyRan, nil
	}
	return DecisionRun, nil
}

// WindowOpen reports whether local time has reached the daily opening.
// The boundary minute itself counts as open.
func (g *Guard) WindowOpen(now time.Time) bool {
	local := now.In(g.loc)
	if local.Hour() != g.runHour {
		return local.Hour() > g.runHour
	}
	return local.Minute() >= g.runMinute
}

// HasSuccessfulRunToday checks the run log for a success recorded
// between the start and end of the current local day.
func (g *Guard) HasSuccessfulRunToday(now time.Time) (bool, error) {
	local := now.In(g.loc)
	year, month, day := local.Date()
	dayStart := time.Date(year, month, day, 0, 0, 0, 0, g.loc)
	dayEnd := time.Date(year, month, day, 23, 59, 59, 0, g.loc)

	// Bounds go to the driver in UTC so text-affinity stores compare
	// them against UTC run times correctly
	var count int64
	err := g.db.Model(&models.ETLRun{}).
		Where("status = ? AND run_time >= ? AND run_time <= ?", models.RunStatusSuccess, dayStart.UTC(), dayEnd.UTC()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
