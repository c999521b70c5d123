package scheduler

import (
	"context"
	"log"
	"time"

	"energy_stock_etl/models"
	"energy_stock_etl/services/etl"

	"github.com/go-co-op/gocron"
	"gorm.io/gorm"
)

// PollInterval matches the external uptime monitor's polling cadence
const PollInterval = 15 * time.Minute

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron     *gocron.Scheduler
	db       *gorm.DB
	guard    *etl.Guard
	pipeline *etl.Pipeline
}

// NewScheduler creates a new scheduler instance
func NewScheduler(db *gorm.DB, guard *etl.Guard, pipeline *etl.Pipeline) *Scheduler {
	return &Scheduler{
		cron:     gocron.NewScheduler(time.UTC),
		db:       db,
		guard:    guard,
		pipeline: pipeline,
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Poll the daily window like the external monitor does
	s.cron.Every(PollInterval).Do(func() {
		s.pollPipelineWindow()
	})

	// Cleanup expired sessions and aged rows nightly at 01:00 UTC
	s.cron.Every(1).Day().At("01:00").Do(func() {
		s.cleanupOldData()
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

// pollPipelineWindow runs the pipeline once the daily window opens,
// at most once per day
func (s *Scheduler) pollPipelineWindow() {
	decision, err := s.guard.Evaluate(time.Now())
	if err != nil {
		log.Printf("Error evaluating run window: %v", err)
	}

	switch decision {
	case etl.DecisionTooEarly:
		return
	case etl.DecisionAlreadyRan:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if _, err := s.pipeline.Run(ctx); err != nil {
		log.Printf("Scheduled pipeline run failed: %v", err)
	}
}

// cleanupOldData removes expired sessions and aged rows to keep the
// store bounded
func (s *Scheduler) cleanupOldData() {
	log.Println("Cleaning up old data...")

	if err := s.db.Where("expires_at < ?", time.Now()).Delete(&models.AdminSession{}).Error; err != nil {
		log.Printf("Error cleaning up expired sessions: %v", err)
	}

	// Keep roughly six months of run history
	sixMonthsAgo := time.Now().AddDate(0, -6, 0)
	if err := s.db.Where("run_time < ?", sixMonthsAgo).Delete(&models.ETLRun{}).Error; err != nil {
		log.Printf("Error cleaning up old run logs: %v", err)
	}

	// Daily upserts only cover the trailing window, so older
	// observations accumulate; keep a bit over a year
	cutoff := time.Now().AddDate(0, 0, -400)
	if err := s.db.Where("date < ?", cutoff).Delete(&models.StockData{}).Error; err != nil {
		log.Printf("Error cleaning up old observations: %v", err)
	}

	log.Println("Cleanup completed")
}
