package controllers

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"energy_stock_etl/models"
	"energy_stock_etl/services/etl"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ETLController handles the uptime-poller trigger endpoint and run
// history queries
type ETLController struct {
	db       *gorm.DB
	guard    *etl.Guard
	pipeline *etl.Pipeline
	loc      *time.Location
	now      func() time.Time
}

// NewETLController creates a new ETL controller
func NewETLController(db *gorm.DB, guard *etl.Guard, pipeline *etl.Pipeline, loc *time.Location) *ETLController {
	return &ETLController{
		db:       db,
		guard:    guard,
		pipeline: pipeline,
		loc:      loc,
		now:      time.Now,
	}
}

// Trigger is polled by an external uptime monitor every few minutes.
// It runs the pipeline at most once per day, after the daily window
// opens.
// GET/POST /etl
func (ec *ETLController) Trigger(c *gin.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in ETL trigger: %v", r)
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":  "error",
				"message": "Unexpected error occurred",
				"error":   fmt.Sprint(r),
			})
		}
	}()

	now := ec.now()
	currentTime := now.In(ec.loc).Format("2006-01-02 15:04:05 MST")

	if !ec.guard.WindowOpen(now) {
		c.JSON(http.StatusOK, gin.H{
			"status":           "skipped",
			"message":          "ETL not scheduled yet - waiting for 8:00 AM IST",
			"current_time_ist": currentTime,
			"next_run_time":    "8:00 AM IST",
		})
		return
	}

	if ec.db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Supabase credentials not configured",
		})
		return
	}

	ran, err := ec.guard.HasSuccessfulRunToday(now)
	if err != nil {
		// a failed lookup must not wedge the daily run
		log.Printf("Error checking run history: %v", err)
	}
	if ran {
		c.JSON(http.StatusOK, gin.H{
			"status":           "skipped",
			"message":          "ETL already completed today",
			"current_time_ist": currentTime,
			"next_run_time":    "Tomorrow after 8:00 AM IST",
		})
		return
	}

	log.Printf("Starting ETL pipeline at %s", currentTime)
	result, err := ec.pipeline.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "ETL pipeline failed",
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           "success",
		"message":          "ETL pipeline completed successfully",
		"current_time_ist": currentTime,
		"details": gin.H{
			"rows_inserted": result.RowsInserted,
			"companies":     result.Companies,
			"date_range":    result.DateRange(),
		},
	})
}

// GetRuns returns recent run log entries, newest first
// GET /api/v1/etl/runs
func (ec *ETLController) GetRuns(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	var runs []models.ETLRun
	query := ec.db.Order("run_time DESC").Limit(limit)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Find(&runs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  runs,
		"total": len(runs),
	})
}

// GetLastRun returns the most recent run log entry
// GET /api/v1/etl/runs/latest
func (ec *ETLController) GetLastRun(c *gin.Context) {
	var run models.ETLRun
	err := ec.db.Order("run_time DESC").First(&run).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "No runs recorded yet"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": run})
}
