package controllers

import (
	"log"
	"net/http"
	"time"

	"energy_stock_etl/middleware"
	"energy_stock_etl/models"
	"energy_stock_etl/services/etl"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AdminAPIController exposes the token-protected admin JSON API
type AdminAPIController struct {
	db       *gorm.DB
	pipeline *etl.Pipeline
}

// NewAdminAPIController creates a new admin API controller
func NewAdminAPIController(db *gorm.DB, pipeline *etl.Pipeline) *AdminAPIController {
	return &AdminAPIController{db: db, pipeline: pipeline}
}

// loginRequest is the JSON login payload
type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login exchanges admin credentials for an API token
// POST /api/v1/admin/login
func (ac *AdminAPIController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	var admin models.AdminUser
	if err := ac.db.Where("username = ? AND is_active = ?", req.Username, true).First(&admin).Error; err != nil {
		middleware.RecordLoginAttempt(c.ClientIP(), false)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}
	if !admin.CheckPassword(req.Password) {
		middleware.RecordLoginAttempt(c.ClientIP(), false)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	token, err := middleware.GenerateAdminToken(admin.Username)
	if err != nil {
		log.Printf("Error generating admin token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	middleware.RecordLoginAttempt(c.ClientIP(), true)
	now := time.Now()
	ac.db.Model(&admin).Update("last_login_at", now)

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(middleware.AdminTokenTTL.Seconds()),
	})
}

// ForceRun triggers a pipeline run immediately, bypassing the daily
// schedule check
// POST /api/v1/admin/etl/run
func (ac *AdminAPIController) ForceRun(c *gin.Context) {
	username, _ := middleware.GetAdminFromContext(c)
	log.Printf("Admin %s requested a pipeline run via API", username)

	result, err := ac.pipeline.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "ETL pipeline failed",
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "ETL pipeline completed successfully",
		"details": gin.H{
			"rows_inserted": result.RowsInserted,
			"companies":     result.Companies,
			"date_range":    result.DateRange(),
		},
	})
}

// Status returns store counts and the most recent run
// GET /api/v1/admin/status
func (ac *AdminAPIController) Status(c *gin.Context) {
	var companyCount, rowCount, runCount int64
	ac.db.Model(&models.Company{}).Where("is_active = ?", true).Count(&companyCount)
	ac.db.Model(&models.StockData{}).Count(&rowCount)
	ac.db.Model(&models.ETLRun{}).Count(&runCount)

	status := gin.H{
		"companies": companyCount,
		"rows":      rowCount,
		"runs":      runCount,
	}

	var lastRun models.ETLRun
	if err := ac.db.Order("run_time DESC").First(&lastRun).Error; err == nil {
		status["last_run"] = lastRun
	}

	c.JSON(http.StatusOK, gin.H{"data": status})
}
