package admin

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"energy_stock_etl/models"
	"energy_stock_etl/services/archive"
	"energy_stock_etl/services/etl"
	"energy_stock_etl/services/runfeed"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AdminController handles admin UI requests
type AdminController struct {
	db       *gorm.DB
	pipeline *etl.Pipeline
	hub      *runfeed.Hub
	archive  *archive.Client
}

// NewAdminController creates a new admin controller
func NewAdminController(db *gorm.DB, pipeline *etl.Pipeline, hub *runfeed.Hub, archiveClient *archive.Client) *AdminController {
	return &AdminController{
		db:       db,
		pipeline: pipeline,
		hub:      hub,
		archive:  archiveClient,
	}
}

// Dashboard shows the admin dashboard
func (ac *AdminController) Dashboard(c *gin.Context) {
	adminUser := ac.getAdminUser(c)

	var companyCount int64
	ac.db.Model(&models.Company{}).Where("is_active = ?", true).Count(&companyCount)

	var rowCount int64
	ac.db.Model(&models.StockData{}).Count(&rowCount)

	var runCount int64
	ac.db.Model(&models.ETLRun{}).Count(&runCount)

	var lastRun models.ETLRun
	hasLastRun := ac.db.Order("run_time DESC").First(&lastRun).Error == nil

	var latestDate string
	var latest models.StockData
	if ac.db.Order("date DESC").First(&latest).Error == nil {
		latestDate = latest.Date.Format("2006-01-02")
	}

	feedClients := 0
	if ac.hub != nil {
		feedClients = ac.hub.ClientCount()
	}

	archiveStatus := map[string]interface{}{"uri_set": false, "connected": false}
	if ac.archive != nil {
		archiveStatus = ac.archive.ConnectionStatus()
	}

	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"companyCount":     companyCount,
		"rowCount":         rowCount,
		"runCount":         runCount,
		"lastRun":          lastRun,
		"hasLastRun":       hasLastRun,
		"latestDate":       latestDate,
		"feedClients":      feedClients,
		"archiveStatus":    archiveStatus,
		"mirrorConfigured": ac.pipeline != nil && ac.pipeline.Mirror != nil,
		"adminUser":        adminUser,
		"page":             "dashboard",
		"title":            "Dashboard",
	})
}

// getAdminUser retrieves the admin user from context
func (ac *AdminController) getAdminUser(c *gin.Context) *models.AdminUser {
	if user, exists := c.Get("admin_user"); exists {
		if adminUser, ok := user.(models.AdminUser); ok {
			return &adminUser
		}
	}
	return nil
}

// CompaniesPage shows the tracked company list
func (ac *AdminController) CompaniesPage(c *gin.Context) {
	adminUser := ac.getAdminUser(c)

	var companies []models.Company
	ac.db.Order("symbol").Find(&companies)

	c.HTML(http.StatusOK, "companies.html", gin.H{
		"companies": companies,
		"adminUser": adminUser,
		"page":      "companies",
		"title":     "Companies",
	})
}

// RunsPage shows recent pipeline runs
func (ac *AdminController) RunsPage(c *gin.Context) {
	adminUser := ac.getAdminUser(c)

	limit := 50
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil && v > 0 && v <= 500 {
		limit = v
	}

	var runs []models.ETLRun
	ac.db.Order("run_time DESC").Limit(limit).Find(&runs)

	c.HTML(http.StatusOK, "runs.html", gin.H{
		"runs":      runs,
		"adminUser": adminUser,
		"page":      "runs",
		"title":     "Pipeline Runs",
	})
}

// ForceRunAction runs the pipeline immediately, bypassing the daily
// schedule check
func (ac *AdminController) ForceRunAction(c *gin.Context) {
	if ac.pipeline == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Pipeline not configured"})
		return
	}

	admin := ac.getAdminUser(c)
	if admin != nil {
		log.Printf("Admin user %s forced a pipeline run", admin.Username)
	}

	result, err := ac.pipeline.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Pipeline run completed",
		"rows_inserted": result.RowsInserted,
		"companies":     result.Companies,
		"date_range":    result.DateRange(),
	})
}

// ToggleCompanyAction flips a company's active flag
func (ac *AdminController) ToggleCompanyAction(c *gin.Context) {
	symbol := strings.ToUpper(c.PostForm("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	var company models.Company
	if err := ac.db.Where("symbol = ?", symbol).First(&company).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Company not found"})
		return
	}

	if err := ac.db.Model(&company).Update("is_active", !company.IsActive).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Company updated",
		"symbol":    company.Symbol,
		"is_active": !company.IsActive,
	})
}

// AddCompanyAction adds a company to the tracked list
func (ac *AdminController) AddCompanyAction(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.PostForm("symbol")))
	name := strings.TrimSpace(c.PostForm("name"))
	sector := strings.TrimSpace(c.PostForm("sector"))

	if symbol == "" || name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and name are required"})
		return
	}
	if sector == "" {
		sector = "Energy"
	}

	company := models.Company{
		Symbol:   symbol,
		Name:     name,
		Sector:   sector,
		IsActive: true,
	}
	if err := ac.db.Create(&company).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Failed to add company, symbol may already exist"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Company added",
		"symbol":  company.Symbol,
	})
}

// CleanupSessionsAction removes expired admin sessions
func (ac *AdminController) CleanupSessionsAction(c *gin.Context) {
	result := ac.db.Where("expires_at < ?", time.Now()).Delete(&models.AdminSession{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Expired sessions removed",
		"removed": result.RowsAffected,
	})
}
