package routes

import (
	"html/template"
	"log"
	"time"

	"energy_stock_etl/admin"
	"energy_stock_etl/admin/templates"
	"energy_stock_etl/controllers"
	"energy_stock_etl/middleware"
	"energy_stock_etl/services/archive"
	"energy_stock_etl/services/etl"
	"energy_stock_etl/services/runfeed"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Services holds the shared service instances wired into the routes
type Services struct {
	Guard    *etl.Guard
	Pipeline *etl.Pipeline
	Hub      *runfeed.Hub
	Archive  *archive.Client
	Loc      *time.Location
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, db *gorm.DB, svc Services) {
	// Load admin HTML templates from the embedded filesystem
	LoadTemplates(router)

	// Initialize controllers
	etlController := controllers.NewETLController(db, svc.Guard, svc.Pipeline, svc.Loc)
	stockController := controllers.NewStockController(db)
	adminAPIController := controllers.NewAdminAPIController(db, svc.Pipeline)

	// Initialize admin UI controllers
	authController := admin.NewAuthController(db)
	adminController := admin.NewAdminController(db, svc.Pipeline, svc.Hub, svc.Archive)

	// Pipeline trigger, polled by the external uptime monitor. The
	// legacy deployment served it under /api/etl.
	trigger := middleware.TriggerRateLimitMiddleware()
	router.GET("/etl", trigger, etlController.Trigger)
	router.POST("/etl", trigger, etlController.Trigger)
	router.GET("/api/etl", trigger, etlController.Trigger)
	router.POST("/api/etl", trigger, etlController.Trigger)

	// API v1 group
	api := router.Group("/api/v1")
	{
		// Company routes
		stocks := api.Group("/stocks")
		{
			stocks.GET("", stockController.GetCompanies)
			stocks.GET("/:symbol/series", stockController.GetPriceSeries)
		}

		// Observation routes
		observations := api.Group("/observations")
		{
			observations.GET("", stockController.GetObservations)
			observations.GET("/export", stockController.ExportObservations)
		}

		// Metric routes
		metrics := api.Group("/metrics")
		{
			metrics.GET("/summary", stockController.GetSummary)
		}

		// Market routes
		market := api.Group("/market")
		{
			market.GET("/top-gainers", stockController.GetTopGainers)
			market.GET("/top-losers", stockController.GetTopLosers)
			market.GET("/sectors", stockController.GetSectorPerformance)
			market.GET("/volatility", stockController.GetVolatilityRanking)
		}

		// Run log routes
		etlRoutes := api.Group("/etl")
		{
			etlRoutes.GET("/runs", etlController.GetRuns)
			etlRoutes.GET("/runs/latest", etlController.GetLastRun)
		}

		// Admin API routes (token protected)
		adminAPI := api.Group("/admin")
		{
			adminAPI.POST("/login", middleware.LoginRateLimitMiddleware(), adminAPIController.Login)

			protected := adminAPI.Group("")
			protected.Use(middleware.JWTAuthMiddleware(), middleware.AdminRoleMiddleware())
			{
				protected.POST("/etl/run", adminAPIController.ForceRun)
				protected.GET("/status", adminAPIController.Status)
			}
		}
	}

	// Live pipeline event feed
	if svc.Hub != nil {
		router.GET("/ws/runs", func(c *gin.Context) {
			svc.Hub.HandleWebSocket(c.Writer, c.Request)
		})
	}

	// Admin UI routes
	adminRoutes := router.Group("/admin")
	{
		adminRoutes.GET("/login", middleware.LoginRateLimitMiddleware(), authController.LoginPage)
		adminRoutes.POST("/login", middleware.LoginRateLimitMiddleware(), middleware.CSRFMiddleware(), authController.Login)
		adminRoutes.GET("/logout", authController.Logout)

		authenticated := adminRoutes.Group("")
		authenticated.Use(authController.AuthMiddleware())
		{
			authenticated.GET("", adminController.Dashboard)
			authenticated.GET("/companies", adminController.CompaniesPage)
			authenticated.GET("/runs", adminController.RunsPage)

			actions := authenticated.Group("/actions")
			{
				actions.POST("/run-etl", adminController.ForceRunAction)
				actions.POST("/toggle-company", adminController.ToggleCompanyAction)
				actions.POST("/add-company", adminController.AddCompanyAction)
				actions.POST("/cleanup-sessions", adminController.CleanupSessionsAction)
			}
		}
	}
}

// LoadTemplates parses the embedded admin templates into the router
func LoadTemplates(router *gin.Engine) {
	tmpl, err := template.ParseFS(templates.TemplateFS, "*.html")
	if err != nil {
		log.Printf("Warning: Could not load admin templates: %v", err)
		return
	}
	router.SetHTMLTemplate(tmpl)
}
