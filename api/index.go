package handler

import (
	"log"
	"net/http"

	"energy_stock_etl/config"
	"energy_stock_etl/models"
	"energy_stock_etl/routes"
	"energy_stock_etl/services"
	"energy_stock_etl/services/analysis"
	"energy_stock_etl/services/archive"
	"energy_stock_etl/services/etl"
	"energy_stock_etl/services/marketdata"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var router *gin.Engine

func init() {
	gin.SetMode(gin.ReleaseMode)

	router = gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	cfg, cfgErr := config.LoadConfig()
	if cfgErr != nil {
		log.Printf("Config load issue: %v", cfgErr)
	}

	db, dbErr := config.InitDB()
	if cfgErr != nil || dbErr != nil {
		// Without a store the trigger endpoint must still answer the
		// external monitor with the credentials error, not a 404
		if dbErr != nil {
			log.Printf("Database connection failed: %v", dbErr)
		}
		setupCredentialsErrorRoutes(router)
		return
	}

	models.MigrateETLModels(db)
	models.MigrateAdminModels(db)
	models.SeedCompanies(db)
	models.SeedAdminUser(db, cfg.AdminUsername, cfg.AdminPasswordHash)

	guard, pipeline := buildPipeline(db, cfg)
	routes.SetupRoutes(router, db, routes.Services{
		Guard:    guard,
		Pipeline: pipeline,
		Archive:  pipeline.Archive,
		Loc:      config.ISTLocation(),
	})
}

// buildPipeline wires the pipeline for the serverless runtime. No
// event hub, no bar cache and no scheduler here: function instances
// are short lived and have no writable disk
func buildPipeline(db *gorm.DB, cfg *config.Config) (*etl.Guard, *etl.Pipeline) {
	fetcher := marketdata.NewClient(cfg.YahooBaseURL)
	transformer := analysis.NewTransformer(cfg.TrendThreshold)
	loader := etl.NewLoader(db, cfg.BatchSize)
	pipeline := etl.NewPipeline(db, fetcher, transformer, loader, cfg.OilSymbol, cfg.LookbackDays)

	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		if mirror, err := services.NewSupabaseMirror(cfg.SupabaseURL, cfg.SupabaseKey); err == nil {
			pipeline.Mirror = mirror
		}
	}
	pipeline.Archive = archive.NewClient(cfg.MongoURI)

	guard := etl.NewGuard(db, config.ISTLocation(), cfg.RunAfterHour, cfg.RunAfterMinute)
	return guard, pipeline
}

// setupCredentialsErrorRoutes keeps the trigger contract alive when
// the store is unreachable
func setupCredentialsErrorRoutes(router *gin.Engine) {
	credsError := func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Supabase credentials not configured",
		})
	}
	router.GET("/etl", credsError)
	router.POST("/etl", credsError)
	router.GET("/api/etl", credsError)
	router.POST("/api/etl", credsError)
}

// Handler is the Vercel serverless function handler
func Handler(w http.ResponseWriter, r *http.Request) {
	router.ServeHTTP(w, r)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
