package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"energy_stock_etl/config"
	"energy_stock_etl/models"
	"energy_stock_etl/routes"
	"energy_stock_etl/scheduler"
	"energy_stock_etl/services"
	"energy_stock_etl/services/analysis"
	"energy_stock_etl/services/archive"
	"energy_stock_etl/services/etl"
	"energy_stock_etl/services/marketdata"
	"energy_stock_etl/services/runfeed"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Background init state. The /ready probe and the shutdown path read
// these while the init goroutine writes them.
var (
	initMu        sync.RWMutex
	dbInitialized bool
	jobScheduler  *scheduler.Scheduler
	eventHub      *runfeed.Hub
	barCache      *marketdata.BarCache
	archiveClient *archive.Client
)

func main() {
	log.Println("==============================================")
	log.Println("  Energy Stock ETL API - Starting...")
	log.Println("==============================================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Health endpoints come up before the database so the platform can
	// see the service is alive during slow cold starts
	setupHealthEndpoints(router)

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Initialize database and routes in background
	go initializeApplication(router, cfg)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	shutdown(server)
}

// initializeApplication connects the store, runs migrations, builds the
// pipeline and mounts the application routes
func initializeApplication(router *gin.Engine, cfg *config.Config) {
	db, err := config.InitDB()
	if err != nil {
		log.Printf("ERROR: Database connection failed: %v", err)
		log.Println("Service will continue in limited mode (health check only)")
		return
	}

	log.Println("Running database migrations...")
	if err := models.MigrateETLModels(db); err != nil {
		log.Printf("ERROR: Migration failed: %v", err)
	}
	if err := models.MigrateAdminModels(db); err != nil {
		log.Printf("ERROR: Admin migration failed: %v", err)
	}

	if err := models.SeedCompanies(db); err != nil {
		log.Printf("Warning: Could not seed companies: %v", err)
	}
	if err := models.SeedAdminUser(db, cfg.AdminUsername, cfg.AdminPasswordHash); err != nil {
		log.Printf("Warning: Could not seed admin user: %v", err)
	}

	hub := runfeed.NewHub()
	guard, pipeline := buildPipeline(db, cfg, hub)

	initMu.Lock()
	dbInitialized = true
	eventHub = hub
	initMu.Unlock()

	routes.SetupRoutes(router, db, routes.Services{
		Guard:    guard,
		Pipeline: pipeline,
		Hub:      hub,
		Archive:  archiveClient,
		Loc:      config.ISTLocation(),
	})

	if cfg.SchedulerEnabled {
		s := scheduler.NewScheduler(db, guard, pipeline)
		initMu.Lock()
		jobScheduler = s
		initMu.Unlock()
		go s.Start()
	}

	log.Println("Application fully initialized with database")
}

// buildPipeline wires the pipeline and its optional sinks from config
func buildPipeline(db *gorm.DB, cfg *config.Config, hub *runfeed.Hub) (*etl.Guard, *etl.Pipeline) {
	fetcher := marketdata.NewClient(cfg.YahooBaseURL)
	transformer := analysis.NewTransformer(cfg.TrendThreshold)
	loader := etl.NewLoader(db, cfg.BatchSize)
	pipeline := etl.NewPipeline(db, fetcher, transformer, loader, cfg.OilSymbol, cfg.LookbackDays)
	pipeline.Hub = hub

	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		mirror, err := services.NewSupabaseMirror(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			log.Printf("Warning: Supabase mirror disabled: %v", err)
		} else {
			pipeline.Mirror = mirror
			log.Println("Supabase REST mirror enabled")
		}
	}

	arc := archive.NewClient(cfg.MongoURI)
	pipeline.Archive = arc

	if cfg.BarCachePath != "" {
		cache, err := marketdata.OpenBarCache(cfg.BarCachePath)
		if err != nil {
			log.Printf("Warning: Bar cache disabled: %v", err)
		} else {
			pipeline.Cache = cache
			initMu.Lock()
			barCache = cache
			initMu.Unlock()
		}
	}

	initMu.Lock()
	archiveClient = arc
	initMu.Unlock()

	guard := etl.NewGuard(db, config.ISTLocation(), cfg.RunAfterHour, cfg.RunAfterMinute)
	return guard, pipeline
}

// setupHealthEndpoints registers the probes used by the hosting
// platform
func setupHealthEndpoints(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Energy Stock ETL API",
			"version": "1.0.0",
		})
	})

	// Liveness probe
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe
	router.GET("/ready", func(c *gin.Context) {
		initMu.RLock()
		isDBReady := dbInitialized
		initMu.RUnlock()

		if !isDBReady {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database not connected",
			})
			return
		}

		sqlDB, err := config.DB.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database connection error",
			})
			return
		}
		if err := sqlDB.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database ping failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})

	// Startup probe
	router.GET("/startup", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "started",
		})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-CSRF-Token")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Probes are too chatty to log
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/startup" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// shutdown stops background work and drains the HTTP server
func shutdown(server *http.Server) {
	initMu.RLock()
	s := jobScheduler
	hub := eventHub
	cache := barCache
	arc := archiveClient
	initMu.RUnlock()

	if s != nil {
		s.Stop()
	}
	if hub != nil {
		hub.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if arc != nil {
		arc.Close()
	}
	if cache != nil {
		cache.Close()
	}
	if config.DB != nil {
		if sqlDB, err := config.DB.DB(); err == nil {
			sqlDB.Close()
			log.Println("Database connection closed")
		}
	}

	log.Println("Server shutdown completed")
}
