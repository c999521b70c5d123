package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port              string
	DatabaseURL       string
	DBPath            string
	SupabaseURL       string
	SupabaseKey       string
	JWTSecret         string
	Environment       string
	AdminUsername     string
	AdminPasswordHash string
	SchedulerEnabled  bool
	MongoURI          string
	BarCachePath      string
	YahooBaseURL      string
	OilSymbol         string
	LookbackDays      int
	BatchSize         int
	RunAfterHour      int
	RunAfterMinute    int
	TrendThreshold    float64
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		DBPath:            getEnv("DB_PATH", "etl.db"),
		SupabaseURL:       getEnv("SUPABASE_URL", ""),
		SupabaseKey:       getEnv("SUPABASE_KEY", ""),
		JWTSecret:         getEnv("JWT_SECRET", "your-secret-key"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		SchedulerEnabled:  getEnvBool("SCHEDULER_ENABLED", false),
		MongoURI:          getEnv("MONGODB_URI", ""),
		BarCachePath:      getEnv("BAR_CACHE_PATH", ""),
		YahooBaseURL:      getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
		OilSymbol:         getEnv("OIL_SYMBOL", "CL=F"),
		LookbackDays:      getEnvInt("ETL_LOOKBACK_DAYS", 90),
		BatchSize:         getEnvInt("ETL_BATCH_SIZE", 100),
		TrendThreshold:    getEnvFloat("TREND_THRESHOLD", 0.1),
	}

	hour, minute, err := parseClock(getEnv("ETL_RUN_AFTER", "08:00"))
	if err != nil {
		log.Printf("Invalid ETL_RUN_AFTER, using 08:00: %v", err)
		hour, minute = 8, 0
	}
	config.RunAfterHour = hour
	config.RunAfterMinute = minute

	AppConfig = config

	if config.Environment == "production" && config.DatabaseURL == "" &&
		(config.SupabaseURL == "" || config.SupabaseKey == "") {
		return config, fmt.Errorf("production requires DATABASE_URL or SUPABASE_URL + SUPABASE_KEY")
	}

	return config, nil
}

// InitDB initializes the database connection. Uses Postgres when
// DATABASE_URL is set, otherwise a local SQLite file.
func InitDB() (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	var db *gorm.DB
	var err error

	if AppConfig.DatabaseURL != "" {
		log.Printf("Connecting to database: %s", maskDSN(AppConfig.DatabaseURL))
		db, err = gorm.Open(postgres.Open(AppConfig.DatabaseURL), gormConfig)
	} else {
		log.Printf("DATABASE_URL not set, using local SQLite database: %s", AppConfig.DBPath)
		db, err = gorm.Open(sqlite.Open(AppConfig.DBPath), gormConfig)
	}

	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Failed to get underlying database: %v", err)
		return nil, fmt.Errorf("failed to get database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		log.Printf("Database ping failed: %v", err)
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("Database connection verified successfully")
	DB = db
	return db, nil
}

// ISTLocation returns the Asia/Kolkata location. Falls back to a fixed
// +05:30 zone when tzdata is not available on the host image.
func ISTLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*3600+30*60)
	}
	return loc
}

// maskDSN masks credentials in a connection string for logging
func maskDSN(dsn string) string {
	if at := strings.LastIndex(dsn, "@"); at != -1 {
		if scheme := strings.Index(dsn, "://"); scheme != -1 {
			return dsn[:scheme+3] + "***" + dsn[at:]
		}
		return "***" + dsn[at:]
	}
	if len(dsn) <= 15 {
		return "***"
	}
	return dsn[:8] + "***"
}

// parseClock parses a HH:MM time-of-day string
func parseClock(s string) (int, int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvFloat gets a float environment variable or returns a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Invalid value for %s, using default %v", key, defaultValue)
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
