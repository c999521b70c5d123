package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"energy_stock_etl/config"
	"energy_stock_etl/middleware"
	"energy_stock_etl/models"
	"energy_stock_etl/services/analysis"
	"energy_stock_etl/services/etl"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// withTestSecret points the token helpers at a throwaway JWT secret for
// the duration of one test.
func withTestSecret(t *testing.T) {
	t.Helper()

	previous := config.AppConfig
	config.AppConfig = &config.Config{JWTSecret: "admin-api-test-secret"}
	t.Cleanup(func() { config.AppConfig = previous })
}

func seedAdmin(t *testing.T, db *gorm.DB, username, password string) {
	t.Helper()

	admin := &models.AdminUser{Username: username, IsActive: true}
	require.NoError(t, admin.SetPassword(password))
	require.NoError(t, db.Create(admin).Error)
}

func newAdminAPIRouter(db *gorm.DB, fetcher etl.Fetcher) *gin.Engine {
	gin.SetMode(gin.TestMode)

	var pipeline *etl.Pipeline
	if fetcher != nil {
		pipeline = etl.NewPipeline(db, fetcher, analysis.NewTransformer(0.1), etl.NewLoader(db, 100), "CL=F", 90)
	}
	controller := NewAdminAPIController(db, pipeline)

	router := gin.New()
	router.POST("/api/v1/admin/login", controller.Login)
	protected := router.Group("/api/v1/admin", middleware.JWTAuthMiddleware(), middleware.AdminRoleMiddleware())
	protected.GET("/status", controller.Status)
	protected.POST("/etl/run", controller.ForceRun)
	return router
}

func adminRequest(t *testing.T, router *gin.Engine, method, path, token, body string) (int, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded), "response is not valid JSON: %s", w.Body.String())
	return w.Code, decoded
}

func TestAdminLogin(t *testing.T) {
	withTestSecret(t)
	db := setupTestDB(t)
	require.NoError(t, models.MigrateAdminModels(db))
	seedAdmin(t, db, "admin", "correct-horse")

	router := newAdminAPIRouter(db, nil)

	t.Run("valid credentials", func(t *testing.T) {
		code, body := adminRequest(t, router, http.MethodPost, "/api/v1/admin/login", "",
			`{"username":"admin","password":"correct-horse"}`)

		require.Equal(t, http.StatusOK, code)
		token, ok := body["token"].(string)
		require.True(t, ok, "response must carry a token")
		assert.NotEmpty(t, token)
		assert.Equal(t, float64(middleware.AdminTokenTTL.Seconds()), body["expires_in"])

		var admin models.AdminUser
		require.NoError(t, db.Where("username = ?", "admin").First(&admin).Error)
		assert.NotNil(t, admin.LastLoginAt, "successful login records a timestamp")
	})

	t.Run("wrong password", func(t *testing.T) {
		code, body := adminRequest(t, router, http.MethodPost, "/api/v1/admin/login", "",
			`{"username":"admin","password":"nope"}`)

		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "Invalid username or password", body["error"])
	})

	t.Run("unknown user", func(t *testing.T) {
		code, body := adminRequest(t, router, http.MethodPost, "/api/v1/admin/login", "",
			`{"username":"ghost","password":"whatever"}`)

		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "Invalid username or password", body["error"])
	})

	t.Run("missing fields", func(t *testing.T) {
		code, _ := adminRequest(t, router, http.MethodPost, "/api/v1/admin/login", "",
			`{"username":"admin"}`)

		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("inactive account is rejected", func(t *testing.T) {
		require.NoError(t, db.Model(&models.AdminUser{}).
			Where("username = ?", "admin").
			Update("is_active", false).Error)
		t.Cleanup(func() {
			db.Model(&models.AdminUser{}).Where("username = ?", "admin").Update("is_active", true)
		})

		code, _ := adminRequest(t, router, http.MethodPost, "/api/v1/admin/login", "",
			`{"username":"admin","password":"correct-horse"}`)
		assert.Equal(t, http.StatusUnauthorized, code)
	})
}

func TestAdminStatus(t *testing.T) {
	withTestSecret(t)
	db := setupTestDB(t)
	require.NoError(t, models.MigrateAdminModels(db))

	require.NoError(t, db.Create(&models.Company{Symbol: "XOM", Name: "Exxon Mobil Corporation", Sector: "Oil & Gas Integrated", IsActive: true}).Error)
	require.NoError(t, db.Create(&models.ETLRun{
		RunTime:      time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC),
		RowsInserted: 30,
		Status:       models.RunStatusSuccess,
	}).Error)

	router := newAdminAPIRouter(db, nil)

	token, err := middleware.GenerateAdminToken("admin")
	require.NoError(t, err)

	t.Run("requires a token", func(t *testing.T) {
		code, _ := adminRequest(t, router, http.MethodGet, "/api/v1/admin/status", "", "")
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("reports store counts", func(t *testing.T) {
		code, body := adminRequest(t, router, http.MethodGet, "/api/v1/admin/status", token, "")

		require.Equal(t, http.StatusOK, code)
		data, ok := body["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(1), data["companies"])
		assert.Equal(t, float64(0), data["rows"])
		assert.Equal(t, float64(1), data["runs"])

		lastRun, ok := data["last_run"].(map[string]interface{})
		require.True(t, ok, "status must include the most recent run")
		assert.Equal(t, "success", lastRun["status"])
	})
}

func TestAdminForceRun(t *testing.T) {
	withTestSecret(t)
	db := setupTestDB(t)
	require.NoError(t, models.MigrateAdminModels(db))

	require.NoError(t, db.Create(&models.Company{Symbol: "XOM", Name: "Exxon Mobil Corporation", Sector: "Oil & Gas Integrated", IsActive: true}).Error)

	router := newAdminAPIRouter(db, &stubFetcher{closes: []float64{100, 102, 101}})

	token, err := middleware.GenerateAdminToken("admin")
	require.NoError(t, err)

	code, body := adminRequest(t, router, http.MethodPost, "/api/v1/admin/etl/run", token, "")

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "ETL pipeline completed successfully", body["message"])

	details, ok := body["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), details["rows_inserted"])
	assert.Equal(t, float64(1), details["companies"])

	var count int64
	db.Model(&models.StockData{}).Count(&count)
	assert.Equal(t, int64(3), count, "force run bypasses the schedule and loads rows")
}
