package controllers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"energy_stock_etl/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var obsBase = time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC)

func decPtr(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v).Round(2)
	return &d
}

// seedObservation inserts one transformed row
func seedObservation(t *testing.T, db *gorm.DB, symbol, sector string, day int, close float64, pct *float64, trend string, vol *float64) {
	t.Helper()

	row := models.StockData{
		Date:        obsBase.AddDate(0, 0, day),
		Symbol:      symbol,
		CompanyName: symbol + " Corp",
		Sector:      sector,
		ClosePrice:  decimal.NewFromFloat(close).Round(2),
		Volume:      1000,
		Trend:       trend,
	}
	if pct != nil {
		row.PctChange = decPtr(*pct)
	}
	if vol != nil {
		row.Volatility = decPtr(*vol)
	}
	require.NoError(t, db.Create(&row).Error, "failed to seed observation")
}

func floatPtr(v float64) *float64 { return &v }

// seedMarket loads a small two-day market snapshot:
//
//	day 0: XOM 100, CVX 50
//	day 1: XOM 102 (+2.00 up), CVX 49 (-2.00 down), SLB 30 (0.00 flat)
func seedMarket(t *testing.T, db *gorm.DB) {
	t.Helper()

	integrated := "Oil & Gas Integrated"
	services := "Oilfield Services"

	seedObservation(t, db, "XOM", integrated, 0, 100, nil, "", nil)
	seedObservation(t, db, "CVX", integrated, 0, 50, nil, "", nil)
	seedObservation(t, db, "XOM", integrated, 1, 102, floatPtr(2.00), models.TrendUp, floatPtr(1.50))
	seedObservation(t, db, "CVX", integrated, 1, 49, floatPtr(-2.00), models.TrendDown, floatPtr(2.50))
	seedObservation(t, db, "SLB", services, 1, 30, floatPtr(0.00), models.TrendFlat, floatPtr(0.75))
}

func newStockRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	controller := NewStockController(db)

	router := gin.New()
	router.GET("/api/v1/stocks", controller.GetCompanies)
	router.GET("/api/v1/stocks/:symbol/series", controller.GetPriceSeries)
	router.GET("/api/v1/observations", controller.GetObservations)
	router.GET("/api/v1/observations/export", controller.ExportObservations)
	router.GET("/api/v1/metrics/summary", controller.GetSummary)
	router.GET("/api/v1/market/top-gainers", controller.GetTopGainers)
	router.GET("/api/v1/market/top-losers", controller.GetTopLosers)
	router.GET("/api/v1/market/sectors", controller.GetSectorPerformance)
	router.GET("/api/v1/market/volatility", controller.GetVolatilityRanking)
	return router
}

func TestGetCompanies(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Create(&models.Company{Symbol: "XOM", Name: "Exxon Mobil Corporation", Sector: "Oil & Gas Integrated"}).Error)
	require.NoError(t, db.Create(&models.Company{Symbol: "SLB", Name: "Schlumberger Limited", Sector: "Oilfield Services"}).Error)
	require.NoError(t, db.Create(&models.Company{Symbol: "OLD", Name: "Delisted Co", Sector: "Oilfield Services"}).Error)
	require.NoError(t, db.Model(&models.Company{}).Where("symbol = ?", "OLD").Update("is_active", false).Error)

	router := newStockRouter(db)

	t.Run("active only by default", func(t *testing.T) {
		code, body := doJSON(t, router, http.MethodGet, "/api/v1/stocks")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, float64(2), body["total"])
	})

	t.Run("include inactive", func(t *testing.T) {
		code, body := doJSON(t, router, http.MethodGet, "/api/v1/stocks?include_inactive=true")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, float64(3), body["total"])
	})

	t.Run("sector filter", func(t *testing.T) {
		code, body := doJSON(t, router, http.MethodGet, "/api/v1/stocks?sector=Oilfield+Services")
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, float64(1), body["total"])

		data := body["data"].([]interface{})
		assert.Equal(t, "SLB", data[0].(map[string]interface{})["symbol"])
	})
}

func TestGetObservations_Filters(t *testing.T) {
	db := setupTestDB(t)
	seedMarket(t, db)
	router := newStockRouter(db)

	tests := []struct {
		name      string
		query     string
		wantCount int
	}{
		{"no filters", "", 5},
		{"symbol filter", "?symbol=XOM", 2},
		{"symbol filter is case insensitive", "?symbol=xom", 2},
		{"multi symbol filter", "?symbol=XOM,CVX", 4},
		{"sector filter", "?sector=Oil+%26+Gas+Integrated", 4},
		{"trend filter", "?trend=up", 1},
		{"date_from", "?date_from=2026-08-19", 3},
		{"date_to", "?date_to=2026-08-18", 2},
		{"date range and symbol", "?symbol=XOM&date_from=2026-08-19", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := doJSON(t, router, http.MethodGet, "/api/v1/observations"+tt.query)
			require.Equal(t, http.StatusOK, code)

			data := body["data"].([]interface{})
			assert.Len(t, data, tt.wantCount)

			pagination := body["pagination"].(map[string]interface{})
			assert.Equal(t, float64(tt.wantCount), pagination["total"])
		})
	}

	t.Run("invalid trend rejected", func(t *testing.T) {
		code, body := doJSON(t, router, http.MethodGet, "/api/v1/observations?trend=sideways")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, body["error"], "invalid trend filter")
	})

	t.Run("invalid date rejected", func(t *testing.T) {
		code, body := doJSON(t, router, http.MethodGet, "/api/v1/observations?date_from=19-08-2026")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, body["error"], "invalid date_from")
	})

	t.Run("invalid sort field rejected", func(t *testing.T) {
		code, body := doJSON(t, router, http.MethodGet, "/api/v1/observations?sort_by=id;drop")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "Invalid sort_by field", body["error"])
	})
}

func TestGetObservations_PaginationAndSorting(t *testing.T) {
	db := setupTestDB(t)
	seedMarket(t, db)
	router := newStockRouter(db)

	t.Run("default order is date descending", func(t *testing.T) {
		code, body := doJSON(t, router, http.MethodGet, "/api/v1/observations")
		require.Equal(t, http.StatusOK, code)

		data := body["data"].([]interface{})
		require.Len(t, data, 5)
		first := data[0].(map[string]interface{})
		assert.Equal(t, "CVX", first["symbol"], "latest date first, then symbol ascending")
		assert.Contains(t, first["date"], "2026-08-19")
	})

	t.Run("page slicing", func(t *testing.T) {
		code, body := doJSON(t, router, http.MethodGet, "/api/v1/observations?limit=2&page=1")
		require.Equal(t, http.StatusOK, code)

		data := body["data"].([]interface{})
		assert.Len(t, data, 2)

		pagination := body["pagination"].(map[string]interface{})
		assert.Equal(t, float64(1), pagination["page"])
		assert.Equal(t, float64(2), pagination["limit"])
		assert.Equal(t, float64(5), pagination["total"], "total counts all filtered rows, not the page")

		code, body = doJSON(t, router, http.MethodGet, "/api/v1/observations?limit=2&page=3")
		require.Equal(t, http.StatusOK, code)
		assert.Len(t, body["data"].([]interface{}), 1, "last page holds the remainder")
	})

	t.Run("sort by close ascending", func(t *testing.T) {
		code, body := doJSON(t, router, http.MethodGet, "/api/v1/observations?sort_by=close_price&sort_order=asc")
		require.Equal(t, http.StatusOK, code)

		data := body["data"].([]interface{})
		require.Len(t, data, 5)
		assert.Equal(t, "SLB", data[0].(map[string]interface{})["symbol"], "cheapest close first")
	})
}

func TestGetSummary(t *testing.T) {
	db := setupTestDB(t)
	seedMarket(t, db)
	router := newStockRouter(db)

	code, body := doJSON(t, router, http.MethodGet, "/api/v1/metrics/summary")
	require.Equal(t, http.StatusOK, code)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(5), data["total_records"])
	assert.Equal(t, float64(1), data["gainers_today"], "only XOM trends up on the latest date")
	assert.Equal(t, float64(3), data["companies"])
	assert.Equal(t, "0", data["avg_daily_change"], "percent changes 2, -2 and 0 average to zero")
	assert.Equal(t, "1.58", data["avg_volatility"])

	dateRange := data["date_range"].(map[string]interface{})
	assert.Equal(t, "2026-08-18", dateRange["start"])
	assert.Equal(t, "2026-08-19", dateRange["end"])
}

func TestGetSummary_Filtered(t *testing.T) {
	db := setupTestDB(t)
	seedMarket(t, db)
	router := newStockRouter(db)

	code, body := doJSON(t, router, http.MethodGet, "/api/v1/metrics/summary?symbol=XOM")
	require.Equal(t, http.StatusOK, code)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["total_records"])
	assert.Equal(t, float64(1), data["companies"])
	assert.Equal(t, "2", data["avg_daily_change"])
}

func TestGetSummary_EmptyTable(t *testing.T) {
	db := setupTestDB(t)
	router := newStockRouter(db)

	code, body := doJSON(t, router, http.MethodGet, "/api/v1/metrics/summary")
	require.Equal(t, http.StatusOK, code)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(0), data["total_records"])
	assert.Equal(t, float64(0), data["gainers_today"])
	assert.Nil(t, data["avg_daily_change"])
	assert.NotContains(t, data, "date_range")
}

func TestTopMovers(t *testing.T) {
	db := setupTestDB(t)
	seedMarket(t, db)
	router := newStockRouter(db)

	t.Run("gainers ranked by percent change descending", func(t *testing.T) {
		code, body := doJSON(t, router, http.MethodGet, "/api/v1/market/top-gainers")
		require.Equal(t, http.StatusOK, code)

		data := body["data"].([]interface{})
		require.Len(t, data, 3, "day-one rows without a change are excluded")

		first := data[0].(map[string]interface{})
		assert.Equal(t, "XOM", first["symbol"])
		assert.Equal(t, "XOM Corp", first["company_name"])
		assert.Equal(t, "2", first["pct_change"])
		assert.Equal(t, "up", first["trend"])
	})

	t.Run("losers ranked by percent change ascending", func(t *testing.T) {
		code, body := doJSON(t, router, http.MethodGet, "/api/v1/market/top-losers")
		require.Equal(t, http.StatusOK, code)

		data := body["data"].([]interface{})
		require.Len(t, data, 3)
		assert.Equal(t, "CVX", data[0].(map[string]interface{})["symbol"])
	})

	t.Run("limit applies", func(t *testing.T) {
		code, body := doJSON(t, router, http.MethodGet, "/api/v1/market/top-gainers?limit=1")
		require.Equal(t, http.StatusOK, code)
		assert.Len(t, body["data"].([]interface{}), 1)
	})
}

func TestGetSectorPerformance(t *testing.T) {
	db := setupTestDB(t)
	seedMarket(t, db)
	router := newStockRouter(db)

	code, body := doJSON(t, router, http.MethodGet, "/api/v1/market/sectors")
	require.Equal(t, http.StatusOK, code)

	data := body["data"].([]interface{})
	require.Len(t, data, 3, "one point per (date, sector) pair")

	first := data[0].(map[string]interface{})
	assert.Equal(t, "Oil & Gas Integrated", first["sector"])
	assert.InDelta(t, 75.0, first["avg_close"].(float64), 1e-9, "day-zero integrated average of 100 and 50")

	last := data[2].(map[string]interface{})
	assert.Equal(t, "Oilfield Services", last["sector"])
	assert.InDelta(t, 30.0, last["avg_close"].(float64), 1e-9)
}

func TestGetVolatilityRanking(t *testing.T) {
	db := setupTestDB(t)
	seedMarket(t, db)
	router := newStockRouter(db)

	code, body := doJSON(t, router, http.MethodGet, "/api/v1/market/volatility")
	require.Equal(t, http.StatusOK, code)

	data := body["data"].([]interface{})
	require.Len(t, data, 3)

	assert.Equal(t, "CVX", data[0].(map[string]interface{})["symbol"], "most volatile first")
	assert.Equal(t, "XOM", data[1].(map[string]interface{})["symbol"])
	assert.Equal(t, "SLB", data[2].(map[string]interface{})["symbol"])
}

func TestGetPriceSeries(t *testing.T) {
	db := setupTestDB(t)
	seedMarket(t, db)
	router := newStockRouter(db)

	t.Run("series oldest first", func(t *testing.T) {
		code, body := doJSON(t, router, http.MethodGet, "/api/v1/stocks/XOM/series")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "XOM", body["symbol"])

		data := body["data"].([]interface{})
		require.Len(t, data, 2)
		assert.Contains(t, data[0].(map[string]interface{})["date"], "2026-08-18")
		assert.Contains(t, data[1].(map[string]interface{})["date"], "2026-08-19")
	})

	t.Run("path symbol is case insensitive", func(t *testing.T) {
		code, body := doJSON(t, router, http.MethodGet, "/api/v1/stocks/xom/series")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "XOM", body["symbol"])
	})

	t.Run("unknown symbol", func(t *testing.T) {
		code, body := doJSON(t, router, http.MethodGet, "/api/v1/stocks/ZZZ/series")
		assert.Equal(t, http.StatusNotFound, code)
		assert.Contains(t, body["error"], "ZZZ")
	})

	t.Run("date bounds", func(t *testing.T) {
		code, body := doJSON(t, router, http.MethodGet, "/api/v1/stocks/XOM/series?date_from=2026-08-19")
		require.Equal(t, http.StatusOK, code)
		assert.Len(t, body["data"].([]interface{}), 1)
	})
}

func TestExportObservations(t *testing.T) {
	db := setupTestDB(t)
	seedMarket(t, db)
	router := newStockRouter(db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/observations/export?symbol=XOM", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment; filename=stock_data_")

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 3, "header plus two XOM rows")
	assert.Equal(t,
		"date,symbol,company_name,sector,open_price,high_price,low_price,close_price,volume,pct_change,ma_7,ma_30,volatility,trend,oil_price",
		strings.TrimSpace(lines[0]))

	assert.Contains(t, lines[1], "2026-08-19,XOM,XOM Corp")
	assert.Contains(t, lines[1], "102.00")
	assert.Contains(t, lines[1], ",up,")
	assert.Contains(t, lines[2], "2026-08-18,XOM,XOM Corp")
}
