package controllers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"energy_stock_etl/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockController serves the read-only dashboard API over the
// transformed observations
type StockController struct {
	db *gorm.DB
}

// NewStockController creates a new stock controller
func NewStockController(db *gorm.DB) *StockController {
	return &StockController{db: db}
}

// observationSortColumns whitelists sortable fields
var observationSortColumns = map[string]string{
	"date":        "date",
	"symbol":      "symbol",
	"close_price": "close_price",
	"pct_change":  "pct_change",
	"volume":      "volume",
	"volatility":  "volatility",
	"ma_7":        "ma_7",
	"ma_30":       "ma_30",
}

// GetCompanies returns the tracked company list
// GET /api/v1/stocks
func (sc *StockController) GetCompanies(c *gin.Context) {
	query := sc.db.Order("symbol")
	if c.DefaultQuery("include_inactive", "false") != "true" {
		query = query.Where("is_active = ?", true)
	}
	if sector := c.Query("sector"); sector != "" {
		query = query.Where("sector = ?", sector)
	}

	var companies []models.Company
	if err := query.Find(&companies).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch companies"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  companies,
		"total": len(companies),
	})
}

// GetObservations returns transformed daily rows with filters, sorting
// and pagination
// GET /api/v1/observations
func (sc *StockController) GetObservations(c *gin.Context) {
	query, err := sc.filteredObservations(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}

	column, ok := observationSortColumns[c.DefaultQuery("sort_by", "date")]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sort_by field"})
		return
	}
	direction := "DESC"
	if c.DefaultQuery("sort_order", "desc") == "asc" {
		direction = "ASC"
	}

	var total int64
	query.Count(&total)

	var rows []models.StockData
	err = query.
		Order(fmt.Sprintf("%s %s, symbol ASC", column, direction)).
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch observations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": rows,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// ExportObservations streams the filtered rows as CSV
// GET /api/v1/observations/export
func (sc *StockController) ExportObservations(c *gin.Context) {
	query, err := sc.filteredObservations(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var rows []models.StockData
	if err := query.Order("date DESC, symbol ASC").Limit(50000).Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch observations"})
		return
	}

	filename := fmt.Sprintf("stock_data_%s.csv", time.Now().Format("2006-01-02"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	writer.Write([]string{
		"date", "symbol", "company_name", "sector",
		"open_price", "high_price", "low_price", "close_price", "volume",
		"pct_change", "ma_7", "ma_30", "volatility", "trend", "oil_price",
	})
	for _, row := range rows {
		writer.Write([]string{
			row.Date.Format("2006-01-02"),
			row.Symbol,
			row.CompanyName,
			row.Sector,
			csvDecimal(row.OpenPrice),
			csvDecimal(row.HighPrice),
			csvDecimal(row.LowPrice),
			row.ClosePrice.StringFixed(2),
			strconv.FormatInt(row.Volume, 10),
			csvDecimal(row.PctChange),
			csvDecimal(row.MA7),
			csvDecimal(row.MA30),
			csvDecimal(row.Volatility),
			row.Trend,
			csvDecimal(row.OilPrice),
		})
	}
}

// GetSummary returns the dashboard headline metrics for the filtered
// range: record count, average daily change, gainer count on the
// latest date, and average volatility
// GET /api/v1/metrics/summary
func (sc *StockController) GetSummary(c *gin.Context) {
	query, err := sc.filteredObservations(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Date bounds scan as strings: aggregate columns lose their declared
	// type on SQLite, so time.Time destinations cannot be used here
	var agg struct {
		TotalRecords  int64
		AvgChange     *float64
		AvgVolatility *float64
		Companies     int64
		MinDate       *string
		MaxDate       *string
	}
	err = query.
		Select("COUNT(*) as total_records, AVG(pct_change) as avg_change, AVG(volatility) as avg_volatility, COUNT(DISTINCT symbol) as companies, MIN(date) as min_date, MAX(date) as max_date").
		Scan(&agg).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute summary"})
		return
	}

	var gainersToday int64
	if agg.MaxDate != nil {
		countQuery, _ := sc.filteredObservations(c)
		err = countQuery.
			Where("date = ? AND trend = ?", *agg.MaxDate, models.TrendUp).
			Count(&gainersToday).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute summary"})
			return
		}
	}

	summary := gin.H{
		"total_records":    agg.TotalRecords,
		"avg_daily_change": roundMetric(agg.AvgChange),
		"gainers_today":    gainersToday,
		"avg_volatility":   roundMetric(agg.AvgVolatility),
		"companies":        agg.Companies,
	}
	if agg.MinDate != nil && agg.MaxDate != nil {
		summary["date_range"] = gin.H{
			"start": dateOnly(*agg.MinDate),
			"end":   dateOnly(*agg.MaxDate),
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// GetTopGainers returns the best daily moves on the latest date
// GET /api/v1/market/top-gainers
func (sc *StockController) GetTopGainers(c *gin.Context) {
	sc.topMovers(c, "DESC")
}

// GetTopLosers returns the worst daily moves on the latest date
// GET /api/v1/market/top-losers
func (sc *StockController) GetTopLosers(c *gin.Context) {
	sc.topMovers(c, "ASC")
}

func (sc *StockController) topMovers(c *gin.Context, direction string) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	if limit < 1 || limit > 50 {
		limit = 5
	}

	var rows []models.StockData
	err := sc.db.
		Where("date = (?)", sc.db.Model(&models.StockData{}).Select("MAX(date)")).
		Where("pct_change IS NOT NULL").
		Order("pct_change " + direction).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch movers"})
		return
	}

	type mover struct {
		Symbol      string           `json:"symbol"`
		CompanyName string           `json:"company_name"`
		ClosePrice  decimal.Decimal  `json:"close_price"`
		PctChange   *decimal.Decimal `json:"pct_change"`
		Trend       string           `json:"trend"`
	}
	movers := make([]mover, 0, len(rows))
	for _, row := range rows {
		movers = append(movers, mover{
			Symbol:      row.Symbol,
			CompanyName: row.CompanyName,
			ClosePrice:  row.ClosePrice,
			PctChange:   row.PctChange,
			Trend:       row.Trend,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  movers,
		"total": len(movers),
	})
}

// GetSectorPerformance returns the average close per sector per date
// GET /api/v1/market/sectors
func (sc *StockController) GetSectorPerformance(c *gin.Context) {
	query, err := sc.filteredObservations(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var points []struct {
		Date     time.Time `json:"date"`
		Sector   string    `json:"sector"`
		AvgClose float64   `json:"avg_close"`
	}
	err = query.
		Select("date, sector, AVG(close_price) as avg_close").
		Group("date, sector").
		Order("date ASC, sector ASC").
		Scan(&points).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute sector performance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  points,
		"total": len(points),
	})
}

// GetVolatilityRanking returns per-symbol volatility on the latest
// date, most volatile first
// GET /api/v1/market/volatility
func (sc *StockController) GetVolatilityRanking(c *gin.Context) {
	var rows []models.StockData
	err := sc.db.
		Where("date = (?)", sc.db.Model(&models.StockData{}).Select("MAX(date)")).
		Where("volatility IS NOT NULL").
		Order("volatility DESC").
		Find(&rows).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch volatility ranking"})
		return
	}

	type ranked struct {
		Symbol     string           `json:"symbol"`
		Volatility *decimal.Decimal `json:"volatility"`
	}
	ranking := make([]ranked, 0, len(rows))
	for _, row := range rows {
		ranking = append(ranking, ranked{Symbol: row.Symbol, Volatility: row.Volatility})
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  ranking,
		"total": len(ranking),
	})
}

// GetPriceSeries returns one symbol's rows oldest first, sized for
// charting close, moving averages and the oil overlay
// GET /api/v1/stocks/:symbol/series
func (sc *StockController) GetPriceSeries(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	query := sc.db.Where("symbol = ?", symbol)
	query, err := applyDateRange(query, c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var rows []models.StockData
	if err := query.Order("date ASC").Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch series"})
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No data for symbol " + symbol})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"data":   rows,
		"total":  len(rows),
	})
}

// filteredObservations builds the base query from the common filter
// parameters: symbol, sector, trend, date_from, date_to
func (sc *StockController) filteredObservations(c *gin.Context) (*gorm.DB, error) {
	query := sc.db.Model(&models.StockData{})

	if symbols := c.Query("symbol"); symbols != "" {
		list := strings.Split(strings.ToUpper(symbols), ",")
		query = query.Where("symbol IN ?", list)
	}
	if sector := c.Query("sector"); sector != "" {
		query = query.Where("sector = ?", sector)
	}
	if trend := c.Query("trend"); trend != "" {
		if trend != models.TrendUp && trend != models.TrendDown && trend != models.TrendFlat {
			return nil, fmt.Errorf("invalid trend filter %q", trend)
		}
		query = query.Where("trend = ?", trend)
	}

	return applyDateRange(query, c)
}

// applyDateRange adds date_from / date_to bounds to a query
func applyDateRange(query *gorm.DB, c *gin.Context) (*gorm.DB, error) {
	if from := c.Query("date_from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return nil, fmt.Errorf("invalid date_from %q, expected YYYY-MM-DD", from)
		}
		query = query.Where("date >= ?", t)
	}
	if to := c.Query("date_to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return nil, fmt.Errorf("invalid date_to %q, expected YYYY-MM-DD", to)
		}
		query = query.Where("date <= ?", t)
	}
	return query, nil
}

// csvDecimal formats a nullable decimal column for export
func csvDecimal(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

// dateOnly trims a scanned date value to YYYY-MM-DD
func dateOnly(s string) string {
	if len(s) >= 10 {
		return s[:10]
	}
	return s
}

// roundMetric rounds a nullable SQL average to two decimals
func roundMetric(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return decimal.NewFromFloat(*v).Round(2)
}
