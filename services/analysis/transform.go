package analysis

import (
	"fmt"
	"sort"

	"energy_stock_etl/models"
	"energy_stock_etl/services/marketdata"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"
)

// Window lengths for the derived columns
const (
	ShortWindow      = 7
	LongWindow       = 30
	VolatilityWindow = 30
)

// CompanyInfo carries the display metadata merged onto each observation
type CompanyInfo struct {
	Name   string
	Sector string
}

// Transformer derives the stored indicator columns from raw daily bars
type Transformer struct {
	threshold float64 // trend classification threshold, in percent
}

// NewTransformer creates a transformer with the given trend threshold
func NewTransformer(trendThreshold float64) *Transformer {
	return &Transformer{threshold: trendThreshold}
}

// TransformAll runs the full clean, enrich, derive and join sequence and
// returns one flat row per (symbol, date), sorted by symbol then date.
func (t *Transformer) TransformAll(bars []marketdata.Bar, oil []marketdata.PricePoint, companies map[string]CompanyInfo) []models.StockData {
	cleaned := CleanBars(bars)
	if len(cleaned) == 0 {
		return nil
	}

	oilByDate := make(map[string]float64, len(oil))
	for _, point := range oil {
		oilByDate[point.Date.Format("2006-01-02")] = point.Price
	}

	rows := make([]models.StockData, 0, len(cleaned))

	// cleaned is sorted by symbol then date, so each symbol is one
	// contiguous run
	for start := 0; start < len(cleaned); {
		end := start
		for end < len(cleaned) && cleaned[end].Symbol == cleaned[start].Symbol {
			end++
		}
		rows = append(rows, t.transformSeries(cleaned[start:end], oilByDate, companies)...)
		start = end
	}

	return rows
}

// transformSeries derives columns for one symbol's date-ascending series
func (t *Transformer) transformSeries(series []marketdata.Bar, oilByDate map[string]float64, companies map[string]CompanyInfo) []models.StockData {
	info, ok := companies[series[0].Symbol]
	if !ok {
		info = CompanyInfo{Name: "Unknown", Sector: "Unknown"}
	}

	closes := make([]float64, len(series))
	for i, bar := range series {
		closes[i] = bar.Close
	}

	rows := make([]models.StockData, 0, len(series))
	for i, bar := range series {
		row := models.StockData{
			Date:        bar.Date,
			Symbol:      bar.Symbol,
			CompanyName: info.Name,
			Sector:      info.Sector,
			OpenPrice:   roundPtr(bar.Open),
			HighPrice:   roundPtr(bar.High),
			LowPrice:    roundPtr(bar.Low),
			ClosePrice:  round(bar.Close),
		}
		if bar.Volume != nil {
			row.Volume = *bar.Volume
		}

		if i > 0 {
			pct := (bar.Close - closes[i-1]) / closes[i-1] * 100
			row.PctChange = roundFloatPtr(pct)
			row.Trend = t.ClassifyTrend(pct)
		}

		if ma, err := TrailingMean(closes[:i+1], ShortWindow); err == nil {
			row.MA7 = roundFloatPtr(ma)
		}
		if ma, err := TrailingMean(closes[:i+1], LongWindow); err == nil {
			row.MA30 = roundFloatPtr(ma)
		}
		if vol, err := TrailingStdDev(closes[:i+1], VolatilityWindow); err == nil {
			row.Volatility = roundFloatPtr(vol)
		}

		if price, ok := oilByDate[bar.Date.Format("2006-01-02")]; ok {
			row.OilPrice = roundFloatPtr(price)
		}

		rows = append(rows, row)
	}

	return rows
}

// CleanBars de-duplicates (symbol, date) pairs keeping the last
// occurrence, drops rows without a positive close and sorts by symbol
// then date ascending.
func CleanBars(bars []marketdata.Bar) []marketdata.Bar {
	type key struct {
		symbol string
		date   string
	}

	seen := make(map[key]int, len(bars))
	cleaned := make([]marketdata.Bar, 0, len(bars))
	for _, bar := range bars {
		if bar.Close <= 0 {
			continue
		}
		k := key{bar.Symbol, bar.Date.Format("2006-01-02")}
		if idx, ok := seen[k]; ok {
			cleaned[idx] = bar
			continue
		}
		seen[k] = len(cleaned)
		cleaned = append(cleaned, bar)
	}

	sort.SliceStable(cleaned, func(i, j int) bool {
		if cleaned[i].Symbol != cleaned[j].Symbol {
			return cleaned[i].Symbol < cleaned[j].Symbol
		}
		return cleaned[i].Date.Before(cleaned[j].Date)
	})

	return cleaned
}

// ClassifyTrend maps a percent change to its trend label. Values at or
// inside the threshold band classify as flat.
func (t *Transformer) ClassifyTrend(pct float64) string {
	switch {
	case pct > t.threshold:
		return models.TrendUp
	case pct < -t.threshold:
		return models.TrendDown
	default:
		return models.TrendFlat
	}
}

// TrailingMean returns the arithmetic mean of the last window values
func TrailingMean(values []float64, window int) (float64, error) {
	if len(values) < window {
		return 0, fmt.Errorf("insufficient data for %d-day mean", window)
	}
	return stats.Mean(values[len(values)-window:])
}

// TrailingStdDev returns the sample standard deviation of the last
// window values
func TrailingStdDev(values []float64, window int) (float64, error) {
	if len(values) < window {
		return 0, fmt.Errorf("insufficient data for %d-day volatility", window)
	}
	return stats.StandardDeviationSample(values[len(values)-window:])
}

func round(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

func roundFloatPtr(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v).Round(2)
	return &d
}

func roundPtr(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	return roundFloatPtr(*v)
}
