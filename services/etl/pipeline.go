package etl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"energy_stock_etl/models"
	"energy_stock_etl/services"
	"energy_stock_etl/services/analysis"
	"energy_stock_etl/services/archive"
	"energy_stock_etl/services/marketdata"
	"energy_stock_etl/services/runfeed"

	"gorm.io/gorm"
)

// FetchConcurrency limits parallel market data requests
const FetchConcurrency = 4

// Stage failures recorded in the run log and returned to callers
var (
	ErrNoDataDownloaded = errors.New("No data downloaded")
	ErrTransformFailed  = errors.New("Transformation failed")
	ErrNoDataInserted   = errors.New("No data inserted")
)

// Fetcher provides daily bars and reference price series
type Fetcher interface {
	FetchDailyBars(ctx context.Context, symbol string, days int) ([]marketdata.Bar, error)
	FetchReferenceSeries(ctx context.Context, symbol string, days int) ([]marketdata.PricePoint, error)
}

// Pipeline runs one extract-transform-load cycle over the configured
// companies. Optional sinks (mirror, archive, cache, live feed) are
// attached by the caller; their failures never fail a run.
type Pipeline struct {
	db           *gorm.DB
	fetcher      Fetcher
	transformer  *analysis.Transformer
	loader       *Loader
	oilSymbol    string
	lookbackDays int

	Mirror  *services.SupabaseMirror
	Archive *archive.Client
	Cache   *marketdata.BarCache
	Hub     *runfeed.Hub
}

// Result summarizes a successful run
type Result struct {
	RowsInserted int    `json:"rows_inserted"`
	Companies    int    `json:"companies"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
}

// DateRange formats the covered dates for responses and logs
func (r Result) DateRange() string {
	return fmt.Sprintf("%s to %s", r.StartDate, r.EndDate)
}

// NewPipeline creates a pipeline over the given store and market data
// source.
func NewPipeline(db *gorm.DB, fetcher Fetcher, transformer *analysis.Transformer, loader *Loader, oilSymbol string, lookbackDays int) *Pipeline {
	return &Pipeline{
		db:           db,
		fetcher:      fetcher,
		transformer:  transformer,
		loader:       loader,
		oilSymbol:    oilSymbol,
		lookbackDays: lookbackDays,
	}
}

// Run executes the full cycle and records exactly one run log row,
// success or failure.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	runTime := time.Now()
	log.Println("Starting ETL pipeline run")
	p.publish(runfeed.EventRunStarted, map[string]interface{}{
		"run_time": runTime.Format(time.RFC3339),
	})

	companies, err := p.activeCompanies()
	if err != nil {
		return p.fail(runTime, fmt.Errorf("failed to load companies: %w", err))
	}

	barsBySymbol := p.extract(ctx, companies)
	if len(barsBySymbol) == 0 {
		return p.fail(runTime, ErrNoDataDownloaded)
	}

	oil, err := p.fetcher.FetchReferenceSeries(ctx, p.oilSymbol, p.lookbackDays)
	if err != nil {
		log.Printf("Warning: failed to fetch %s reference series, continuing without oil prices: %v", p.oilSymbol, err)
		oil = nil
	}

	info := make(map[string]analysis.CompanyInfo, len(companies))
	var bars []marketdata.Bar
	for _, company := range companies {
		info[company.Symbol] = analysis.CompanyInfo{Name: company.Name, Sector: company.Sector}
		bars = append(bars, barsBySymbol[company.Symbol]...)
	}

	rows := p.transformer.TransformAll(bars, oil, info)
	if len(rows) == 0 {
		return p.fail(runTime, ErrTransformFailed)
	}

	p.loader.OnBatch = func(batch, rowCount int, batchErr error) {
		data := map[string]interface{}{"batch": batch, "rows": rowCount}
		if batchErr != nil {
			data["error"] = batchErr.Error()
		}
		p.publish(runfeed.EventBatchLoaded, data)
	}
	loadResult := p.loader.Load(rows)
	if loadResult.RowsInserted == 0 {
		return p.fail(runTime, ErrNoDataInserted)
	}

	result := Result{
		RowsInserted: loadResult.RowsInserted,
		Companies:    len(barsBySymbol),
	}
	result.StartDate, result.EndDate = dateBounds(rows)

	notes := fmt.Sprintf("Successfully processed %d companies", result.Companies)
	p.recordRun(runTime, models.RunStatusSuccess, result.RowsInserted, notes)

	if p.Mirror != nil {
		if err := p.Mirror.UpsertStockData(rows); err != nil {
			log.Printf("Warning: failed to mirror stock data: %v", err)
		}
	}
	if p.Archive != nil && p.Archive.IsConfigured() {
		if err := p.Archive.SaveExtraction(runTime, barsBySymbol, oil); err != nil {
			log.Printf("Warning: %v", err)
		}
	}

	p.publish(runfeed.EventRunFinished, map[string]interface{}{
		"status":        models.RunStatusSuccess,
		"rows_inserted": result.RowsInserted,
		"companies":     result.Companies,
		"date_range":    result.DateRange(),
	})
	log.Printf("ETL pipeline completed: %d rows for %d companies (%s)",
		result.RowsInserted, result.Companies, result.DateRange())
	return result, nil
}

// activeCompanies loads the tracked company list ordered by symbol
func (p *Pipeline) activeCompanies() ([]models.Company, error) {
	var companies []models.Company
	if err := p.db.Where("is_active = ?", true).Order("symbol").Find(&companies).Error; err != nil {
		return nil, err
	}
	return companies, nil
}

// extract fetches bars for every company concurrently. Symbols that
// yield nothing are skipped; the run proceeds with whatever arrived.
func (p *Pipeline) extract(ctx context.Context, companies []models.Company) map[string][]marketdata.Bar {
	barsBySymbol := make(map[string][]marketdata.Bar)
	var mu sync.Mutex
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, FetchConcurrency)

	for _, company := range companies {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			bars := p.fetchSymbol(ctx, symbol)
			if len(bars) == 0 {
				log.Printf("Warning: no data for %s, skipping", symbol)
				return
			}

			mu.Lock()
			barsBySymbol[symbol] = bars
			mu.Unlock()

			p.publish(runfeed.EventSymbolFetched, map[string]interface{}{
				"symbol": symbol,
				"bars":   len(bars),
			})
		}(company.Symbol)
	}
	wg.Wait()

	return barsBySymbol
}

// fetchSymbol pulls bars from the market data source, falling back to
// the local cache when the source is unavailable.
func (p *Pipeline) fetchSymbol(ctx context.Context, symbol string) []marketdata.Bar {
	bars, err := p.fetcher.FetchDailyBars(ctx, symbol, p.lookbackDays)
	if err == nil {
		if p.Cache != nil {
			if cacheErr := p.Cache.SaveBars(symbol, bars); cacheErr != nil {
				log.Printf("Warning: failed to cache bars for %s: %v", symbol, cacheErr)
			}
		}
		return bars
	}

	log.Printf("Error fetching %s: %v", symbol, err)
	if p.Cache == nil {
		return nil
	}
	cached, cacheErr := p.Cache.LoadBars(symbol)
	if cacheErr != nil {
		log.Printf("Warning: cache lookup for %s failed: %v", symbol, cacheErr)
		return nil
	}
	if len(cached) > 0 {
		log.Printf("Using %d cached bars for %s", len(cached), symbol)
	}
	return cached
}

// fail records a failed run and reports the stage error
func (p *Pipeline) fail(runTime time.Time, err error) (Result, error) {
	log.Printf("ETL pipeline failed: %v", err)
	p.recordRun(runTime, models.RunStatusFailed, 0, err.Error())
	p.publish(runfeed.EventRunFinished, map[string]interface{}{
		"status": models.RunStatusFailed,
		"error":  err.Error(),
	})
	return Result{}, err
}

// recordRun writes the run log row and mirrors it when configured.
// Run times are stored in UTC so text-affinity stores compare them
// against the guard's UTC day bounds correctly.
func (p *Pipeline) recordRun(runTime time.Time, status string, rowsInserted int, notes string) {
	run := models.ETLRun{
		RunTime:      runTime.UTC(),
		RowsInserted: rowsInserted,
		Status:       status,
		Notes:        notes,
	}
	if err := p.db.Create(&run).Error; err != nil {
		log.Printf("Error recording run log: %v", err)
	}
	if p.Mirror != nil {
		if err := p.Mirror.InsertRunLog(run); err != nil {
			log.Printf("Warning: failed to mirror run log: %v", err)
		}
	}
}

// publish sends a lifecycle event to the live feed when attached
func (p *Pipeline) publish(eventType string, data interface{}) {
	if p.Hub != nil {
		p.Hub.Publish(eventType, data)
	}
}

// dateBounds returns the earliest and latest row dates as YYYY-MM-DD
func dateBounds(rows []models.StockData) (string, string) {
	if len(rows) == 0 {
		return "", ""
	}
	minDate, maxDate := rows[0].Date, rows[0].Date
	for _, row := range rows[1:] {
		if row.Date.Before(minDate) {
			minDate = row.Date
		}
		if row.Date.After(maxDate) {
			maxDate = row.Date
		}
	}
	return minDate.Format("2006-01-02"), maxDate.Format("2006-01-02")
}
