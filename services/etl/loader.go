package etl

import (
	"fmt"
	"log"

	"energy_stock_etl/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultBatchSize is the number of rows written per insert statement
const DefaultBatchSize = 100

// Loader writes transformed rows into the stock_data table in batches.
// Re-running a day upserts on (symbol, date) so the table converges
// instead of accumulating duplicates.
type Loader struct {
	db        *gorm.DB
	batchSize int

	// OnBatch, when set, is called after each batch attempt
	OnBatch func(batch, rows int, err error)
}

// LoadResult summarizes one load stage
type LoadResult struct {
	RowsInserted  int
	BatchesTotal  int
	BatchesFailed int
	Errors        []string
}

// NewLoader creates a loader with the given batch size. Sizes below 1
// fall back to the default.
func NewLoader(db *gorm.DB, batchSize int) *Loader {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Loader{db: db, batchSize: batchSize}
}

// stockDataUpdateColumns are refreshed when an upsert hits an existing
// (symbol, date) row.
var stockDataUpdateColumns = []string{
	"company_name", "sector",
	"open_price", "high_price", "low_price", "close_price", "volume",
	"pct_change", "ma_7", "ma_30", "volatility", "trend", "oil_price",
}

// Load writes rows in batches. A failed batch drops only its own rows;
// remaining batches still run and the failure is recorded in the
// result.
func (l *Loader) Load(rows []models.StockData) LoadResult {
	result := LoadResult{}

	for start := 0; start < len(rows); start += l.batchSize {
		end := start + l.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		result.BatchesTotal++

		err := l.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns(stockDataUpdateColumns),
		}).Create(&batch).Error
		if err != nil {
			result.BatchesFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("batch %d: %v", result.BatchesTotal, err))
			log.Printf("Error inserting batch %d (%d rows): %v", result.BatchesTotal, len(batch), err)
			if l.OnBatch != nil {
				l.OnBatch(result.BatchesTotal, 0, err)
			}
			continue
		}

		result.RowsInserted += len(batch)
		if l.OnBatch != nil {
			l.OnBatch(result.BatchesTotal, len(batch), nil)
		}
	}

	if result.BatchesFailed > 0 {
		log.Printf("Load finished with %d/%d batches failed, %d rows inserted",
			result.BatchesFailed, result.BatchesTotal, result.RowsInserted)
	} else if result.BatchesTotal > 0 {
		log.Printf("Load finished: %d rows inserted in %d batches", result.RowsInserted, result.BatchesTotal)
	}
	return result
}
