package marketdata

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// BarCache persists raw bars in a local SQLite file so a provider
// outage does not starve the next poll's retry for symbols that were
// already fetched today.
type BarCache struct {
	db *sql.DB
	mu sync.RWMutex
}

// OpenBarCache opens (or creates) the cache at the given path
func OpenBarCache(path string) (*BarCache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bar cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping bar cache: %w", err)
	}

	cache := &BarCache{db: db}
	if err := cache.createTable(); err != nil {
		return nil, err
	}

	log.Printf("Bar cache initialized at %s", path)
	return cache, nil
}

// Close closes the cache connection
func (c *BarCache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *BarCache) createTable() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	query := `
		CREATE TABLE IF NOT EXISTS raw_bars (
			symbol VARCHAR NOT NULL,
			date VARCHAR NOT NULL,
			open REAL,
			high REAL,
			low REAL,
			close REAL NOT NULL,
			volume INTEGER,
			fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(symbol, date)
		)
	`
	if _, err := c.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create raw_bars table: %w", err)
	}

	c.db.Exec("CREATE INDEX IF NOT EXISTS idx_raw_bars_symbol ON raw_bars(symbol)")
	return nil
}

// SaveBars replaces the cached bars for a symbol
func (c *BarCache) SaveBars(symbol string, bars []Bar) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("DELETE FROM raw_bars WHERE symbol = ?", symbol); err != nil {
		return fmt.Errorf("failed to clear cached bars: %w", err)
	}

	stmt, err := c.db.Prepare(`
		INSERT OR REPLACE INTO raw_bars (symbol, date, open, high, low, close, volume, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, bar := range bars {
		_, err := stmt.Exec(symbol, bar.Date.Format("2006-01-02"),
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, now)
		if err != nil {
			log.Printf("Warning: failed to cache bar for %s on %s: %v",
				symbol, bar.Date.Format("2006-01-02"), err)
		}
	}

	return nil
}

// LoadBars returns the cached bars for a symbol, oldest first
func (c *BarCache) LoadBars(symbol string) ([]Bar, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	query := `SELECT symbol, date, open, high, low, close, volume
		FROM raw_bars WHERE symbol = ? ORDER BY date ASC`

	rows, err := c.db.Query(query, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []Bar
	for rows.Next() {
		var bar Bar
		var dateStr string
		var open, high, low sql.NullFloat64
		var volume sql.NullInt64

		if err := rows.Scan(&bar.Symbol, &dateStr, &open, &high, &low, &bar.Close, &volume); err != nil {
			return nil, err
		}

		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		bar.Date = date
		if open.Valid {
			bar.Open = &open.Float64
		}
		if high.Valid {
			bar.High = &high.Float64
		}
		if low.Valid {
			bar.Low = &low.Float64
		}
		if volume.Valid {
			bar.Volume = &volume.Int64
		}

		bars = append(bars, bar)
	}

	return bars, rows.Err()
}
