package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"energy_stock_etl/models"

	"github.com/shopspring/decimal"
)

// SupabaseMirror replicates pipeline writes to the hosted Supabase
// tables via the PostgREST API, so the hosted dashboard keeps working
// when the primary store is a local database. Mirror failures are
// reported to the caller but never fail the run.
type SupabaseMirror struct {
	URL        string
	Key        string
	httpClient *http.Client
}

// NewSupabaseMirror creates a mirror client from the credential pair
func NewSupabaseMirror(supabaseURL, supabaseKey string) (*SupabaseMirror, error) {
	if supabaseURL == "" {
		return nil, errors.New("SUPABASE_URL is required")
	}
	if supabaseKey == "" {
		return nil, errors.New("SUPABASE_KEY is required")
	}

	return &SupabaseMirror{
		URL:        strings.TrimRight(supabaseURL, "/"),
		Key:        supabaseKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// mirrorStockRow is the stock_data payload shape PostgREST expects
type mirrorStockRow struct {
	Date        string   `json:"date"`
	Symbol      string   `json:"symbol"`
	CompanyName string   `json:"company_name"`
	Sector      string   `json:"sector"`
	OpenPrice   *float64 `json:"open_price"`
	HighPrice   *float64 `json:"high_price"`
	LowPrice    *float64 `json:"low_price"`
	ClosePrice  float64  `json:"close_price"`
	Volume      int64    `json:"volume"`
	PctChange   *float64 `json:"pct_change"`
	MA7         *float64 `json:"ma_7"`
	MA30        *float64 `json:"ma_30"`
	Volatility  *float64 `json:"volatility"`
	Trend       string   `json:"trend"`
	OilPrice    *float64 `json:"oil_price"`
}

// UpsertStockData mirrors one batch of observations, merging duplicates
// on (symbol, date)
func (c *SupabaseMirror) UpsertStockData(rows []models.StockData) error {
	if len(rows) == 0 {
		return nil
	}

	payload := make([]mirrorStockRow, 0, len(rows))
	for _, row := range rows {
		payload = append(payload, mirrorStockRow{
			Date:        row.Date.Format("2006-01-02"),
			Symbol:      row.Symbol,
			CompanyName: row.CompanyName,
			Sector:      row.Sector,
			OpenPrice:   decimalToFloat(row.OpenPrice),
			HighPrice:   decimalToFloat(row.HighPrice),
			LowPrice:    decimalToFloat(row.LowPrice),
			ClosePrice:  row.ClosePrice.InexactFloat64(),
			Volume:      row.Volume,
			PctChange:   decimalToFloat(row.PctChange),
			MA7:         decimalToFloat(row.MA7),
			MA30:        decimalToFloat(row.MA30),
			Volatility:  decimalToFloat(row.Volatility),
			Trend:       row.Trend,
			OilPrice:    decimalToFloat(row.OilPrice),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal mirror payload: %w", err)
	}

	queryURL := fmt.Sprintf("%s/rest/v1/stock_data?on_conflict=symbol,date", c.URL)
	return c.post(queryURL, body, "resolution=merge-duplicates,return=minimal")
}

// InsertRunLog mirrors one audit row
func (c *SupabaseMirror) InsertRunLog(run models.ETLRun) error {
	payload := map[string]interface{}{
		"run_time":      run.RunTime.UTC().Format(time.RFC3339),
		"rows_inserted": run.RowsInserted,
		"status":        run.Status,
		"notes":         run.Notes,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal run log: %w", err)
	}

	queryURL := fmt.Sprintf("%s/rest/v1/etl_log", c.URL)
	return c.post(queryURL, body, "return=minimal")
}

// TestConnection verifies the credential pair against the etl_log table
func (c *SupabaseMirror) TestConnection() error {
	queryURL := fmt.Sprintf("%s/rest/v1/etl_log?limit=0", c.URL)

	req, err := http.NewRequest("GET", queryURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to Supabase: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("supabase connection test failed (status %d): %s", resp.StatusCode, string(body))
	}

	return nil
}

func (c *SupabaseMirror) post(queryURL string, body []byte, prefer string) error {
	req, err := http.NewRequest("POST", queryURL, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Prefer", prefer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK &&
		resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("supabase error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return nil
}

func (c *SupabaseMirror) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.Key)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.Key))
	req.Header.Set("Content-Type", "application/json")
}

func decimalToFloat(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}
