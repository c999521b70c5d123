package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the Yahoo Finance query host
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// ErrNoData is returned when the provider has no bars for a symbol
var ErrNoData = errors.New("no data returned for symbol")

// Bar is one day's OHLCV record for a symbol. Close is always present;
// open/high/low/volume can be missing for halted or partial sessions.
type Bar struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   *float64  `json:"open"`
	High   *float64  `json:"high"`
	Low    *float64  `json:"low"`
	Close  float64   `json:"close"`
	Volume *int64    `json:"volume"`
}

// PricePoint is one day's close for the reference commodity series
type PricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// Client fetches daily bars from the Yahoo Finance v8 chart API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a chart API client. Pass "" to use the default host.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// chartResponse mirrors the v8 chart endpoint payload
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency string `json:"currency"`
				Symbol   string `json:"symbol"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchDailyBars downloads daily bars for one symbol over the trailing
// lookback window. Entries without a close price are dropped.
func (c *Client) FetchDailyBars(ctx context.Context, symbol string, days int) ([]Bar, error) {
	now := time.Now()
	period1 := now.AddDate(0, 0, -days).Unix()
	period2 := now.Unix()

	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d&events=history",
		c.baseURL, url.PathEscape(symbol), period1, period2)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("chart API error for %s (status %d): %s", symbol, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var response chartResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response for %s: %w", symbol, err)
	}

	if response.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error for %s: %s (%s)",
			symbol, response.Chart.Error.Description, response.Chart.Error.Code)
	}
	if len(response.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}

	result := response.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}

	quote := result.Indicators.Quote[0]
	bars := make([]Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			// Holiday or halted session without a close
			continue
		}
		bar := Bar{
			Symbol: symbol,
			Date:   toDate(ts),
			Close:  *quote.Close[i],
		}
		if i < len(quote.Open) {
			bar.Open = quote.Open[i]
		}
		if i < len(quote.High) {
			bar.High = quote.High[i]
		}
		if i < len(quote.Low) {
			bar.Low = quote.Low[i]
		}
		if i < len(quote.Volume) {
			bar.Volume = quote.Volume[i]
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}

	log.Printf("Fetched %d bars for %s", len(bars), symbol)
	return bars, nil
}

// FetchReferenceSeries downloads the commodity close series (oil) over
// the same lookback window
func (c *Client) FetchReferenceSeries(ctx context.Context, symbol string, days int) ([]PricePoint, error) {
	bars, err := c.FetchDailyBars(ctx, symbol, days)
	if err != nil {
		return nil, err
	}

	points := make([]PricePoint, 0, len(bars))
	for _, bar := range bars {
		points = append(points, PricePoint{Date: bar.Date, Price: bar.Close})
	}
	return points, nil
}

// toDate truncates a Unix timestamp to its UTC calendar date
func toDate(ts int64) time.Time {
	t := time.Unix(ts, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
