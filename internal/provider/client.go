// Package provider fetches quotes and the screening universe from a
// TradingView-style scanner API.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ErrNoData marks a symbol the scanner has no row for. Callers treat it as
// "no signal this cycle", never as a cycle failure.
var ErrNoData = errors.New("no data for symbol")

// Quote is a single symbol's market data for the current cycle. Indicator
// fields are nil when the scanner does not report them.
type Quote struct {
	Symbol     string
	Close      float64
	Open       float64
	High       float64
	Volume     float64
	AvgVolume  float64
	ChangePct  float64
	MarketCap  float64
	RSI        *float64
	MACD       *float64
	MACDSignal *float64
}

// ClientConfig holds retry, throttling, and universe-filter settings.
type ClientConfig struct {
	Exchange       string
	ScanLimit      int
	MaxClose       float64
	MinVolume      float64
	MaxRetries     int
	RetryDelayBase time.Duration
	RatePerSecond  float64
	MaxInFlight    int
}

// Client provides access to the scanner API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	config     ClientConfig
}

// NewClient creates a scanner client. Every request is throttled through a
// shared token-bucket limiter so concurrent per-symbol fetches respect the
// provider's rate limit.
func NewClient(baseURL string, timeout time.Duration, config ClientConfig) *Client {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelayBase <= 0 {
		config.RetryDelayBase = time.Second
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = 5
	}
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = 8
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RatePerSecond), config.MaxInFlight),
		config:     config,
	}
}

// MaxInFlight exposes the configured fetch concurrency bound.
func (c *Client) MaxInFlight() int {
	return c.config.MaxInFlight
}

// scanRequest mirrors the scanner's POST body.
type scanRequest struct {
	Filter  []scanFilter   `json:"filter,omitempty"`
	Symbols scanSymbols    `json:"symbols"`
	Columns []string       `json:"columns"`
	Sort    *scanSort      `json:"sort,omitempty"`
	Range   []int          `json:"range,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type scanFilter struct {
	Left      string `json:"left"`
	Operation string `json:"operation"`
	Right     any    `json:"right"`
}

type scanSymbols struct {
	Query   map[string][]string `json:"query"`
	Tickers []string            `json:"tickers"`
}

type scanSort struct {
	SortBy    string `json:"sortBy"`
	SortOrder string `json:"sortOrder"`
}

type scanResponse struct {
	Data []struct {
		Ticker string `json:"s"`
		Raw    []any  `json:"d"`
	} `json:"data"`
}

// Scan returns the filtered screening universe: low-priced, liquid, green
// symbols on the configured exchange, highest volume first.
func (c *Client) Scan(ctx context.Context) ([]Quote, error) {
	req := scanRequest{
		Filter: []scanFilter{
			{Left: "volume", Operation: "greater", Right: c.config.MinVolume},
			{Left: "close", Operation: "greater", Right: 0},
			{Left: "close", Operation: "less", Right: c.config.MaxClose},
			{Left: "exchange", Operation: "equal", Right: c.config.Exchange},
			{Left: "type", Operation: "equal", Right: "stock"},
			{Left: "change", Operation: "greater", Right: 0},
		},
		Symbols: scanSymbols{Query: map[string][]string{"types": {}}, Tickers: []string{}},
		Columns: []string{"name", "close", "volume", "average_volume_10d_calc", "market_cap_basic", "change"},
		Sort:    &scanSort{SortBy: "volume", SortOrder: "desc"},
		Range:   []int{0, c.config.ScanLimit},
		Options: map[string]any{"lang": "en"},
	}

	var resp scanResponse
	if err := c.post(ctx, "/america/scan", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to scan universe: %w", err)
	}

	quotes := make([]Quote, 0, len(resp.Data))
	for _, row := range resp.Data {
		q, err := quoteFromRow(row.Raw, false)
		if err != nil {
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

// FetchQuote returns one symbol's quote including RSI and MACD. Returns
// ErrNoData when the scanner has no row for the symbol.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	req := scanRequest{
		Symbols: scanSymbols{
			Query:   map[string][]string{"types": {}},
			Tickers: []string{c.config.Exchange + ":" + symbol},
		},
		Columns: []string{
			"name", "close", "volume", "average_volume_10d_calc", "market_cap_basic", "change",
			"open", "RSI", "MACD.macd", "MACD.signal", "high",
		},
	}

	var resp scanResponse
	if err := c.post(ctx, "/america/scan", req, &resp); err != nil {
		return Quote{}, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}
	if len(resp.Data) == 0 {
		return Quote{}, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}
	q, err := quoteFromRow(resp.Data[0].Raw, true)
	if err != nil {
		return Quote{}, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}
	return q, nil
}

// CurrentPrice satisfies the tracker's price fetcher with a thin FetchQuote.
func (c *Client) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	q, err := c.FetchQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return q.Close, nil
}

// post sends the scan request with linear-backoff retry on transient
// failures. Each attempt first waits on the shared rate limiter.
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "stockscout/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			func() {
				defer resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					lastErr = fmt.Errorf("scanner returned status %d", resp.StatusCode)
					return
				}
				lastErr = json.NewDecoder(resp.Body).Decode(out)
			}()
			if lastErr == nil {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.config.RetryDelayBase * time.Duration(attempt+1)):
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", c.config.MaxRetries, lastErr)
}

// quoteFromRow decodes the scanner's positional column array. Columns 0-5
// are the universe set; indicator columns 6-9 only exist on single-symbol
// fetches.
func quoteFromRow(raw []any, withIndicators bool) (Quote, error) {
	num := func(i int) (float64, bool) {
		if i >= len(raw) {
			return 0, false
		}
		v, ok := raw[i].(float64)
		return v, ok
	}

	symbol, ok := rawString(raw, 0)
	if !ok || symbol == "" {
		return Quote{}, errors.New("missing symbol column")
	}
	closePx, ok := num(1)
	if !ok {
		return Quote{}, errors.New("missing close column")
	}

	q := Quote{Symbol: symbol, Close: closePx}
	if v, ok := num(2); ok {
		q.Volume = v
	}
	if v, ok := num(3); ok {
		q.AvgVolume = v
	}
	if v, ok := num(4); ok {
		q.MarketCap = v
	}
	if v, ok := num(5); ok {
		q.ChangePct = v
	}
	if !withIndicators {
		return q, nil
	}
	if v, ok := num(6); ok {
		q.Open = v
	}
	if v, ok := num(7); ok {
		q.RSI = &v
	}
	if v, ok := num(8); ok {
		q.MACD = &v
	}
	if v, ok := num(9); ok {
		q.MACDSignal = &v
	}
	if v, ok := num(10); ok {
		q.High = v
	}
	return q, nil
}

func rawString(raw []any, i int) (string, bool) {
	if i >= len(raw) {
		return "", false
	}
	s, ok := raw[i].(string)
	return s, ok
}
