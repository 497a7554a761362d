package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adamkovacs/foliotrack/internal/config"
	"github.com/adamkovacs/foliotrack/internal/logger"
)

const defaultBaseURL = "https://query2.finance.yahoo.com"

// Client fetches historical daily closes from the Yahoo Finance v8 chart API.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	benchmarkSymbol string
	logger          *logger.Logger
}

func NewClient(cfg *config.Config, log *logger.Logger) *Client {
	return &Client{
		httpClient:      &http.Client{Timeout: cfg.MarketDataTimeout()},
		baseURL:         defaultBaseURL,
		benchmarkSymbol: cfg.MarketData.BenchmarkSymbol,
		logger:          log,
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error any `json:"error"`
	} `json:"chart"`
}

// HistoricalPrices returns daily closes for symbol over [from, to], ascending.
func (c *Client) HistoricalPrices(ctx context.Context, symbol string, from, to time.Time) ([]PricePoint, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&period1=%d&period2=%d",
		c.baseURL, url.PathEscape(symbol), from.Unix(), to.AddDate(0, 0, 1).Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "foliotrack/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch prices for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart API returned status %d for %s", resp.StatusCode, symbol)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("parse chart response: %w", err)
	}

	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no chart data for %s", symbol)
	}

	result := chart.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close

	points := make([]PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue // halted or missing bar
		}
		t := time.Unix(ts, 0).UTC()
		points = append(points, PricePoint{
			Date:  time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
			Close: decimal.NewFromFloat(*closes[i]),
		})
	}

	return points, nil
}

// HistoricalBenchmark returns the configured benchmark index series over [from, to].
func (c *Client) HistoricalBenchmark(ctx context.Context, from, to time.Time) ([]PricePoint, error) {
	return c.HistoricalPrices(ctx, c.benchmarkSymbol, from, to)
}
