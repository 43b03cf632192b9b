package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"ai-grid-trader/internal/api"
	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/types"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// Yahoo fetches candles from the public Yahoo Finance chart API.
type Yahoo struct {
	client    *api.Client
	retry     *api.RetryConfig
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
}

var _ interfaces.MarketData = (*Yahoo)(nil)

// NewYahoo creates a Yahoo fetcher. baseURL may be empty.
func NewYahoo(baseURL string, opts ...api.ClientOption) *Yahoo {
	if baseURL == "" {
		baseURL = yahooBaseURL
	}
	base := []api.ClientOption{api.WithBaseURL(baseURL), api.WithTimeout(20 * time.Second)}
	for k, v := range api.YahooFinanceHeaders() {
		base = append(base, api.WithHeader(k, v))
	}
	return &Yahoo{
		client: api.NewClient(append(base, opts...)...),
		retry:  &api.RetryConfig{MaxAttempts: 3, InitialWait: time.Second, MaxWait: 5 * time.Second},
		SymbolMap: map[string]string{
			"SPX":    "^GSPC",
			"NASDAQ": "^IXIC",
			"SOX":    "^SOX",
			"TAIEX":  "^TWII",
		},
	}
}

func (y *Yahoo) Name() string { return "yahoo" }

func (y *Yahoo) yahooSymbol(symbol string) string {
	if mapped, ok := y.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func at(vals []*float64, i int) float64 {
	if i >= len(vals) || vals[i] == nil {
		return 0
	}
	return *vals[i]
}

// Candles returns bars oldest first. period and interval use Yahoo's
// vocabulary ("1y", "6mo", "1d", "60m").
func (y *Yahoo) Candles(ctx context.Context, symbol, period, interval string) ([]types.Candle, error) {
	chart, err := y.fetchChart(ctx, symbol, period, interval)
	if err != nil {
		return nil, err
	}
	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo %s: no quote block", symbol)
	}
	quote := result.Indicators.Quote[0]
	bars := make([]types.Candle, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		c := types.Candle{
			Ts:    ts,
			Open:  at(quote.Open, i),
			High:  at(quote.High, i),
			Low:   at(quote.Low, i),
			Close: at(quote.Close, i),
			Vol:   at(quote.Volume, i),
		}
		if c.Close <= 0 {
			continue // null bars (holidays, halted sessions)
		}
		bars = append(bars, c)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Ts < bars[j].Ts })
	return bars, nil
}

// DailyChange returns the last price and its change versus the previous close in percent.
func (y *Yahoo) DailyChange(ctx context.Context, symbol string) (last, changePct float64, err error) {
	bars, err := y.Candles(ctx, symbol, "5d", "1d")
	if err != nil {
		return 0, 0, err
	}
	if len(bars) < 2 {
		return 0, 0, fmt.Errorf("yahoo %s: need two sessions, got %d", symbol, len(bars))
	}
	prev := bars[len(bars)-2].Close
	last = bars[len(bars)-1].Close
	return last, (last - prev) / prev * 100, nil
}

func (y *Yahoo) fetchChart(ctx context.Context, symbol, period, interval string) (*yahooChart, error) {
	q := url.Values{}
	q.Set("range", period)
	q.Set("interval", interval)
	path := fmt.Sprintf("/v8/finance/chart/%s?%s", url.PathEscape(y.yahooSymbol(symbol)), q.Encode())

	resp, err := y.client.DoWithRetry(api.NewRequest("GET", path).WithContext(ctx), y.retry)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch %s: %w", symbol, err)
	}

	var chart yahooChart
	if err := resp.ParseJSON(&chart); err != nil {
		return nil, fmt.Errorf("yahoo decode %s: %w", symbol, err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, fmt.Errorf("yahoo %s: no data returned", symbol)
	}
	return &chart, nil
}
