package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ai-grid-trader/internal/api"
	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/logger"
	"ai-grid-trader/internal/types"
)

const finmindBaseURL = "https://api.finmindtrade.com/api/v4"

const (
	datasetInstitutional = "TaiwanStockInstitutionalInvestorsBuySell"
	datasetMonthRevenue  = "TaiwanStockMonthRevenue"
	datasetHolding       = "TaiwanStockShareholdingSpread"
)

// FinMind supplies Taiwan chip and fundamental context: institutional net
// flow ("inst"), monthly revenue growth ("rev") and large holders ("holders").
type FinMind struct {
	client *api.Client
	token  string
	now    func() time.Time
}

var _ interfaces.ContextProvider = (*FinMind)(nil)

func NewFinMind(token, baseURL string, opts ...api.ClientOption) *FinMind {
	if baseURL == "" {
		baseURL = finmindBaseURL
	}
	base := []api.ClientOption{api.WithBaseURL(baseURL), api.WithTimeout(15 * time.Second)}
	return &FinMind{
		client: api.NewClient(append(base, opts...)...),
		token:  token,
		now:    time.Now,
	}
}

func (f *FinMind) Name() string { return "finmind" }

type finmindResponse[T any] struct {
	Msg    string `json:"msg"`
	Status int    `json:"status"`
	Data   []T    `json:"data"`
}

type institutionalRow struct {
	Date string  `json:"date"`
	Name string  `json:"name"`
	Buy  float64 `json:"buy"`
	Sell float64 `json:"sell"`
}

type revenueRow struct {
	Date         string   `json:"date"`
	Revenue      float64  `json:"revenue"`
	RevenueYear  int      `json:"revenue_year"`
	RevenueMonth int      `json:"revenue_month"`
	YoY          *float64 `json:"revenue_comparison_minus_relative_percent"`
}

type holdingRow struct {
	Date       string  `json:"date"`
	Level      string  `json:"HoldingSharesLevel"`
	LevelAlt   string  `json:"level"`
	Percent    float64 `json:"percent"`
	Proportion float64 `json:"proportion"`
}

// Context fetches the three datasets concurrently. A dataset that fails or
// returns nothing leaves its field unavailable; the error is only returned
// when every dataset failed.
func (f *FinMind) Context(ctx context.Context, symbol string) (map[string]string, error) {
	stockID := StockID(symbol)
	out := map[string]string{
		"inst":    types.Unavailable,
		"rev":     types.Unavailable,
		"holders": types.Unavailable,
	}
	var (
		mu       sync.Mutex
		failures []string
	)
	set := func(key, val string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", key, err))
			logger.Warn(ctx, "finmind dataset failed", "symbol", symbol, "field", key, "error", err)
			return
		}
		out[key] = val
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := f.institutional(gctx, stockID)
		set("inst", v, err)
		return nil
	})
	g.Go(func() error {
		v, err := f.revenue(gctx, stockID)
		set("rev", v, err)
		return nil
	})
	g.Go(func() error {
		v, err := f.holders(gctx, stockID)
		set("holders", v, err)
		return nil
	})
	_ = g.Wait()

	if len(failures) == 3 {
		return out, fmt.Errorf("finmind %s: %s", symbol, strings.Join(failures, "; "))
	}
	return out, nil
}

func (f *FinMind) institutional(ctx context.Context, stockID string) (string, error) {
	rows, err := fetchRows[institutionalRow](ctx, f, datasetInstitutional, stockID, 30)
	if err != nil {
		return "", err
	}
	foreign := lastN(filterName(rows, "Foreign_Investor"), 3)
	sitc := lastN(filterName(rows, "Investment_Trust", "SITC"), 3)
	if len(foreign) == 0 && len(sitc) == 0 {
		return "", fmt.Errorf("no institutional rows")
	}
	return fmt.Sprintf("foreign %+d, investment trust %+d (3 sessions)", netFlow(foreign), netFlow(sitc)), nil
}

func (f *FinMind) revenue(ctx context.Context, stockID string) (string, error) {
	rows, err := fetchRows[revenueRow](ctx, f, datasetMonthRevenue, stockID, 430)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("no revenue rows")
	}
	last := rows[len(rows)-1]
	if last.YoY != nil {
		return fmt.Sprintf("revenue YoY %.2f%%", *last.YoY), nil
	}
	// Derive YoY from the same month a year earlier.
	for _, r := range rows {
		if r.RevenueYear == last.RevenueYear-1 && r.RevenueMonth == last.RevenueMonth && r.Revenue > 0 {
			return fmt.Sprintf("revenue YoY %.2f%%", (last.Revenue-r.Revenue)/r.Revenue*100), nil
		}
	}
	return "", fmt.Errorf("no prior-year revenue for %d-%02d", last.RevenueYear, last.RevenueMonth)
}

func (f *FinMind) holders(ctx context.Context, stockID string) (string, error) {
	rows, err := fetchRows[holdingRow](ctx, f, datasetHolding, stockID, 14)
	if err != nil {
		return "", err
	}
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		level := r.Level
		if level == "" {
			level = r.LevelAlt
		}
		if level != "more than 1,000,001" && level != "1000-up" {
			continue
		}
		pct := r.Percent
		if pct == 0 {
			pct = r.Proportion
		}
		return fmt.Sprintf("1000-lot holders %.1f%%", pct), nil
	}
	return "", fmt.Errorf("no large-holder level")
}

func fetchRows[T any](ctx context.Context, f *FinMind, dataset, stockID string, days int) ([]T, error) {
	q := url.Values{}
	q.Set("dataset", dataset)
	q.Set("data_id", stockID)
	q.Set("start_date", f.now().AddDate(0, 0, -days).Format("2006-01-02"))
	if f.token != "" {
		q.Set("token", f.token)
	}
	resp, err := f.client.GET(ctx, "/data?"+q.Encode())
	if err != nil {
		return nil, err
	}
	var body finmindResponse[T]
	if err := resp.ParseJSON(&body); err != nil {
		return nil, err
	}
	if body.Status != 0 && body.Status != 200 {
		return nil, fmt.Errorf("finmind %s: status %d: %s", dataset, body.Status, body.Msg)
	}
	return body.Data, nil
}

// StockID strips exchange suffixes like ".TW" and ".TWO".
func StockID(symbol string) string {
	if i := strings.IndexByte(symbol, '.'); i > 0 {
		return symbol[:i]
	}
	return symbol
}

func filterName(rows []institutionalRow, names ...string) []institutionalRow {
	var out []institutionalRow
	for _, r := range rows {
		for _, n := range names {
			if r.Name == n {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func lastN[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func netFlow(rows []institutionalRow) int {
	sum := 0.0
	for _, r := range rows {
		sum += r.Buy - r.Sell
	}
	return int(sum)
}
