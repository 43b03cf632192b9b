package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/types"
)

// kiteHistory is the slice of the Kite client the fetcher uses.
type kiteHistory interface {
	GetHistoricalData(instrumentToken int, interval string, fromDate time.Time, toDate time.Time, continuous bool, OI bool) ([]kiteconnect.HistoricalData, error)
}

// Kite fetches historical candles from Zerodha Kite Connect.
type Kite struct {
	client kiteHistory
	mu     sync.RWMutex
	tokens map[string]int
	now    func() time.Time
}

var _ interfaces.MarketData = (*Kite)(nil)

// NewKite creates a Kite fetcher. tokens maps symbols to instrument tokens.
func NewKite(apiKey, accessToken string, tokens map[string]int) *Kite {
	kc := kiteconnect.New(apiKey)
	kc.SetAccessToken(accessToken)
	return newKite(kc, tokens)
}

func newKite(client kiteHistory, tokens map[string]int) *Kite {
	k := &Kite{client: client, tokens: make(map[string]int, len(tokens)), now: time.Now}
	for s, t := range tokens {
		k.tokens[s] = t
	}
	return k
}

func (k *Kite) Name() string { return "kite" }

// AddInstrument registers or replaces a symbol's instrument token.
func (k *Kite) AddInstrument(symbol string, token int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.tokens[symbol] = token
}

func (k *Kite) token(symbol string) (int, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	t, ok := k.tokens[symbol]
	return t, ok
}

func (k *Kite) Candles(ctx context.Context, symbol, period, interval string) ([]types.Candle, error) {
	token, ok := k.token(symbol)
	if !ok {
		return nil, fmt.Errorf("kite: no instrument token for %s", symbol)
	}
	span, err := parsePeriod(period)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	to := k.now()
	data, err := k.client.GetHistoricalData(token, kiteInterval(interval), to.Add(-span), to, false, false)
	if err != nil {
		return nil, fmt.Errorf("kite historical %s: %w", symbol, err)
	}

	bars := make([]types.Candle, 0, len(data))
	for _, d := range data {
		if d.Close <= 0 {
			continue
		}
		bars = append(bars, types.Candle{
			Ts:    d.Date.Unix(),
			Open:  d.Open,
			High:  d.High,
			Low:   d.Low,
			Close: d.Close,
			Vol:   float64(d.Volume),
		})
	}
	return bars, nil
}

// kiteInterval maps Yahoo-style interval names onto Kite's vocabulary.
func kiteInterval(interval string) string {
	switch interval {
	case "1d", "day", "":
		return "day"
	case "1m":
		return "minute"
	case "60m", "1h":
		return "60minute"
	}
	if strings.HasSuffix(interval, "m") {
		return strings.TrimSuffix(interval, "m") + "minute"
	}
	return interval
}

// parsePeriod understands the "5d", "6mo", "1y" range notation.
func parsePeriod(period string) (time.Duration, error) {
	const day = 24 * time.Hour
	unit := strings.TrimLeft(period, "0123456789")
	n, err := strconv.Atoi(strings.TrimSuffix(period, unit))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid period %q", period)
	}
	switch unit {
	case "d":
		return time.Duration(n) * day, nil
	case "wk":
		return time.Duration(n) * 7 * day, nil
	case "mo":
		return time.Duration(n) * 31 * day, nil
	case "y":
		return time.Duration(n) * 366 * day, nil
	}
	return 0, fmt.Errorf("invalid period unit %q", period)
}
