package interfaces

import (
	"context"

	"ai-grid-trader/internal/types"
)

// MarketData fetches an ascending OHLCV series for a symbol.
type MarketData interface {
	Name() string
	Candles(ctx context.Context, symbol, period, interval string) ([]types.Candle, error)
}

// ContextProvider returns auxiliary key/value fields for a symbol. Fields it
// could not fill are set to types.Unavailable rather than left out.
type ContextProvider interface {
	Name() string
	Context(ctx context.Context, symbol string) (map[string]string, error)
}
