package marketdata

import (
	"context"
	"hash/fnv"
	"math/rand"
	"time"

	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/types"
)

// Static generates a reproducible random walk per symbol. Used for dry runs
// and for exercising the pipeline without network access.
type Static struct {
	Bars int
	Base float64
	now  func() time.Time
}

var _ interfaces.MarketData = (*Static)(nil)

func NewStatic(bars int) *Static {
	if bars <= 0 {
		bars = 120
	}
	return &Static{Bars: bars, Base: 100, now: time.Now}
}

func (s *Static) Name() string { return "static" }

func (s *Static) Candles(ctx context.Context, symbol, _, _ string) ([]types.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := fnv.New64a()
	h.Write([]byte(symbol))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	end := s.now().Truncate(24 * time.Hour).Unix()
	cs := make([]types.Candle, 0, s.Bars)
	c := s.Base
	for i := s.Bars; i > 0; i-- {
		open := c
		c = c * (1 + (rng.Float64()-0.5)*0.04)
		hi := max(open, c) * (1 + rng.Float64()*0.01)
		lo := min(open, c) * (1 - rng.Float64()*0.01)
		cs = append(cs, types.Candle{
			Ts:    end - int64(i-1)*86400,
			Open:  open,
			High:  hi,
			Low:   lo,
			Close: c,
			Vol:   1000 + rng.Float64()*4000,
		})
	}
	return cs, nil
}
