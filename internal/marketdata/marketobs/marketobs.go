package marketobs

import (
	"context"

	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/logger"
	"ai-grid-trader/internal/metrics"
	"ai-grid-trader/internal/trace"
	"ai-grid-trader/internal/types"
)

// observableMarketData wraps a MarketData source with logging, tracing and metrics
type observableMarketData struct {
	src interfaces.MarketData
}

var _ interfaces.MarketData = (*observableMarketData)(nil)

// WrapMarketData wraps a candle source with observability middleware
func WrapMarketData(src interfaces.MarketData) interfaces.MarketData {
	return &observableMarketData{src: src}
}

func (o *observableMarketData) Name() string { return o.src.Name() }

func (o *observableMarketData) Candles(ctx context.Context, symbol, period, interval string) ([]types.Candle, error) {
	ctx, span := trace.StartSpan(ctx, "marketdata.Candles")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching candles", "source", o.src.Name(), "symbol", symbol, "period", period, "interval", interval)

	bars, err := o.src.Candles(ctx, symbol, period, interval)
	if err != nil {
		metrics.FetchErrors.WithLabelValues(o.src.Name()).Inc()
		logger.ErrorWithErrSkip(ctx, 1, "Candle fetch failed", err, "source", o.src.Name(), "symbol", symbol)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Candles fetched", "symbol", symbol, "bars", len(bars))
	return bars, nil
}

// observableContext wraps a ContextProvider with logging, tracing and metrics
type observableContext struct {
	p interfaces.ContextProvider
}

var _ interfaces.ContextProvider = (*observableContext)(nil)

// WrapContext wraps a context provider with observability middleware
func WrapContext(p interfaces.ContextProvider) interfaces.ContextProvider {
	return &observableContext{p: p}
}

func (o *observableContext) Name() string { return o.p.Name() }

func (o *observableContext) Context(ctx context.Context, symbol string) (map[string]string, error) {
	ctx, span := trace.StartSpan(ctx, "marketdata.Context")
	defer span.End()

	fields, err := o.p.Context(ctx, symbol)
	if err != nil {
		metrics.FetchErrors.WithLabelValues(o.p.Name()).Inc()
		logger.WarnSkip(ctx, 1, "Context fetch degraded", "provider", o.p.Name(), "symbol", symbol, "error", err)
	}

	missing := 0
	for _, v := range fields {
		if v == types.Unavailable {
			missing++
		}
	}
	logger.DebugSkip(ctx, 1, "Context fetched", "provider", o.p.Name(), "symbol", symbol, "fields", len(fields), "unavailable", missing)
	return fields, err
}
