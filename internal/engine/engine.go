package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ai-grid-trader/internal/grid"
	"ai-grid-trader/internal/indicators"
	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/logger"
	"ai-grid-trader/internal/marketdata"
	"ai-grid-trader/internal/metrics"
	"ai-grid-trader/internal/risk"
	"ai-grid-trader/internal/tradelog"
	"ai-grid-trader/internal/types"
)

// Symbol is one configured instrument.
type Symbol struct {
	Symbol   string
	Name     string
	Strategy string
}

type Config struct {
	Period   string // candle history range, e.g. "6mo"
	Interval string // candle interval, e.g. "1d"
	Symbols  []Symbol
}

// Deps are the collaborators a pipeline step calls. Context may be nil.
type Deps struct {
	Market  interfaces.MarketData
	Context interfaces.ContextProvider
	Advisor interfaces.Advisor
	Gate    *risk.Gate
	Ledger  *grid.Ledger
	Sinks   []interfaces.DecisionSink
}

// Engine runs the decision pipeline for one symbol at a time.
type Engine struct {
	cfg     Config
	symbols map[string]Symbol
	d       Deps
	rec     *eventRecorder
	now     func() time.Time
}

var _ interfaces.Engine = (*Engine)(nil)

func New(cfg Config, d Deps) *Engine {
	if d.Gate == nil {
		d.Gate = risk.NewGate(nil, nil)
	}
	if cfg.Period == "" {
		cfg.Period = "6mo"
	}
	if cfg.Interval == "" {
		cfg.Interval = "1d"
	}
	e := &Engine{
		cfg:     cfg,
		symbols: make(map[string]Symbol, len(cfg.Symbols)),
		d:       d,
		rec:     newEventRecorder(d.Sinks),
		now:     time.Now,
	}
	for _, s := range cfg.Symbols {
		e.symbols[s.Symbol] = s
	}
	return e
}

// Symbols returns the configured symbols in order.
func (e *Engine) Symbols() []string {
	out := make([]string, len(e.cfg.Symbols))
	for i, s := range e.cfg.Symbols {
		out[i] = s.Symbol
	}
	return out
}

type cycleKey struct{}

// WithCycleID tags ctx with the id shared by every step of one cycle.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleKey{}, id)
}

// CycleID returns the id set by WithCycleID, or "".
func CycleID(ctx context.Context) string {
	id, _ := ctx.Value(cycleKey{}).(string)
	return id
}

// Step runs fetch, indicators, trend, advice, gate and ledger for symbol.
// It always returns a result; the error is non-nil when the ledger change
// could not be persisted or ctx was cancelled.
func (e *Engine) Step(ctx context.Context, symbol string) (*types.StepResult, error) {
	sym, ok := e.symbols[symbol]
	if !ok {
		sym = Symbol{Symbol: symbol}
	}
	cycleID := CycleID(ctx)
	if cycleID == "" {
		cycleID = uuid.NewString()
	}

	res := &types.StepResult{
		CycleID:  cycleID,
		Symbol:   symbol,
		Name:     sym.Name,
		Strategy: sym.Strategy,
		Time:     e.now().Unix(),
	}

	series, provided := e.fetch(ctx, symbol, res)
	if err := ctx.Err(); err != nil {
		res.Err = err.Error()
		return res, err
	}

	snap := indicators.Compute(series)
	res.Snapshot = snap
	res.Price = snap.Price
	res.Trend = indicators.ClassifySnapshot(snap)
	res.Signals = indicators.Describe(snap)
	res.GridBuy = indicators.GridBuyPrice(snap)
	if !snap.RSI.Ready || !snap.MA60.Ready {
		res.Degraded = append(res.Degraded, "indicators: insufficient history")
	}

	technical, tags := technicalContext(series)
	fields := mergeContext(provided, technical)
	tags = append(tags, marketdata.ParseTags(provided[marketdata.KeyRiskTags])...)

	res.Advice = e.advise(ctx, sym, res, fields)
	if !res.Advice.OK() {
		res.Degraded = append(res.Degraded, "advisor: "+res.Advice.Decision.Reason)
	}

	res.Verdict = e.evaluate(ctx, symbol, res.Price, res.Trend, fields, tags)

	var stepErr error
	if e.d.Ledger != nil {
		out, err := e.d.Ledger.Apply(ctx, symbol, res.Price, res.Advice.Decision, res.Verdict)
		res.Events = out.Events
		res.Position = out.Position
		if err != nil {
			var perr *grid.PersistenceError
			if errors.As(err, &perr) {
				metrics.PersistenceFailures.Inc()
			}
			res.Err = err.Error()
			res.Degraded = append(res.Degraded, "ledger: not persisted")
			stepErr = err
		}
		publishPosition(symbol, out)
	}

	e.rec.record(ctx, e.decisionRecord(res), res.Events)
	return res, stepErr
}

// fetch loads candles and provider context concurrently. Neither failure
// stops the step: missing candles leave every indicator unready and missing
// context reads as unavailable.
func (e *Engine) fetch(ctx context.Context, symbol string, res *types.StepResult) ([]types.Candle, map[string]string) {
	var (
		series  []types.Candle
		fields  map[string]string
		dataErr error
		ctxErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		series, dataErr = e.d.Market.Candles(gctx, symbol, e.cfg.Period, e.cfg.Interval)
		return nil
	})
	if e.d.Context != nil {
		g.Go(func() error {
			fields, ctxErr = e.d.Context.Context(gctx, symbol)
			return nil
		})
	}
	_ = g.Wait()

	if dataErr != nil {
		logger.ErrorWithErr(ctx, "Price series unavailable", dataErr, "symbol", symbol)
		res.Degraded = append(res.Degraded, "market data: "+dataErr.Error())
		series = nil
	}
	if ctxErr != nil {
		res.Degraded = append(res.Degraded, "context: "+ctxErr.Error())
	}
	if fields == nil {
		fields = make(map[string]string)
	}
	return series, fields
}

func (e *Engine) advise(ctx context.Context, sym Symbol, res *types.StepResult, fields map[string]string) types.Advice {
	if res.Price <= 0 {
		return types.Advice{Decision: types.NeutralDecision("advisory skipped: no price data"), Outcome: types.OutcomeDegraded}
	}
	return e.d.Advisor.Advise(ctx, types.AdviceRequest{
		Symbol:   sym.Symbol,
		Name:     sym.Name,
		Strategy: sym.Strategy,
		Snapshot: res.Snapshot,
		Trend:    res.Trend,
		Signals:  res.Signals,
		Context:  fields,
	})
}

func (e *Engine) evaluate(ctx context.Context, symbol string, price float64, trend types.TrendLabel, fields map[string]string, tags []types.RiskTag) types.RiskVerdict {
	v := e.d.Gate.Evaluate(price, risk.Context{
		Trend:      trend,
		OrderFlow:  fields["order_strength"],
		MarketRisk: fields["market_context"],
		Tags:       tags,
	})
	if !v.Allowed {
		metrics.RiskBlocks.WithLabelValues(v.Reason).Inc()
		logger.Risk(ctx, symbol, v.Reason, "price", price, "trend", trend, "tags", fmt.Sprint(tags))
	}
	return v
}

func (e *Engine) decisionRecord(res *types.StepResult) types.DecisionRecord {
	return types.DecisionRecord{
		Time:     time.Unix(res.Time, 0).In(tradelog.Zone).Format(time.RFC3339),
		CycleID:  res.CycleID,
		Symbol:   res.Symbol,
		Price:    res.Price,
		Trend:    res.Trend,
		AI:       res.Advice.Decision,
		Outcome:  res.Advice.Outcome,
		Cached:   res.Advice.Cached,
		RiskGate: res.Verdict,
	}
}
