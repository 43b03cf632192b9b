package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-grid-trader/internal/grid"
	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/risk"
	"ai-grid-trader/internal/types"
)

func rising(n int, last ...float64) []types.Candle {
	cs := make([]types.Candle, 0, n+len(last))
	for i := 0; i < n; i++ {
		c := 50 + float64(i)
		cs = append(cs, types.Candle{Ts: int64(i) * 86400, Open: c, High: c + 1, Low: c - 1, Close: c, Vol: 1000})
	}
	for _, c := range last {
		cs = append(cs, types.Candle{Ts: int64(len(cs)) * 86400, Open: c, High: c + 1, Low: c - 1, Close: c, Vol: 1000})
	}
	return cs
}

type scriptedMarket struct {
	mu     sync.Mutex
	series [][]types.Candle
	err    error
	calls  int
}

func (m *scriptedMarket) Name() string { return "scripted" }

func (m *scriptedMarket) Candles(ctx context.Context, symbol, period, interval string) ([]types.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s := m.series[min(m.calls, len(m.series)-1)]
	m.calls++
	return s, nil
}

type stubContext struct {
	fields map[string]string
	err    error
}

func (s stubContext) Name() string { return "stub" }

func (s stubContext) Context(context.Context, string) (map[string]string, error) {
	return s.fields, s.err
}

type fakeAdvisor struct {
	mu       sync.Mutex
	decision types.AIDecision
	requests []types.AdviceRequest
}

func (f *fakeAdvisor) Advise(ctx context.Context, req types.AdviceRequest) types.Advice {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return types.Advice{Decision: f.decision, Outcome: types.OutcomeOK}
}

type memSink struct {
	decisions []types.DecisionRecord
	events    []types.GridEvent
	err       error
}

func (m *memSink) RecordDecision(ctx context.Context, rec types.DecisionRecord) error {
	m.decisions = append(m.decisions, rec)
	return m.err
}

func (m *memSink) RecordGridEvent(ctx context.Context, cycleID string, ev types.GridEvent) error {
	m.events = append(m.events, ev)
	return m.err
}

type failingStore struct{}

func (failingStore) Load(context.Context) (map[string]*types.GridPosition, error) {
	return map[string]*types.GridPosition{}, nil
}

func (failingStore) Save(context.Context, map[string]*types.GridPosition) error {
	return errors.New("disk full")
}

var gridCfg = grid.Config{Capital: 10000, Levels: 3, GapPct: 0.03, TakeProfitPct: 0.05}

func openLedger(t *testing.T, store grid.Store) *grid.Ledger {
	t.Helper()
	if store == nil {
		store = grid.NewFileStore(filepath.Join(t.TempDir(), "grid_state.json"))
	}
	l, err := grid.Open(context.Background(), gridCfg, store, grid.WithSaveRetry(3, 0))
	if err != nil {
		t.Fatalf("grid.Open: %v", err)
	}
	return l
}

func newTestEngine(market *scriptedMarket, ctxp stubContext, adv *fakeAdvisor, ledger *grid.Ledger, sink *memSink) *Engine {
	e := New(Config{Symbols: []Symbol{{Symbol: "2330.TW", Name: "TSMC", Strategy: "grid"}}}, Deps{
		Market:  market,
		Context: ctxp,
		Advisor: adv,
		Gate:    risk.NewGate(nil, nil),
		Ledger:  ledger,
		Sinks:   []interfaces.DecisionSink{sink},
	})
	e.now = func() time.Time { return time.Date(2026, 3, 2, 1, 30, 0, 0, time.UTC) }
	return e
}

func TestStepSeedsThenFills(t *testing.T) {
	market := &scriptedMarket{series: [][]types.Candle{rising(69), rising(69, 114)}}
	adv := &fakeAdvisor{decision: types.AIDecision{Decision: types.VerdictBuy, Confidence: 72, Reason: "pullback"}}
	sink := &memSink{}
	e := newTestEngine(market, stubContext{fields: map[string]string{"inst": "foreign +100"}}, adv, openLedger(t, nil), sink)

	ctx := WithCycleID(context.Background(), "cycle-1")
	first, err := e.Step(ctx, "2330.TW")
	if err != nil {
		t.Fatalf("first Step: %v", err)
	}
	if first.CycleID != "cycle-1" || first.Price != 118 {
		t.Errorf("unexpected first result: cycle=%q price=%v", first.CycleID, first.Price)
	}
	if len(first.Events) != 0 {
		t.Errorf("first observation should only seed the reference, got %+v", first.Events)
	}

	second, err := e.Step(ctx, "2330.TW")
	if err != nil {
		t.Fatalf("second Step: %v", err)
	}
	if second.Trend.Bearish() || !second.Verdict.Allowed {
		t.Fatalf("expected gate to pass, trend=%s verdict=%+v", second.Trend, second.Verdict)
	}
	if len(second.Events) != 1 || second.Events[0].Kind != types.GridFill {
		t.Fatalf("expected one fill, got %+v", second.Events)
	}
	// 10000/3 = 3333.33 per rung, floor(3333.33/114) = 29
	if second.Events[0].Shares != 29 || second.Position.TotalShares != 29 {
		t.Errorf("shares = %d, position = %d, want 29", second.Events[0].Shares, second.Position.TotalShares)
	}

	req := adv.requests[1]
	if req.Name != "TSMC" || req.Strategy != "grid" {
		t.Errorf("request missing symbol details: %+v", req)
	}
	if req.Context["inst"] != "foreign +100" || req.Context["order_strength"] != "stable" {
		t.Errorf("context not merged: %+v", req.Context)
	}
	if !strings.HasPrefix(req.Context["month_low"], "97.00") {
		t.Errorf("month_low = %q", req.Context["month_low"])
	}

	if len(sink.decisions) != 2 || len(sink.events) != 1 {
		t.Fatalf("sink got %d decisions and %d events", len(sink.decisions), len(sink.events))
	}
	rec := sink.decisions[1]
	if rec.Time != "2026-03-02T09:30:00+08:00" {
		t.Errorf("record time = %q, want UTC+8", rec.Time)
	}
	if rec.AI.Decision != types.VerdictBuy || !rec.RiskGate.Allowed || rec.Outcome != types.OutcomeOK {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestStepWithoutPriceSkipsAdvisor(t *testing.T) {
	market := &scriptedMarket{err: errors.New("yahoo: no data returned")}
	adv := &fakeAdvisor{decision: types.AIDecision{Decision: types.VerdictBuy}}
	sink := &memSink{}
	e := newTestEngine(market, stubContext{}, adv, openLedger(t, nil), sink)

	res, err := e.Step(context.Background(), "2330.TW")
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(adv.requests) != 0 {
		t.Error("advisor must not be asked without a price")
	}
	if res.Advice.Outcome != types.OutcomeDegraded || res.Advice.Decision.Decision != types.VerdictHold {
		t.Errorf("expected neutral degraded advice, got %+v", res.Advice)
	}
	if res.Verdict.Allowed || res.Verdict.Reason != risk.ReasonPriceAnomaly {
		t.Errorf("verdict = %+v, want price anomaly", res.Verdict)
	}
	if res.Trend != types.TrendRange {
		t.Errorf("trend = %s, want range", res.Trend)
	}
	if !containsPrefix(res.Degraded, "market data") {
		t.Errorf("degraded = %v", res.Degraded)
	}
	if res.CycleID == "" {
		t.Error("a cycle id should be generated when none is set")
	}
	if len(sink.decisions) != 1 {
		t.Errorf("the decision must still be logged, got %d", len(sink.decisions))
	}
}

func TestStepRiskTagsVeto(t *testing.T) {
	market := &scriptedMarket{series: [][]types.Candle{rising(69)}}
	adv := &fakeAdvisor{decision: types.AIDecision{Decision: types.VerdictBuy, Confidence: 90}}
	ctxp := stubContext{
		fields: map[string]string{"market_context": "calm session", "risk_tags": "systemic"},
		err:    errors.New("finmind: over limit"),
	}
	e := newTestEngine(market, ctxp, adv, openLedger(t, nil), &memSink{})

	res, err := e.Step(context.Background(), "2330.TW")
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Verdict.Allowed || res.Verdict.Reason != risk.ReasonSystemic {
		t.Errorf("verdict = %+v, want systemic veto", res.Verdict)
	}
	if _, ok := adv.requests[0].Context["risk_tags"]; ok {
		t.Error("risk tags are for the gate, not the prompt")
	}
	if !containsPrefix(res.Degraded, "context") {
		t.Errorf("context failure should be annotated: %v", res.Degraded)
	}
}

func TestStepPersistenceFailure(t *testing.T) {
	market := &scriptedMarket{series: [][]types.Candle{rising(69)}}
	adv := &fakeAdvisor{decision: types.AIDecision{Decision: types.VerdictHold}}
	e := newTestEngine(market, stubContext{}, adv, openLedger(t, failingStore{}), &memSink{})

	res, err := e.Step(context.Background(), "2330.TW")
	var perr *grid.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *grid.PersistenceError, got %v", err)
	}
	if res == nil || res.Err == "" || !containsPrefix(res.Degraded, "ledger") {
		t.Errorf("result should carry the failure: %+v", res)
	}
}

func TestStepSinkErrorsDoNotFail(t *testing.T) {
	market := &scriptedMarket{series: [][]types.Candle{rising(69)}}
	adv := &fakeAdvisor{decision: types.AIDecision{Decision: types.VerdictHold}}
	e := newTestEngine(market, stubContext{}, adv, openLedger(t, nil), &memSink{err: errors.New("read-only fs")})

	if _, err := e.Step(context.Background(), "2330.TW"); err != nil {
		t.Errorf("sink failure should not fail the step: %v", err)
	}
}

func TestTechnicalContext(t *testing.T) {
	fields, tags := technicalContext(nil)
	for _, k := range []string{"month_low", "k_line", "order_strength"} {
		if fields[k] != types.Unavailable {
			t.Errorf("%s = %q, want unavailable", k, fields[k])
		}
	}
	if tags != nil {
		t.Errorf("tags = %v", tags)
	}

	series := rising(30)
	last := &series[len(series)-1]
	last.Open, last.Close, last.Vol = 80, 76, 5000
	fields, tags = technicalContext(series)
	if fields["order_strength"] != "heavy selling" || len(tags) != 1 || tags[0] != types.RiskSellPressure {
		t.Errorf("order flow = %q tags = %v", fields["order_strength"], tags)
	}
	if !strings.HasPrefix(fields["k_line"], "bearish candle, close 76.00, volume 5.0x") {
		t.Errorf("k_line = %q", fields["k_line"])
	}
}

func TestMergeContextKeepsRealValues(t *testing.T) {
	got := mergeContext(
		map[string]string{"order_strength": types.Unavailable, "inst": "x", "risk_tags": "systemic"},
		map[string]string{"order_strength": "stable", "month_low": types.Unavailable},
	)
	if got["order_strength"] != "stable" || got["inst"] != "x" || got["month_low"] != types.Unavailable {
		t.Errorf("merge = %+v", got)
	}
	if _, ok := got["risk_tags"]; ok {
		t.Error("risk_tags should be dropped from prompt context")
	}
}

func containsPrefix(list []string, prefix string) bool {
	for _, s := range list {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
