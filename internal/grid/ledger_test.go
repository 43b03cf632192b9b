package grid

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"ai-grid-trader/internal/types"
)

var (
	buy     = types.AIDecision{Decision: types.VerdictBuy, Confidence: 80}
	hold    = types.AIDecision{Decision: types.VerdictHold, Confidence: 60}
	allowed = types.RiskVerdict{Allowed: true, Reason: "passed"}
	vetoed  = types.RiskVerdict{Allowed: false, Reason: "bearish trend"}
)

func testConfig() Config {
	return Config{Capital: 3335, Levels: 5, GapPct: 0.03, TakeProfitPct: 0.05}
}

// memStore keeps the encoded document so every save really round-trips.
type memStore struct {
	doc   []byte
	saves int
	fail  error
}

func (m *memStore) Load(ctx context.Context) (map[string]*types.GridPosition, error) {
	if m.doc == nil {
		return map[string]*types.GridPosition{}, nil
	}
	return decodeLedger(m.doc)
}

func (m *memStore) Save(ctx context.Context, positions map[string]*types.GridPosition) error {
	m.saves++
	if m.fail != nil {
		return m.fail
	}
	b, err := encodeLedger(positions)
	if err != nil {
		return err
	}
	m.doc = b
	return nil
}

func openLedger(t *testing.T, store Store) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), testConfig(), store, WithSaveRetry(3, 0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return l
}

func TestFirstObservationOnlySeeds(t *testing.T) {
	l := openLedger(t, &memStore{})
	out, err := l.Apply(context.Background(), "2330", 100, buy, allowed)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out.Events) != 0 || out.Position.TotalShares != 0 {
		t.Errorf("first observation should not trade: %+v", out)
	}
	if out.Position.RefPrice != 100 {
		t.Errorf("ref price = %v, want 100", out.Position.RefPrice)
	}
}

func TestScenarioAPriceAboveTrigger(t *testing.T) {
	l := openLedger(t, &memStore{})
	ctx := context.Background()
	l.Apply(ctx, "2330", 100, hold, allowed)

	if got := l.Rungs("2330")[0].TriggerPrice; got != 97 {
		t.Fatalf("rung-1 trigger = %v, want 97", got)
	}
	out, err := l.Apply(ctx, "2330", 100, buy, allowed)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Changed || len(out.Events) != 0 || out.Position.TotalShares != 0 {
		t.Errorf("price above trigger must not mutate: %+v", out)
	}
}

func TestScenarioBFillAtTrigger(t *testing.T) {
	store := &memStore{}
	l := openLedger(t, store)
	ctx := context.Background()
	l.Apply(ctx, "2330", 100, hold, allowed)

	out, err := l.Apply(ctx, "2330", 95, buy, allowed)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out.Events) != 1 || out.Events[0].Kind != types.GridFill {
		t.Fatalf("expected one fill, got %+v", out.Events)
	}
	ev := out.Events[0]
	if ev.Rung != 1 || ev.Shares != 7 {
		t.Errorf("fill = rung %d shares %d, want rung 1 shares 7", ev.Rung, ev.Shares)
	}
	p := out.Position
	if p.TotalShares != 7 || p.TotalCost != 665 {
		t.Errorf("totals = %d / %v, want 7 / 665", p.TotalShares, p.TotalCost)
	}
	lvl := p.Levels[0]
	if !lvl.Filled || lvl.FillPrice != 95 || lvl.TriggerPrice != 97 {
		t.Errorf("rung-1 = %+v", lvl)
	}
	if err := CheckInvariants(p); err != nil {
		t.Error(err)
	}

	reloaded := openLedger(t, store)
	if !reflect.DeepEqual(reloaded.Position("2330"), p) {
		t.Errorf("persisted position differs:\n got %+v\nwant %+v", reloaded.Position("2330"), p)
	}
}

func TestScenarioCTakeProfitRelease(t *testing.T) {
	store := &memStore{doc: []byte(`{"2330":{"shares":7,"cost":630,"ref_price":92,"grid":{"0":{"price":90,"qty":7,"trigger":90.2}}}}`)}
	l := openLedger(t, store)

	out, err := l.Apply(context.Background(), "2330", 96, hold, allowed)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out.Events) != 1 || out.Events[0].Kind != types.GridRelease {
		t.Fatalf("expected one release, got %+v", out.Events)
	}
	ev := out.Events[0]
	if ev.Shares != 7 || ev.FillPrice != 90 || ev.Realized != 42 {
		t.Errorf("release = %+v, want 7 shares realising 42", ev)
	}
	p := out.Position
	if p.TotalShares != 0 || p.TotalCost != 0 || len(p.Levels) != 0 {
		t.Errorf("position should be flat, got %+v", p)
	}
	if p.RefPrice != 96 {
		t.Errorf("ref price = %v, want 96", p.RefPrice)
	}
}

func TestReleaseBelowTargetKeepsRung(t *testing.T) {
	store := &memStore{doc: []byte(`{"2330":{"shares":7,"cost":630,"ref_price":92,"grid":{"0":{"price":90,"qty":7}}}}`)}
	l := openLedger(t, store)

	out, _ := l.Apply(context.Background(), "2330", 94.4, buy, allowed)
	for _, ev := range out.Events {
		if ev.Kind == types.GridRelease {
			t.Fatalf("94.4 is below 94.5, no release expected: %+v", ev)
		}
	}
	if out.Position.TotalShares != 7 {
		t.Errorf("shares = %d, want 7", out.Position.TotalShares)
	}
}

func TestVetoAndHoldBlockFills(t *testing.T) {
	cases := []struct {
		name     string
		decision types.AIDecision
		verdict  types.RiskVerdict
		note     string
	}{
		{"gate veto with buy", buy, vetoed, "risk gate: bearish trend"},
		{"hold with allowed gate", hold, allowed, "advisor: hold"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := openLedger(t, &memStore{})
			ctx := context.Background()
			l.Apply(ctx, "2330", 100, hold, allowed)

			out, err := l.Apply(ctx, "2330", 95, tc.decision, tc.verdict)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if out.Position.TotalShares != 0 {
				t.Errorf("no fill expected, shares=%d", out.Position.TotalShares)
			}
			if len(out.Events) != 1 || out.Events[0].Kind != types.GridSkip || out.Events[0].Note != tc.note {
				t.Errorf("events = %+v, want one skip with note %q", out.Events, tc.note)
			}
		})
	}
}

func TestZeroShareAllocationSkips(t *testing.T) {
	l, err := Open(context.Background(), Config{Capital: 500, Levels: 5, GapPct: 0.03, TakeProfitPct: 0.05}, &memStore{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	l.Apply(ctx, "2330", 1000, hold, allowed)
	out, _ := l.Apply(ctx, "2330", 960, buy, allowed)

	if out.Position.TotalShares != 0 {
		t.Errorf("100 / 960 is below one share, got %d", out.Position.TotalShares)
	}
	if len(out.Events) == 0 || out.Events[0].Note != "allocation below one share" {
		t.Errorf("expected a skip event, got %+v", out.Events)
	}
}

func TestRungDriftFollowsLatestPrice(t *testing.T) {
	l := openLedger(t, &memStore{})
	ctx := context.Background()
	for _, px := range []float64{100, 98, 96.5, 95} {
		out, err := l.Apply(ctx, "2330", px, buy, allowed)
		if err != nil {
			t.Fatal(err)
		}
		if out.Position.TotalShares != 0 {
			t.Fatalf("a slow grind below 3%% per cycle never reaches rung-1, filled at %v", px)
		}
	}
	if got := l.Rungs("2330")[0].TriggerPrice; got != 92.15 {
		t.Errorf("rung-1 trigger = %v, want 92.15 (95 x 0.97)", got)
	}
}

func TestOneTransitionPerRungPerCycle(t *testing.T) {
	store := &memStore{doc: []byte(`{"2330":{"shares":7,"cost":630,"ref_price":100,"grid":{"0":{"price":90,"qty":7}}}}`)}
	l := openLedger(t, store)

	// 95 releases rung-1 (>= 94.5) and is also below its 97 trigger; it must not refill now.
	out, err := l.Apply(context.Background(), "2330", 95, buy, allowed)
	if err != nil {
		t.Fatal(err)
	}
	kinds := map[int][]types.GridEventKind{}
	for _, ev := range out.Events {
		kinds[ev.Rung] = append(kinds[ev.Rung], ev.Kind)
	}
	if len(kinds[1]) != 1 || kinds[1][0] != types.GridRelease {
		t.Errorf("rung-1 events = %v, want only release", kinds[1])
	}
	if _, ok := out.Position.Levels[0]; ok {
		t.Error("rung-1 should be empty after release")
	}
	if err := CheckInvariants(out.Position); err != nil {
		t.Error(err)
	}
}

func TestDeepDropFillsSeveralRungs(t *testing.T) {
	l := openLedger(t, &memStore{})
	ctx := context.Background()
	l.Apply(ctx, "2330", 100, hold, allowed)
	out, err := l.Apply(ctx, "2330", 90, buy, allowed)
	if err != nil {
		t.Fatal(err)
	}
	// triggers 97, 94, 91 are reached, 88 and 85 are not
	if len(out.Position.Levels) != 3 {
		t.Fatalf("filled rungs = %d, want 3", len(out.Position.Levels))
	}
	if out.Position.TotalShares != 21 || out.Position.TotalCost != 1890 {
		t.Errorf("totals = %d / %v, want 21 / 1890", out.Position.TotalShares, out.Position.TotalCost)
	}
	if out.Position.AvgCost() != 90 {
		t.Errorf("avg cost = %v, want 90", out.Position.AvgCost())
	}
}

func TestPersistenceFailureRollsBack(t *testing.T) {
	store := &memStore{}
	l := openLedger(t, store)
	ctx := context.Background()
	l.Apply(ctx, "2330", 100, hold, allowed)
	before := l.Position("2330")

	store.fail = errors.New("disk full")
	store.saves = 0
	out, err := l.Apply(ctx, "2330", 95, buy, allowed)

	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *PersistenceError", err)
	}
	if perr.Symbol != "2330" || store.saves != 3 {
		t.Errorf("symbol=%s saves=%d, want 2330 and 3 attempts", perr.Symbol, store.saves)
	}
	if !reflect.DeepEqual(l.Position("2330"), before) {
		t.Errorf("position not rolled back: %+v", l.Position("2330"))
	}
	if !reflect.DeepEqual(out.Position, before) {
		t.Errorf("outcome should report the rolled-back position")
	}
}

func TestInvalidPriceIsIgnored(t *testing.T) {
	store := &memStore{}
	l := openLedger(t, store)
	out, err := l.Apply(context.Background(), "2330", 0, buy, allowed)
	if err != nil || out.Position != nil || store.saves != 0 {
		t.Errorf("zero price should be a no-op: out=%+v err=%v saves=%d", out, err, store.saves)
	}
}

func TestOpenRejectsBrokenInvariants(t *testing.T) {
	store := &memStore{doc: []byte(`{"2330":{"shares":9,"cost":630,"grid":{"0":{"price":90,"qty":7}}}}`)}
	if _, err := Open(context.Background(), testConfig(), store); err == nil {
		t.Error("expected invariant violation")
	}
}

func TestConfigValidate(t *testing.T) {
	bad := []Config{
		{Capital: 0, Levels: 5, GapPct: 0.03, TakeProfitPct: 0.05},
		{Capital: 100, Levels: 0, GapPct: 0.03, TakeProfitPct: 0.05},
		{Capital: 100, Levels: 5, GapPct: 0.2, TakeProfitPct: 0.05},
		{Capital: 100, Levels: 5, GapPct: 0.03, TakeProfitPct: 0},
	}
	for _, c := range bad {
		if c.Validate() == nil {
			t.Errorf("expected %+v to be invalid", c)
		}
	}
	if err := testConfig().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestFileStoreLedgerEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "grid.json")
	ctx := context.Background()

	l, err := Open(ctx, testConfig(), NewFileStore(path))
	if err != nil {
		t.Fatal(err)
	}
	l.Apply(ctx, "2330", 100, hold, allowed)
	l.Apply(ctx, "2330", 95, buy, allowed)

	again, err := Open(ctx, testConfig(), NewFileStore(path))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(again.Positions(), l.Positions()) {
		t.Errorf("reloaded ledger differs")
	}
}

func TestSymbolCapitalOverride(t *testing.T) {
	cfg := testConfig()
	cfg.Capital = 10000
	l, err := Open(context.Background(), cfg, &memStore{}, WithSymbolCapital(map[string]float64{"2317": 3335}))
	if err != nil {
		t.Fatal(err)
	}
	if l.Capital("2317") != 3335 || l.Capital("0050") != 10000 {
		t.Fatalf("capital = %v / %v", l.Capital("2317"), l.Capital("0050"))
	}
	ctx := context.Background()
	l.Apply(ctx, "2317", 100, hold, allowed)
	out, _ := l.Apply(ctx, "2317", 95, buy, allowed)
	if out.Position.TotalShares != 7 {
		t.Errorf("shares = %d, want floor(667/95) = 7", out.Position.TotalShares)
	}
}
