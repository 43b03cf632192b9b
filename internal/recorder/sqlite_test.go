package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ai-grid-trader/internal/types"
)

func TestSQLiteRecorder(t *testing.T) {
	ctx := context.Background()
	r, err := NewSQLiteRecorder(ctx, filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	rec := types.DecisionRecord{
		Time:     time.Now().Format(time.RFC3339),
		CycleID:  "c1",
		Symbol:   "2330",
		Price:    95,
		Trend:    types.TrendRange,
		AI:       types.AIDecision{Decision: types.VerdictBuy, Confidence: 80, Reason: "r", Model: "m"},
		Outcome:  types.OutcomeOK,
		RiskGate: types.RiskVerdict{Allowed: true, Reason: "passed"},
	}
	if err := r.RecordDecision(ctx, rec); err != nil {
		t.Fatalf("RecordDecision: %v", err)
	}

	var n int
	var decision string
	var gatePass bool
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(decision), MAX(gate_pass) FROM decisions WHERE symbol = ?`, "2330")
	if err := row.Scan(&n, &decision, &gatePass); err != nil {
		t.Fatal(err)
	}
	if n != 1 || decision != "buy" || !gatePass {
		t.Errorf("row = %d %s %v", n, decision, gatePass)
	}

	events := []types.GridEvent{
		{Kind: types.GridFill, Symbol: "2330", Rung: 1, Shares: 7, Price: 95},
		{Kind: types.GridRelease, Symbol: "2330", Rung: 1, Shares: 7, Price: 100, FillPrice: 95, Realized: 35},
		{Kind: types.GridRelease, Symbol: "0050", Rung: 2, Shares: 1, Price: 190, FillPrice: 180, Realized: 10},
	}
	for _, ev := range events {
		if err := r.RecordGridEvent(ctx, "c1", ev); err != nil {
			t.Fatalf("RecordGridEvent: %v", err)
		}
	}

	got, err := r.RealizedBySymbol(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if got["2330"] != 35 || got["0050"] != 10 {
		t.Errorf("realized = %v", got)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.db")
	r1, err := NewSQLiteRecorder(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	r1.Close()
	r2, err := NewSQLiteRecorder(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	r2.Close()
}
