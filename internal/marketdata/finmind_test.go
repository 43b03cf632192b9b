package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-grid-trader/internal/types"
)

func finmindServer(t *testing.T, datasets map[string]string) (*FinMind, *[]string) {
	t.Helper()
	var (
		mu      sync.Mutex
		queries []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data" {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		queries = append(queries, r.URL.RawQuery)
		mu.Unlock()
		body, ok := datasets[r.URL.Query().Get("dataset")]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"msg":"bad dataset","status":400}`)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	f := NewFinMind("tok", srv.URL)
	f.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	return f, &queries
}

const (
	instJSON = `{"msg":"success","status":200,"data":[
{"date":"2026-02-24","name":"Foreign_Investor","buy":5000,"sell":1000},
{"date":"2026-02-25","name":"Foreign_Investor","buy":1000,"sell":3000},
{"date":"2026-02-26","name":"Foreign_Investor","buy":2000,"sell":1000},
{"date":"2026-02-27","name":"Foreign_Investor","buy":1000,"sell":1500},
{"date":"2026-02-27","name":"Investment_Trust","buy":300,"sell":100},
{"date":"2026-02-27","name":"Dealer_self","buy":10,"sell":0}]}`
	revJSON = `{"msg":"success","status":200,"data":[
{"date":"2025-02-01","revenue":1000,"revenue_year":2025,"revenue_month":1},
{"date":"2026-02-01","revenue":1250,"revenue_year":2026,"revenue_month":1}]}`
	holdersJSON = `{"msg":"success","status":200,"data":[
{"date":"2026-02-27","HoldingSharesLevel":"1-999","percent":12.3},
{"date":"2026-02-27","HoldingSharesLevel":"more than 1,000,001","percent":72.46}]}`
)

func TestFinMindContext(t *testing.T) {
	f, queries := finmindServer(t, map[string]string{
		datasetInstitutional: instJSON,
		datasetMonthRevenue:  revJSON,
		datasetHolding:       holdersJSON,
	})

	got, err := f.Context(context.Background(), "2330.TW")
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	// last three foreign sessions: -2000 +1000 -500
	if got["inst"] != "foreign -1500, investment trust +200 (3 sessions)" {
		t.Errorf("inst = %q", got["inst"])
	}
	if got["rev"] != "revenue YoY 25.00%" {
		t.Errorf("rev = %q", got["rev"])
	}
	if got["holders"] != "1000-lot holders 72.5%" {
		t.Errorf("holders = %q", got["holders"])
	}

	for _, q := range *queries {
		if !strings.Contains(q, "data_id=2330&") && !strings.HasSuffix(q, "data_id=2330") {
			t.Errorf("suffix not stripped: %s", q)
		}
		if !strings.Contains(q, "token=tok") {
			t.Errorf("token missing: %s", q)
		}
	}
}

func TestFinMindPartialFailure(t *testing.T) {
	f, _ := finmindServer(t, map[string]string{
		datasetMonthRevenue: `{"msg":"success","status":200,"data":[{"revenue_year":2026,"revenue_month":1,"revenue_comparison_minus_relative_percent":-3.5}]}`,
	})

	got, err := f.Context(context.Background(), "2330")
	if err != nil {
		t.Fatalf("one dataset succeeded, expected no error: %v", err)
	}
	if got["rev"] != "revenue YoY -3.50%" {
		t.Errorf("rev = %q", got["rev"])
	}
	if got["inst"] != types.Unavailable || got["holders"] != types.Unavailable {
		t.Errorf("failed datasets should be unavailable: %+v", got)
	}
}

func TestFinMindAllFail(t *testing.T) {
	f, _ := finmindServer(t, map[string]string{
		datasetInstitutional: `{"msg":"over limit","status":402,"data":[]}`,
	})
	got, err := f.Context(context.Background(), "2330")
	if err == nil {
		t.Fatal("expected error when every dataset fails")
	}
	if !strings.Contains(err.Error(), "over limit") {
		t.Errorf("error should carry provider message: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("fields should still be filled, got %+v", got)
	}
}

func TestStockID(t *testing.T) {
	for in, want := range map[string]string{"2330.TW": "2330", "6488.TWO": "6488", "0050": "0050"} {
		if got := StockID(in); got != want {
			t.Errorf("StockID(%q) = %q, want %q", in, got, want)
		}
	}
}
