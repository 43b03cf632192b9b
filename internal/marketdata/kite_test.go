package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/zerodha/gokiteconnect/v4/models"
)

type fakeKite struct {
	token    int
	interval string
	from, to time.Time
	data     []kiteconnect.HistoricalData
	err      error
}

func (f *fakeKite) GetHistoricalData(token int, interval string, from, to time.Time, continuous, oi bool) ([]kiteconnect.HistoricalData, error) {
	f.token, f.interval, f.from, f.to = token, interval, from, to
	return f.data, f.err
}

func TestKiteCandles(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	fk := &fakeKite{data: []kiteconnect.HistoricalData{
		{Date: models.Time{Time: day}, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1000},
		{Date: models.Time{Time: day.Add(24 * time.Hour)}, Close: 0},
		{Date: models.Time{Time: day.Add(48 * time.Hour)}, Open: 100.5, High: 103, Low: 100, Close: 102, Volume: 2000},
	}}
	k := newKite(fk, map[string]int{"INFY": 408065})
	k.now = func() time.Time { return day.Add(72 * time.Hour) }

	bars, err := k.Candles(context.Background(), "INFY", "5d", "1d")
	if err != nil {
		t.Fatalf("Candles: %v", err)
	}
	if fk.token != 408065 || fk.interval != "day" {
		t.Errorf("called with token=%d interval=%q", fk.token, fk.interval)
	}
	if got := fk.to.Sub(fk.from); got != 5*24*time.Hour {
		t.Errorf("window = %v, want 5 days", got)
	}
	if len(bars) != 2 {
		t.Fatalf("expected zero-close bar dropped, got %d", len(bars))
	}
	if bars[0].Ts != day.Unix() || bars[1].Vol != 2000 {
		t.Errorf("unexpected bars %+v", bars)
	}
}

func TestKiteErrors(t *testing.T) {
	k := newKite(&fakeKite{err: errors.New("TokenException")}, map[string]int{"INFY": 1})
	if _, err := k.Candles(context.Background(), "TCS", "5d", "1d"); err == nil {
		t.Error("expected error for unmapped symbol")
	}
	if _, err := k.Candles(context.Background(), "INFY", "5x", "1d"); err == nil {
		t.Error("expected error for bad period")
	}
	if _, err := k.Candles(context.Background(), "INFY", "5d", "1d"); err == nil {
		t.Error("expected provider error to surface")
	}

	k.AddInstrument("TCS", 2953217)
	if tok, ok := k.token("TCS"); !ok || tok != 2953217 {
		t.Errorf("AddInstrument not applied: %d %v", tok, ok)
	}
}

func TestKiteInterval(t *testing.T) {
	tests := map[string]string{
		"1d":  "day",
		"":    "day",
		"1m":  "minute",
		"5m":  "5minute",
		"15m": "15minute",
		"60m": "60minute",
		"1h":  "60minute",
	}
	for in, want := range tests {
		if got := kiteInterval(in); got != want {
			t.Errorf("kiteInterval(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParsePeriod(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"5d", 5 * day, true},
		{"2wk", 14 * day, true},
		{"6mo", 186 * day, true},
		{"1y", 366 * day, true},
		{"y", 0, false},
		{"0d", 0, false},
		{"3q", 0, false},
	}
	for _, tt := range tests {
		got, err := parsePeriod(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("parsePeriod(%q) = %v, %v", tt.in, got, err)
		}
	}
}
