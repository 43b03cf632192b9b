package ta

import (
	"math"
	"testing"
)

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestShortInputsReturnNaN(t *testing.T) {
	short := ramp(5, 10, 1)
	if !math.IsNaN(SMA(short, 20)) {
		t.Error("SMA should be NaN for short input")
	}
	if !math.IsNaN(RSI(short, 14)) {
		t.Error("RSI should be NaN for short input")
	}
	if !math.IsNaN(StdDev(short, 20)) {
		t.Error("StdDev should be NaN for short input")
	}
	if h, p := MACD(short, 12, 26, 9); !math.IsNaN(h) || !math.IsNaN(p) {
		t.Error("MACD should be NaN for short input")
	}
	if !math.IsNaN(ATR(short, short, short, 14)) {
		t.Error("ATR should be NaN for short input")
	}
}

func TestRSIAllGainsIsExactly100(t *testing.T) {
	closes := ramp(40, 100, 0.5)
	if got := RSI(closes, 14); got != 100 {
		t.Fatalf("RSI of strictly rising series = %v, want 100", got)
	}
}

func TestRSIAllLossesIsZero(t *testing.T) {
	closes := ramp(40, 100, -0.5)
	if got := RSI(closes, 14); got != 0 {
		t.Fatalf("RSI of strictly falling series = %v, want 0", got)
	}
}

func TestRSIFlatIsNeutral(t *testing.T) {
	closes := ramp(20, 50, 0)
	if got := RSI(closes, 14); got != 50 {
		t.Fatalf("RSI of flat series = %v, want 50", got)
	}
}

func TestRSIBounded(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/3)
	}
	for n := 15; n <= len(closes); n++ {
		got := RSI(closes[:n], 14)
		if got < 0 || got > 100 {
			t.Fatalf("RSI out of range at n=%d: %v", n, got)
		}
	}
}

func TestBollingerUsesSampleStdDev(t *testing.T) {
	vals := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	mid, up, low := Bollinger(vals, 8, 2)
	if mid != 5 {
		t.Fatalf("mid = %v, want 5", mid)
	}
	sd := math.Sqrt(32.0 / 7.0)
	if math.Abs(up-(5+2*sd)) > 1e-9 || math.Abs(low-(5-2*sd)) > 1e-9 {
		t.Fatalf("bands = %v/%v, want +-%v", up, low, 2*sd)
	}
}

func TestATRConstantRange(t *testing.T) {
	n := 20
	highs, lows, closes := make([]float64, n), make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i], lows[i], closes[i] = 102, 98, 100
	}
	if got := ATR(highs, lows, closes, 14); got != 4 {
		t.Fatalf("ATR = %v, want 4", got)
	}
}

func TestMACDFlatSeriesIsZero(t *testing.T) {
	closes := ramp(40, 100, 0)
	h, p := MACD(closes, 12, 26, 9)
	if h != 0 || p != 0 {
		t.Fatalf("MACD of flat series = %v/%v, want 0/0", h, p)
	}
}

func TestMACDPrevNeedsOneMoreBar(t *testing.T) {
	closes := ramp(34, 100, 1)
	h, p := MACD(closes, 12, 26, 9)
	if math.IsNaN(h) {
		t.Fatal("hist should be available with 34 closes")
	}
	if !math.IsNaN(p) {
		t.Fatal("prev hist should need 35 closes")
	}
}
