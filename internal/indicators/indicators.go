// Package indicators turns a price series into the snapshot, trend label and
// qualitative signals the rest of the pipeline reasons about.
package indicators

import (
	"math"

	"ai-grid-trader/internal/ta"
	"ai-grid-trader/internal/types"
)

const (
	rsiPeriod  = 14
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
	bbWindow   = 20
	bbStdDev   = 2.0
	atrPeriod  = 14
	maShort    = 20
	maLong     = 60

	// ATR multiple subtracted from price for the suggested grid buy level.
	gridBuyATRMult = 0.8
)

// Compute derives the indicator snapshot. Fields whose window exceeds the
// available history come back not Ready.
func Compute(series []types.Candle) types.IndicatorSnapshot {
	closes := make([]float64, len(series))
	highs := make([]float64, len(series))
	lows := make([]float64, len(series))
	for i, c := range series {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	var snap types.IndicatorSnapshot
	if len(series) > 0 {
		snap.Price = closes[len(closes)-1]
	}

	snap.RSI = types.Ready(ta.RSI(closes, rsiPeriod))

	hist, prev := ta.MACD(closes, macdFast, macdSlow, macdSignal)
	snap.MACDHist = types.Ready(hist)
	snap.MACDHistPrev = types.Ready(prev)

	mid, up, low := ta.Bollinger(closes, bbWindow, bbStdDev)
	snap.BBMid = types.Ready(mid)
	snap.BBUpper = types.Ready(up)
	snap.BBLower = types.Ready(low)

	snap.MA20 = types.Ready(ta.SMA(closes, maShort))
	snap.MA60 = types.Ready(ta.SMA(closes, maLong))
	snap.ATR = types.Ready(ta.ATR(highs, lows, closes, atrPeriod))

	return snap
}

// Describe renders the snapshot as band position, momentum and RSI heat labels.
func Describe(snap types.IndicatorSnapshot) types.Signals {
	sig := types.Signals{BandPosition: types.Unavailable, Momentum: types.Unavailable, Heat: types.Unavailable}

	if snap.BBUpper.Ready && snap.BBLower.Ready && snap.Price > 0 {
		width := snap.BBUpper.Value - snap.BBLower.Value
		switch {
		case width <= 0:
			sig.BandPosition = "mid band"
		case snap.Price >= snap.BBUpper.Value-0.1*width:
			sig.BandPosition = "near upper band"
		case snap.Price <= snap.BBLower.Value+0.1*width:
			sig.BandPosition = "near lower band"
		default:
			sig.BandPosition = "mid band"
		}
	}

	if snap.MACDHist.Ready && snap.MACDHistPrev.Ready {
		cur, prev := math.Abs(snap.MACDHist.Value), math.Abs(snap.MACDHistPrev.Value)
		switch {
		case cur > prev:
			sig.Momentum = "expanding"
		case cur < prev:
			sig.Momentum = "converging"
		default:
			sig.Momentum = "flat"
		}
	}

	if snap.RSI.Ready {
		switch {
		case snap.RSI.Value > 70:
			sig.Heat = "overbought"
		case snap.RSI.Value < 30:
			sig.Heat = "oversold"
		default:
			sig.Heat = "neutral"
		}
	}
	return sig
}

// GridBuyPrice is the ATR-adjusted level a human would place the next grid
// buy at: the lower of price-0.8*ATR and the lower Bollinger band.
func GridBuyPrice(snap types.IndicatorSnapshot) types.Indicator {
	if !snap.ATR.Ready || !snap.BBLower.Ready || snap.Price <= 0 {
		return types.Indicator{}
	}
	return types.Ready(math.Min(snap.Price-gridBuyATRMult*snap.ATR.Value, snap.BBLower.Value))
}
