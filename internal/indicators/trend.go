package indicators

import "ai-grid-trader/internal/types"

// Classify maps (price, ma20, ma60, bb_lower) to a trend label. Rules are
// checked in order and anything unmatched, including NaN input, is range.
func Classify(price, ma20, ma60, bbLower float64) types.TrendLabel {
	switch {
	case price > ma20 && ma20 > ma60:
		return types.TrendBull
	case ma20 > price && price > ma60:
		return types.TrendBullPullback
	case price < ma20 && ma20 < ma60 && price < bbLower:
		return types.TrendBearExtreme
	case price < ma20 && ma20 < ma60:
		return types.TrendBear
	default:
		return types.TrendRange
	}
}

// ClassifySnapshot classifies a snapshot. Missing moving averages give range;
// a missing lower band only rules out bear_extreme.
func ClassifySnapshot(snap types.IndicatorSnapshot) types.TrendLabel {
	if snap.Price <= 0 || !snap.MA20.Ready || !snap.MA60.Ready {
		return types.TrendRange
	}
	lower := snap.BBLower.Value
	if !snap.BBLower.Ready {
		lower = snap.Price
	}
	return Classify(snap.Price, snap.MA20.Value, snap.MA60.Value, lower)
}
