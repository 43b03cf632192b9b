package engine

import (
	"fmt"
	"math"

	"ai-grid-trader/internal/indicators"
	"ai-grid-trader/internal/marketdata"
	"ai-grid-trader/internal/types"
)

const monthBars = 22

// technicalContext derives the candle-based context fields the advisor
// prompt expects, plus any risk tags the order-flow reading raises.
func technicalContext(series []types.Candle) (map[string]string, []types.RiskTag) {
	fields := map[string]string{
		"month_low":      types.Unavailable,
		"k_line":         types.Unavailable,
		"order_strength": types.Unavailable,
	}
	if len(series) == 0 {
		return fields, nil
	}

	if low, ok := monthLow(series); ok {
		last := series[len(series)-1].Close
		fields["month_low"] = fmt.Sprintf("%.2f (price %+.1f%% above)", low, (last-low)/low*100)
	}
	fields["k_line"] = describeBar(series)

	flow, tags := indicators.OrderFlow(series)
	fields["order_strength"] = flow
	return fields, tags
}

func monthLow(series []types.Candle) (float64, bool) {
	start := max(0, len(series)-monthBars)
	low := math.Inf(1)
	for _, c := range series[start:] {
		if c.Low > 0 && c.Low < low {
			low = c.Low
		}
	}
	return low, !math.IsInf(low, 1)
}

func describeBar(series []types.Candle) string {
	last := series[len(series)-1]
	if last.Open <= 0 {
		return types.Unavailable
	}
	body := "doji"
	switch move := (last.Close - last.Open) / last.Open; {
	case move >= 0.005:
		body = "bullish candle"
	case move <= -0.005:
		body = "bearish candle"
	}
	out := fmt.Sprintf("%s, close %.2f", body, last.Close)

	if len(series) > 5 {
		sum := 0.0
		for _, c := range series[len(series)-6 : len(series)-1] {
			sum += c.Vol
		}
		if avg := sum / 5; avg > 0 {
			out += fmt.Sprintf(", volume %.1fx 5-bar average", last.Vol/avg)
		}
	}
	return out
}

// mergeContext overlays technical fields on provider fields. Provider values
// win unless they are unavailable.
func mergeContext(provider, technical map[string]string) map[string]string {
	out := make(map[string]string, len(provider)+len(technical))
	for k, v := range technical {
		out[k] = v
	}
	for k, v := range provider {
		if k == marketdata.KeyRiskTags {
			continue
		}
		if prev, ok := out[k]; ok && v == types.Unavailable && prev != types.Unavailable {
			continue
		}
		out[k] = v
	}
	return out
}
