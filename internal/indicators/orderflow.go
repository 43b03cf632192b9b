package indicators

import "ai-grid-trader/internal/types"

const (
	flowLookback    = 20
	flowVolumeSpike = 2.0
	flowMovePct     = 0.02
)

// OrderFlow reads the last bar against the prior 20 bars' average volume.
// A volume spike with a close 2% below the open is heavy selling and carries
// the sell-pressure tag; the mirror image is strong buying.
func OrderFlow(series []types.Candle) (string, []types.RiskTag) {
	if len(series) < flowLookback+1 {
		return types.Unavailable, nil
	}
	last := series[len(series)-1]
	sum := 0.0
	for _, c := range series[len(series)-1-flowLookback : len(series)-1] {
		sum += c.Vol
	}
	avg := sum / flowLookback
	if avg <= 0 || last.Open <= 0 {
		return "stable", nil
	}

	spike := last.Vol > flowVolumeSpike*avg
	move := (last.Close - last.Open) / last.Open
	switch {
	case spike && move <= -flowMovePct:
		return "heavy selling", []types.RiskTag{types.RiskSellPressure}
	case spike && move >= flowMovePct:
		return "strong buying", nil
	default:
		return "stable", nil
	}
}
