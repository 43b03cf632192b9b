package engine

import (
	"ai-grid-trader/internal/grid"
	"ai-grid-trader/internal/metrics"
	"ai-grid-trader/internal/types"
)

// publishPosition exports the ledger outcome as metrics.
func publishPosition(symbol string, out grid.Outcome) {
	for _, ev := range out.Events {
		metrics.GridEvents.WithLabelValues(symbol, string(ev.Kind)).Inc()
	}
	shares := 0
	if out.Position != nil {
		shares = out.Position.TotalShares
	}
	metrics.PositionShares.WithLabelValues(symbol).Set(float64(shares))
}

// filledRungs counts the rungs currently holding shares.
func filledRungs(p *types.GridPosition) int {
	if p == nil {
		return 0
	}
	n := 0
	for _, lvl := range p.Levels {
		if lvl.Filled {
			n++
		}
	}
	return n
}
