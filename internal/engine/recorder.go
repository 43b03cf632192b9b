package engine

import (
	"context"

	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/logger"
	"ai-grid-trader/internal/types"
)

// eventRecorder fans audit records out to every configured sink. A failing
// sink is logged and does not affect the others or the step.
type eventRecorder struct {
	sinks []interfaces.DecisionSink
}

func newEventRecorder(sinks []interfaces.DecisionSink) *eventRecorder {
	return &eventRecorder{sinks: sinks}
}

func (r *eventRecorder) record(ctx context.Context, rec types.DecisionRecord, events []types.GridEvent) {
	for _, s := range r.sinks {
		if err := s.RecordDecision(ctx, rec); err != nil {
			logger.ErrorWithErr(ctx, "Failed to record decision", err, "symbol", rec.Symbol, "cycle_id", rec.CycleID)
		}
		for _, ev := range events {
			if ev.Kind == types.GridSkip {
				continue
			}
			if err := s.RecordGridEvent(ctx, rec.CycleID, ev); err != nil {
				logger.ErrorWithErr(ctx, "Failed to record grid event", err, "symbol", ev.Symbol, "rung", ev.Rung)
			}
		}
	}
}
