package interfaces

import (
	"context"

	"ai-grid-trader/internal/types"
)

// DecisionSink receives one audit record per symbol per cycle.
type DecisionSink interface {
	RecordDecision(ctx context.Context, rec types.DecisionRecord) error
	RecordGridEvent(ctx context.Context, cycleID string, ev types.GridEvent) error
}

// Notifier delivers a composed text report.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}
