package engineobs

import (
	"context"
	"time"

	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/logger"
	"ai-grid-trader/internal/trace"
	"ai-grid-trader/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

func (oe *observableEngine) Step(ctx context.Context, symbol string) (*types.StepResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Step")
	defer span.End()

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Starting decision step",
		"symbol", symbol,
	)

	result, err := oe.engine.Step(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Decision step failed", err,
			"symbol", symbol,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return result, err
	}

	logger.InfoSkip(ctx, 1, "Decision step completed",
		"symbol", symbol,
		"price", result.Price,
		"trend", result.Trend,
		"decision", result.Advice.Decision.Decision,
		"confidence", result.Advice.Decision.Confidence,
		"gate", result.Verdict.Reason,
		"events", len(result.Events),
		"degraded", len(result.Degraded),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}
