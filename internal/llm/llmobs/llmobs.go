package llmobs

import (
	"context"
	"strconv"
	"time"

	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/llm"
	"ai-grid-trader/internal/logger"
	"ai-grid-trader/internal/metrics"
	"ai-grid-trader/internal/trace"
	"ai-grid-trader/internal/types"
)

// observableAdvisor wraps an Advisor with observability (logging, tracing & metrics)
type observableAdvisor struct {
	advisor interfaces.Advisor
}

// Compile-time interface check
var _ interfaces.Advisor = (*observableAdvisor)(nil)

// Wrap wraps an advisor with observability middleware
func Wrap(advisor interfaces.Advisor) interfaces.Advisor {
	return &observableAdvisor{
		advisor: advisor,
	}
}

// Advise requests an advisory decision with observability
func (oa *observableAdvisor) Advise(ctx context.Context, req types.AdviceRequest) types.Advice {
	ctx, span := trace.StartSpan(ctx, "llm.Advise")
	defer span.End()

	strategy := llm.NormalizeStrategy(req.Strategy)

	// Use DebugSkip(1) to report the actual caller, not this middleware wrapper
	logger.DebugSkip(ctx, 1, "Requesting advisory decision",
		"symbol", req.Symbol,
		"strategy", strategy,
		"price", req.Snapshot.Price,
		"trend", req.Trend,
	)

	start := time.Now()
	adv := oa.advisor.Advise(ctx, req)
	if !adv.Cached {
		metrics.AdviceLatency.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
	}
	metrics.AdviceTotal.WithLabelValues(strategy, string(adv.Outcome), strconv.FormatBool(adv.Cached)).Inc()

	if adv.Outcome == types.OutcomeDegraded {
		logger.WarnSkip(ctx, 1, "Advisory decision degraded",
			"symbol", req.Symbol,
			"reason", adv.Decision.Reason,
		)
	}

	logger.Decision(ctx, req.Symbol, string(adv.Decision.Decision), adv.Decision.Confidence, adv.Decision.Degraded, adv.Decision.Reason,
		"outcome", adv.Outcome,
		"cached", adv.Cached,
		"model", adv.Decision.Model,
	)

	return adv
}
