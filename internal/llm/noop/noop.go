package noop

import (
	"context"

	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/logger"
	"ai-grid-trader/internal/types"
)

// Advisor is the fallback used when no provider is configured. It always
// answers with the neutral degraded hold.
type Advisor struct{}

var _ interfaces.Advisor = (*Advisor)(nil)

func New() *Advisor {
	return &Advisor{}
}

func (a *Advisor) Advise(ctx context.Context, req types.AdviceRequest) types.Advice {
	logger.Debug(ctx, "Noop advisor called - always returns hold", "symbol", req.Symbol)
	return types.Advice{
		Decision: types.NeutralDecision("advisor disabled"),
		Outcome:  types.OutcomeDegraded,
	}
}
