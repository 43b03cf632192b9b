package interfaces

import (
	"context"

	"ai-grid-trader/internal/types"
)

// Advisor returns a qualitative decision for one symbol. It never fails:
// provider problems come back as a degraded Advice.
type Advisor interface {
	Advise(ctx context.Context, req types.AdviceRequest) types.Advice
}

// Completer sends one prompt to one model of an inference provider.
type Completer interface {
	Name() string
	Complete(ctx context.Context, req types.CompletionRequest) (string, error)
}
