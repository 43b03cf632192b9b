package interfaces

import (
	"context"

	"ai-grid-trader/internal/types"
)

type Engine interface {
	Step(ctx context.Context, symbol string) (*types.StepResult, error)
}
