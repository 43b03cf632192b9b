package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/logger"
	"ai-grid-trader/internal/metrics"
	"ai-grid-trader/internal/types"
)

// ErrCycleInProgress is returned when a cycle is requested while the
// previous one is still running.
var ErrCycleInProgress = errors.New("cycle already in progress")

// Runner drives Engine.Step over every symbol, one at a time.
type Runner struct {
	eng     interfaces.Engine
	symbols []string
	delay   time.Duration
	running atomic.Bool
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

func NewRunner(eng interfaces.Engine, symbols []string, delay time.Duration) *Runner {
	return &Runner{
		eng:     eng,
		symbols: symbols,
		delay:   delay,
		sleep:   sleepCtx,
		now:     time.Now,
	}
}

// Symbols returns the symbols a cycle walks, in order.
func (r *Runner) Symbols() []string {
	return append([]string(nil), r.symbols...)
}

// RunCycle processes all symbols sequentially with the configured pause
// between them. A failing or panicking symbol is recorded and the loop moves
// on. Overlapping calls return ErrCycleInProgress.
func (r *Runner) RunCycle(ctx context.Context) (*types.CycleResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		metrics.CyclesSkipped.Inc()
		logger.Warn(ctx, "Skipping cycle, previous cycle still running")
		return nil, ErrCycleInProgress
	}
	defer r.running.Store(false)

	started := r.now()
	cycle := &types.CycleResult{ID: uuid.NewString(), Started: started.Unix()}
	ctx = WithCycleID(ctx, cycle.ID)
	op := logger.StartOperation(ctx, "decision_cycle", "cycle_id", cycle.ID, "symbols", len(r.symbols))
	ctx = op.GetContext()

	for i, symbol := range r.symbols {
		if i > 0 && r.delay > 0 {
			if err := r.sleep(ctx, r.delay); err != nil {
				op.EndWithError(err, "completed", len(cycle.Results))
				return cycle, err
			}
		}
		res := r.step(ctx, symbol)
		cycle.Results = append(cycle.Results, res)
		if err := ctx.Err(); err != nil {
			op.EndWithError(err, "completed", len(cycle.Results))
			return cycle, err
		}
	}

	elapsed := r.now().Sub(started)
	cycle.Duration = elapsed.Seconds()
	metrics.CycleDuration.Observe(elapsed.Seconds())
	op.End("completed", len(cycle.Results))
	return cycle, nil
}

func (r *Runner) step(ctx context.Context, symbol string) (res *types.StepResult) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error(ctx, "Step panicked", "symbol", symbol, "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
			res = &types.StepResult{
				CycleID:  CycleID(ctx),
				Symbol:   symbol,
				Time:     r.now().Unix(),
				Err:      fmt.Sprintf("panic: %v", p),
				Degraded: []string{"step aborted"},
			}
		}
	}()

	res, err := r.eng.Step(ctx, symbol)
	if res == nil {
		res = &types.StepResult{CycleID: CycleID(ctx), Symbol: symbol, Time: r.now().Unix()}
	}
	if err != nil && res.Err == "" {
		res.Err = err.Error()
	}
	logger.Debug(ctx, "Symbol processed", "symbol", symbol, "filled_rungs", filledRungs(res.Position), "events", len(res.Events))
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
