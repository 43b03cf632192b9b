package grid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ai-grid-trader/internal/logger"
	"ai-grid-trader/internal/types"
)

type Config struct {
	Capital       float64 // default per-symbol capital cap
	Levels        int
	GapPct        float64 // fraction, 0.03 = 3%
	TakeProfitPct float64 // fraction
}

func (c Config) Validate() error {
	switch {
	case c.Capital <= 0:
		return errors.New("grid capital must be positive")
	case c.Levels <= 0:
		return errors.New("grid levels must be positive")
	case c.GapPct <= 0 || c.GapPct*float64(c.Levels) >= 1:
		return fmt.Errorf("grid gap %.4f x %d levels must stay within (0,1)", c.GapPct, c.Levels)
	case c.TakeProfitPct <= 0:
		return errors.New("grid take-profit must be positive")
	}
	return nil
}

// PersistenceError reports a ledger mutation that could not be saved. The
// in-memory position has been rolled back when this is returned.
type PersistenceError struct {
	Symbol   string
	Attempts int
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist ledger for %s after %d attempts: %v", e.Symbol, e.Attempts, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Outcome is the result of one Apply.
type Outcome struct {
	Events   []types.GridEvent
	Position *types.GridPosition
	Changed  bool
}

// Ledger owns every symbol's position. Apply is serialised by a mutex, but
// the backing store still assumes one process.
type Ledger struct {
	mu        sync.Mutex
	cfg       Config
	store     Store
	positions map[string]*types.GridPosition
	capital   map[string]float64

	saveAttempts int
	saveDelay    time.Duration
}

type Option func(*Ledger)

// WithSaveRetry sets how often and how far apart a failed save is retried.
func WithSaveRetry(attempts int, delay time.Duration) Option {
	return func(l *Ledger) {
		if attempts > 0 {
			l.saveAttempts = attempts
		}
		l.saveDelay = delay
	}
}

// WithSymbolCapital overrides the capital cap for individual symbols.
func WithSymbolCapital(caps map[string]float64) Option {
	return func(l *Ledger) {
		for sym, c := range caps {
			if c > 0 {
				l.capital[sym] = c
			}
		}
	}
}

// Open loads the ledger from store.
func Open(ctx context.Context, cfg Config, store Store, opts ...Option) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	positions, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	for sym, p := range positions {
		if err := CheckInvariants(p); err != nil {
			return nil, fmt.Errorf("ledger for %s: %w", sym, err)
		}
	}
	l := &Ledger{
		cfg:          cfg,
		store:        store,
		positions:    positions,
		capital:      make(map[string]float64),
		saveAttempts: 3,
		saveDelay:    200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	logger.Info(ctx, "Grid ledger loaded", "symbols", len(positions))
	return l, nil
}

func (l *Ledger) Config() Config { return l.cfg }

// Capital is the capital cap of symbol.
func (l *Ledger) Capital(symbol string) float64 {
	if c, ok := l.capital[symbol]; ok {
		return c
	}
	return l.cfg.Capital
}

// Position returns a copy of the symbol's position, or nil.
func (l *Ledger) Position(symbol string) *types.GridPosition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.positions[symbol].Clone()
}

// Positions returns copies of all positions.
func (l *Ledger) Positions() map[string]*types.GridPosition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

func (l *Ledger) snapshot() map[string]*types.GridPosition {
	out := make(map[string]*types.GridPosition, len(l.positions))
	for k, p := range l.positions {
		out[k] = p.Clone()
	}
	return out
}

// Trigger is the buy price of rung i (0-based) relative to ref.
func (l *Ledger) Trigger(ref float64, i int) float64 {
	return trigger(ref, l.cfg.GapPct, i).InexactFloat64()
}

func trigger(ref, gap float64, i int) decimal.Decimal {
	step := decimal.NewFromFloat(gap).Mul(decimal.NewFromInt(int64(i + 1)))
	return decimal.NewFromFloat(ref).Mul(decimal.NewFromInt(1).Sub(step))
}

// Rungs lists all configured rungs of symbol, empty ones carrying the
// trigger derived from the current reference price.
func (l *Ledger) Rungs(symbol string) []types.GridLevel {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.positions[symbol]
	var levels map[int]types.GridLevel
	if p != nil {
		levels = p.Levels
	}
	n := l.cfg.Levels
	for i := range levels {
		if i >= n {
			n = i + 1
		}
	}
	out := make([]types.GridLevel, 0, n)
	for i := 0; i < n; i++ {
		if lvl, ok := levels[i]; ok && lvl.Filled {
			out = append(out, lvl)
			continue
		}
		lvl := types.GridLevel{Index: i}
		if p != nil && p.RefPrice > 0 && i < l.cfg.Levels {
			lvl.TriggerPrice = l.Trigger(p.RefPrice, i)
		}
		out = append(out, lvl)
	}
	return out
}

// Apply runs one cycle of the rung state machine for symbol.
//
// Filled rungs are released first when price reached fill*(1+tp). Empty rungs
// fill when price is at or below their trigger, the advice is buy and the
// gate allowed it. Triggers come from the previous cycle's price, so the very
// first observation of a symbol only seeds the reference. A rung moves at
// most once per call. Any change is persisted before Apply returns; if that
// fails the position is rolled back and a *PersistenceError is returned.
func (l *Ledger) Apply(ctx context.Context, symbol string, price float64, decision types.AIDecision, verdict types.RiskVerdict) (Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return Outcome{Position: l.positions[symbol].Clone()}, nil
	}

	prev, existed := l.positions[symbol]
	pos := prev.Clone()
	if pos == nil {
		pos = &types.GridPosition{Symbol: symbol, Levels: make(map[int]types.GridLevel)}
	}

	px := decimal.NewFromFloat(price)
	moved := make(map[int]bool)
	var events []types.GridEvent

	for _, i := range sortedIndexes(pos.Levels) {
		lvl := pos.Levels[i]
		if !lvl.Filled {
			continue
		}
		fill := decimal.NewFromFloat(lvl.FillPrice)
		target := fill.Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(l.cfg.TakeProfitPct)))
		if px.LessThan(target) {
			continue
		}
		shares := decimal.NewFromInt(int64(lvl.Shares))
		cost := fill.Mul(shares)
		realized := px.Sub(fill).Mul(shares)

		pos.TotalShares -= lvl.Shares
		pos.TotalCost = decimal.NewFromFloat(pos.TotalCost).Sub(cost).Round(4).InexactFloat64()
		if pos.TotalShares == 0 {
			pos.TotalCost = 0
		}
		delete(pos.Levels, i)
		moved[i] = true
		events = append(events, types.GridEvent{
			Kind:      types.GridRelease,
			Symbol:    symbol,
			Rung:      i + 1,
			Shares:    lvl.Shares,
			Price:     price,
			FillPrice: lvl.FillPrice,
			Realized:  realized.Round(2).InexactFloat64(),
		})
	}

	if pos.RefPrice > 0 {
		alloc := decimal.NewFromFloat(l.Capital(symbol)).Div(decimal.NewFromInt(int64(l.cfg.Levels)))
		for i := 0; i < l.cfg.Levels; i++ {
			if moved[i] {
				continue
			}
			if lvl, ok := pos.Levels[i]; ok && lvl.Filled {
				continue
			}
			trig := trigger(pos.RefPrice, l.cfg.GapPct, i)
			if px.GreaterThan(trig) {
				continue
			}

			ev := types.GridEvent{Kind: types.GridSkip, Symbol: symbol, Rung: i + 1, Price: price}
			switch {
			case !verdict.Allowed:
				ev.Note = "risk gate: " + verdict.Reason
			case decision.Decision != types.VerdictBuy:
				ev.Note = "advisor: " + string(decision.Decision)
			default:
				shares := alloc.Div(px).Floor().IntPart()
				if shares <= 0 {
					ev.Note = "allocation below one share"
					break
				}
				pos.TotalShares += int(shares)
				pos.TotalCost = decimal.NewFromFloat(pos.TotalCost).Add(px.Mul(decimal.NewFromInt(shares))).Round(4).InexactFloat64()
				pos.Levels[i] = types.GridLevel{
					Index:        i,
					TriggerPrice: trig.InexactFloat64(),
					Filled:       true,
					Shares:       int(shares),
					FillPrice:    price,
				}
				moved[i] = true
				ev = types.GridEvent{Kind: types.GridFill, Symbol: symbol, Rung: i + 1, Shares: int(shares), Price: price, FillPrice: price}
			}
			events = append(events, ev)
		}
	}

	changed := len(moved) > 0 || pos.RefPrice != price
	pos.RefPrice = price
	if !changed {
		return Outcome{Events: events, Position: pos.Clone()}, nil
	}

	l.positions[symbol] = pos
	if err := l.persist(ctx); err != nil {
		if existed {
			l.positions[symbol] = prev
		} else {
			delete(l.positions, symbol)
		}
		perr := &PersistenceError{Symbol: symbol, Attempts: l.saveAttempts, Err: err}
		logger.ErrorWithErr(ctx, "Grid ledger save failed, position rolled back", perr, "symbol", symbol)
		return Outcome{Events: events, Position: prev.Clone()}, perr
	}

	for _, ev := range events {
		if ev.Kind != types.GridSkip {
			logger.Grid(ctx, symbol, string(ev.Kind), ev.Rung, ev.Shares, ev.Price, "realized", ev.Realized)
		}
	}
	return Outcome{Events: events, Position: pos.Clone(), Changed: len(moved) > 0}, nil
}

func (l *Ledger) persist(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= l.saveAttempts; attempt++ {
		if err = l.store.Save(ctx, l.snapshot()); err == nil {
			return nil
		}
		logger.Warn(ctx, "Grid ledger save failed", "attempt", attempt, "max_attempts", l.saveAttempts, "error", err)
		if attempt == l.saveAttempts || l.saveDelay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(l.saveDelay * time.Duration(attempt)):
		}
	}
	return err
}

// CheckInvariants verifies that totals match the filled rungs.
func CheckInvariants(p *types.GridPosition) error {
	if p == nil {
		return nil
	}
	shares := 0
	cost := decimal.Zero
	for i, lvl := range p.Levels {
		if lvl.Index != i {
			return fmt.Errorf("rung %d stored under index %d", lvl.Index, i)
		}
		if !lvl.Filled {
			continue
		}
		if lvl.Shares <= 0 {
			return fmt.Errorf("rung %d filled with %d shares", i, lvl.Shares)
		}
		shares += lvl.Shares
		cost = cost.Add(decimal.NewFromFloat(lvl.FillPrice).Mul(decimal.NewFromInt(int64(lvl.Shares))))
	}
	if shares != p.TotalShares {
		return fmt.Errorf("total shares %d but rungs hold %d", p.TotalShares, shares)
	}
	if math.Abs(cost.InexactFloat64()-p.TotalCost) > 0.01 {
		return fmt.Errorf("total cost %.4f but rungs cost %s", p.TotalCost, cost.StringFixed(4))
	}
	return nil
}

func sortedIndexes(levels map[int]types.GridLevel) []int {
	idx := make([]int, 0, len(levels))
	for i := range levels {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}
