package grid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"ai-grid-trader/internal/types"
)

// Store persists the whole multi-symbol ledger. Implementations assume a
// single writer process.
type Store interface {
	Load(ctx context.Context) (map[string]*types.GridPosition, error)
	Save(ctx context.Context, positions map[string]*types.GridPosition) error
}

// rungDoc and positionDoc are the on-disk shape:
// {symbol: {shares, cost, ref_price, grid: {"i": {price, qty, trigger}}}}
type rungDoc struct {
	Price   float64 `json:"price"`
	Qty     int     `json:"qty"`
	Trigger float64 `json:"trigger,omitempty"`
}

type positionDoc struct {
	Shares   int                `json:"shares"`
	Cost     float64            `json:"cost"`
	RefPrice float64            `json:"ref_price,omitempty"`
	Grid     map[string]rungDoc `json:"grid"`
}

// FileStore keeps the ledger in one JSON file, replaced atomically on save.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// Load returns an empty ledger when the file does not exist yet.
func (s *FileStore) Load(ctx context.Context) (map[string]*types.GridPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]*types.GridPosition{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", s.path, err)
	}
	return decodeLedger(b)
}

func (s *FileStore) Save(ctx context.Context, positions map[string]*types.GridPosition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := encodeLedger(positions)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

func encodeLedger(positions map[string]*types.GridPosition) ([]byte, error) {
	doc := make(map[string]positionDoc, len(positions))
	for sym, p := range positions {
		if p == nil {
			continue
		}
		pd := positionDoc{
			Shares:   p.TotalShares,
			Cost:     p.TotalCost,
			RefPrice: p.RefPrice,
			Grid:     make(map[string]rungDoc, len(p.Levels)),
		}
		for i, lvl := range p.Levels {
			if !lvl.Filled {
				continue
			}
			pd.Grid[strconv.Itoa(i)] = rungDoc{Price: lvl.FillPrice, Qty: lvl.Shares, Trigger: lvl.TriggerPrice}
		}
		doc[sym] = pd
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode ledger: %w", err)
	}
	return b, nil
}

func decodeLedger(b []byte) (map[string]*types.GridPosition, error) {
	var doc map[string]positionDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	out := make(map[string]*types.GridPosition, len(doc))
	for sym, pd := range doc {
		p := &types.GridPosition{
			Symbol:      sym,
			TotalShares: pd.Shares,
			TotalCost:   pd.Cost,
			RefPrice:    pd.RefPrice,
			Levels:      make(map[int]types.GridLevel, len(pd.Grid)),
		}
		for k, r := range pd.Grid {
			i, err := strconv.Atoi(k)
			if err != nil || i < 0 {
				return nil, fmt.Errorf("decode ledger: %s has invalid rung index %q", sym, k)
			}
			p.Levels[i] = types.GridLevel{
				Index:        i,
				TriggerPrice: r.Trigger,
				Filled:       true,
				Shares:       r.Qty,
				FillPrice:    r.Price,
			}
		}
		out[sym] = p
	}
	return out, nil
}
