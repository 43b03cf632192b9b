package tradelog

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/types"
)

// Zone is the fixed UTC+8 zone every log timestamp and file date uses.
var Zone = time.FixedZone("UTC+8", 8*3600)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// TradeEntry is one ledger fill or release in the daily trade log.
type TradeEntry struct {
	Time      string  `json:"time"`
	CycleID   string  `json:"cycle_id"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Rung      int     `json:"rung"`
	Qty       int     `json:"qty"`
	Price     float64 `json:"price"`
	FillPrice float64 `json:"fill_price,omitempty"`
	Realized  float64 `json:"realized,omitempty"`
}

// Journal appends JSONL records under dir:
// decisions/<date>.jsonl holds one record per symbol per cycle,
// trades/<date>.jsonl holds fills and releases.
type Journal struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

var _ interfaces.DecisionSink = (*Journal)(nil)

func NewJournal(dir string) *Journal {
	if dir == "" {
		dir = "logs"
	}
	return &Journal{dir: dir, now: time.Now}
}

// WithClock replaces the journal's clock.
func (j *Journal) WithClock(now func() time.Time) *Journal {
	j.now = now
	return j
}

func (j *Journal) Dir() string { return j.dir }

func (j *Journal) DecisionsPath(t time.Time) string {
	return filepath.Join(j.dir, "decisions", t.In(Zone).Format("2006-01-02")+".jsonl")
}

func (j *Journal) TradesPath(t time.Time) string {
	return filepath.Join(j.dir, "trades", t.In(Zone).Format("2006-01-02")+".jsonl")
}

// Now is the journal clock in UTC+8.
func (j *Journal) Now() time.Time { return j.now().In(Zone) }

func (j *Journal) RecordDecision(ctx context.Context, rec types.DecisionRecord) error {
	now := j.Now()
	if rec.Time == "" {
		rec.Time = now.Format(time.RFC3339)
	}
	return j.appendLine(j.DecisionsPath(now), rec)
}

// RecordGridEvent logs fills and releases. Skips are not trades and are dropped.
func (j *Journal) RecordGridEvent(ctx context.Context, cycleID string, ev types.GridEvent) error {
	var side string
	switch ev.Kind {
	case types.GridFill:
		side = SideBuy
	case types.GridRelease:
		side = SideSell
	default:
		return nil
	}
	now := j.Now()
	return j.appendLine(j.TradesPath(now), TradeEntry{
		Time:      now.Format(time.RFC3339),
		CycleID:   cycleID,
		Symbol:    ev.Symbol,
		Side:      side,
		Rung:      ev.Rung,
		Qty:       ev.Shares,
		Price:     ev.Price,
		FillPrice: ev.FillPrice,
		Realized:  ev.Realized,
	})
}

func (j *Journal) appendLine(p string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode log record: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips log files last modified more than retentionDays ago.
func (j *Journal) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := j.now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(j.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(p, ".jsonl") {
			return nil
		}
		info, er := d.Info()
		if er != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		// if already gz exists, remove original
		if _, e2 := os.Stat(gz); e2 == nil {
			_ = os.Remove(p)
			return nil
		}
		if err := gzipFile(p, gz); err == nil {
			_ = os.Remove(p)
		}
		return nil
	})
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
