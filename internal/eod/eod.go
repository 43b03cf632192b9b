package eod

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/tradelog"
)

// Summarizer turns a day's trade log into a per-symbol CSV once the market
// has closed.
type Summarizer struct {
	journal *tradelog.Journal
	closeH  int
	closeM  int
	now     func() time.Time
}

var _ interfaces.EodSummarizer = (*Summarizer)(nil)

// New creates a summarizer reading journal's trade files. closeAt is "HH:MM"
// in UTC+8; an empty or malformed value means 13:40.
func New(journal *tradelog.Journal, closeAt string) *Summarizer {
	h, m := 13, 40
	if t, err := time.Parse("15:04", closeAt); err == nil {
		h, m = t.Hour(), t.Minute()
	}
	return &Summarizer{journal: journal, closeH: h, closeM: m, now: time.Now}
}

func (s *Summarizer) WithClock(now func() time.Time) *Summarizer {
	s.now = now
	return s
}

func (s *Summarizer) localNow() time.Time { return s.now().In(tradelog.Zone) }

func (s *Summarizer) csvPath(t time.Time) string {
	return filepath.Join(s.journal.Dir(), "eod", t.In(tradelog.Zone).Format("2006-01-02")+".csv")
}

func (s *Summarizer) marketCloseTime(t time.Time) time.Time {
	t = t.In(tradelog.Zone)
	return time.Date(t.Year(), t.Month(), t.Day(), s.closeH, s.closeM, 0, 0, tradelog.Zone)
}

// SummarizeDay returns "" with no error when the day had no fills or releases.
func (s *Summarizer) SummarizeDay(t time.Time) (string, error) {
	inPath := s.journal.TradesPath(t)
	f, err := os.Open(inPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	aggs := map[string]*aggRow{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var tl tradelog.TradeEntry
		if err := json.Unmarshal(sc.Bytes(), &tl); err != nil {
			continue
		}
		row := aggs[tl.Symbol]
		if row == nil {
			row = &aggRow{Symbol: tl.Symbol}
			aggs[tl.Symbol] = row
		}
		switch tl.Side {
		case tradelog.SideBuy:
			row.BuyQty += tl.Qty
			row.BuyValue += float64(tl.Qty) * tl.Price
			row.Fills++
		case tradelog.SideSell:
			row.SellQty += tl.Qty
			row.SellValue += float64(tl.Qty) * tl.Price
			row.RealizedPnL += tl.Realized
			row.Releases++
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := s.csvPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	headers := []string{"symbol", "fills", "buy_qty", "buy_avg", "releases", "sell_qty", "sell_avg", "realized_pnl", "gross_buy_value", "gross_sell_value"}
	if err := w.Write(headers); err != nil {
		return "", err
	}
	var totalBuy, totalSell, totalPnL float64
	for _, k := range keys {
		r := aggs[k]
		var buyAvg, sellAvg float64
		if r.BuyQty > 0 {
			buyAvg = r.BuyValue / float64(r.BuyQty)
		}
		if r.SellQty > 0 {
			sellAvg = r.SellValue / float64(r.SellQty)
		}
		rec := []string{
			r.Symbol,
			strconv.Itoa(r.Fills),
			strconv.Itoa(r.BuyQty),
			fmt.Sprintf("%.4f", buyAvg),
			strconv.Itoa(r.Releases),
			strconv.Itoa(r.SellQty),
			fmt.Sprintf("%.4f", sellAvg),
			fmt.Sprintf("%.2f", r.RealizedPnL),
			fmt.Sprintf("%.2f", r.BuyValue),
			fmt.Sprintf("%.2f", r.SellValue),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		totalBuy += r.BuyValue
		totalSell += r.SellValue
		totalPnL += r.RealizedPnL
	}
	_ = w.Write([]string{"TOTAL", "", "", "", "", "", "", fmt.Sprintf("%.2f", totalPnL), fmt.Sprintf("%.2f", totalBuy), fmt.Sprintf("%.2f", totalSell)})
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return outPath, nil
}

func (s *Summarizer) SummarizeToday() (string, error) { return s.SummarizeDay(s.localNow()) }

// ShouldRunNow is true after the close on a day whose CSV does not exist yet.
func (s *Summarizer) ShouldRunNow() (bool, string) {
	now := s.localNow()
	outPath := s.csvPath(now)
	if now.After(s.marketCloseTime(now)) {
		if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
			return true, outPath
		}
	}
	return false, outPath
}
