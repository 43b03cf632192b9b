package types

import (
	"encoding/json"
	"fmt"
	"math"
)

// Unavailable marks an auxiliary context field the provider could not supply.
const Unavailable = "unavailable"

type Candle struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

// Indicator is a computed value, or an insufficient-history marker when Ready is false.
type Indicator struct {
	Value float64
	Ready bool
}

func Ready(v float64) Indicator {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Indicator{}
	}
	return Indicator{Value: v, Ready: true}
}

func (i Indicator) String() string {
	if !i.Ready {
		return "insufficient"
	}
	return fmt.Sprintf("%.2f", i.Value)
}

func (i Indicator) MarshalJSON() ([]byte, error) {
	if !i.Ready {
		return []byte("null"), nil
	}
	return json.Marshal(i.Value)
}

func (i *Indicator) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*i = Indicator{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*i = Ready(v)
	return nil
}

type IndicatorSnapshot struct {
	Price        float64   `json:"price"`
	RSI          Indicator `json:"rsi"`
	MACDHist     Indicator `json:"macd_hist"`
	MACDHistPrev Indicator `json:"macd_hist_prev"`
	BBUpper      Indicator `json:"bb_upper"`
	BBMid        Indicator `json:"bb_mid"`
	BBLower      Indicator `json:"bb_lower"`
	MA20         Indicator `json:"ma20"`
	MA60         Indicator `json:"ma60"`
	ATR          Indicator `json:"atr"`
}

type TrendLabel string

const (
	TrendBull         TrendLabel = "bull"
	TrendBullPullback TrendLabel = "bull_pullback"
	TrendBear         TrendLabel = "bear"
	TrendBearExtreme  TrendLabel = "bear_extreme"
	TrendRange        TrendLabel = "range"
)

// Bearish reports whether the label is one the risk gate vetoes.
func (t TrendLabel) Bearish() bool {
	return t == TrendBear || t == TrendBearExtreme
}

// RiskTag is a risk category emitted by a context producer.
type RiskTag string

const (
	RiskSellPressure RiskTag = "sell_pressure"
	RiskSystemic     RiskTag = "systemic"
)

type RiskVerdict struct {
	Allowed bool   `json:"pass"`
	Reason  string `json:"reason"`
}

// StepResult is everything one symbol's pass through the pipeline produced.
type StepResult struct {
	CycleID  string            `json:"cycle_id"`
	Symbol   string            `json:"symbol"`
	Name     string            `json:"name,omitempty"`
	Strategy string            `json:"strategy"`
	Price    float64           `json:"price"`
	Time     int64             `json:"time"`
	Snapshot IndicatorSnapshot `json:"snapshot"`
	Signals  Signals           `json:"signals"`
	Trend    TrendLabel        `json:"trend"`
	GridBuy  Indicator         `json:"grid_buy"`
	Advice   Advice            `json:"advice"`
	Verdict  RiskVerdict       `json:"risk_gate"`
	Events   []GridEvent       `json:"events,omitempty"`
	Position *GridPosition     `json:"position,omitempty"`
	Degraded []string          `json:"degraded,omitempty"`
	Err      string            `json:"error,omitempty"`
}

// Signals are the qualitative readings derived from a snapshot.
type Signals struct {
	BandPosition string `json:"band_position"`
	Momentum     string `json:"momentum"`
	Heat         string `json:"heat"`
}

// CycleResult collects one pass over every configured symbol.
type CycleResult struct {
	ID       string        `json:"id"`
	Started  int64         `json:"started"`
	Duration float64       `json:"duration_seconds"`
	Results  []*StepResult `json:"results"`
}
