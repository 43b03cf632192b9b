package risk

import (
	"math"
	"slices"
	"strings"

	"ai-grid-trader/internal/types"
)

// Veto reasons.
const (
	ReasonPriceAnomaly = "price anomaly"
	ReasonBearishTrend = "bearish trend"
	ReasonSellPressure = "heavy sell pressure"
	ReasonSystemic     = "systemic market risk"
	ReasonPassed       = "passed"
)

var (
	DefaultSellPressureTerms = []string{
		"heavy selling", "heavy sell", "panic selling", "sell-off", "selloff", "dumping", "distribution",
		"大量賣", "急殺", "出貨",
	}
	DefaultSystemicTerms = []string{
		"systemic risk", "crash", "panic", "circuit breaker", "limit down",
		"系統性風險", "崩跌", "恐慌",
	}
)

// Context is the qualitative input the gate judges besides price.
type Context struct {
	Trend      types.TrendLabel
	OrderFlow  string
	MarketRisk string
	Tags       []types.RiskTag
}

// Gate is the deterministic veto layer. It never sees the advisory decision.
type Gate struct {
	sellPressure []string
	systemic     []string
}

// NewGate builds a gate. Nil vocabularies fall back to the defaults.
func NewGate(sellPressure, systemic []string) *Gate {
	if sellPressure == nil {
		sellPressure = DefaultSellPressureTerms
	}
	if systemic == nil {
		systemic = DefaultSystemicTerms
	}
	return &Gate{sellPressure: lowerAll(sellPressure), systemic: lowerAll(systemic)}
}

var defaultGate = NewGate(nil, nil)

// Evaluate runs the default gate.
func Evaluate(price float64, c Context) types.RiskVerdict {
	return defaultGate.Evaluate(price, c)
}

// Evaluate checks, in order: price sanity, trend, order flow, market risk.
// A bad price always wins.
func (g *Gate) Evaluate(price float64, c Context) types.RiskVerdict {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return types.RiskVerdict{Allowed: false, Reason: ReasonPriceAnomaly}
	}
	if c.Trend.Bearish() {
		return types.RiskVerdict{Allowed: false, Reason: ReasonBearishTrend}
	}
	if slices.Contains(c.Tags, types.RiskSellPressure) || containsAny(c.OrderFlow, g.sellPressure) {
		return types.RiskVerdict{Allowed: false, Reason: ReasonSellPressure}
	}
	if slices.Contains(c.Tags, types.RiskSystemic) || containsAny(c.MarketRisk, g.systemic) {
		return types.RiskVerdict{Allowed: false, Reason: ReasonSystemic}
	}
	return types.RiskVerdict{Allowed: true, Reason: ReasonPassed}
}

func containsAny(text string, terms []string) bool {
	if text == "" || text == types.Unavailable {
		return false
	}
	t := strings.ToLower(text)
	for _, term := range terms {
		if term != "" && strings.Contains(t, term) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
