package llm

import (
	"fmt"
	"sort"
	"strings"

	"ai-grid-trader/internal/types"
)

// Strategy tags select the prompt variant.
const (
	StrategyAccumulation = "accumulation"
	StrategyGrid         = "grid"
	StrategyMarket       = "market"
)

// NormalizeStrategy maps unknown or empty tags to the grid variant.
func NormalizeStrategy(tag string) string {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case StrategyAccumulation:
		return StrategyAccumulation
	case StrategyMarket:
		return StrategyMarket
	default:
		return StrategyGrid
	}
}

const replyShape = `Reply with ONE JSON object and nothing else:
{"decision": "buy" | "hold" | "avoid", "confidence": 0-100, "reason": "<= 80 words"}`

const gridReplyShape = `Reply with ONE JSON object and nothing else:
{"decision": "buy" | "hold" | "avoid", "confidence": 0-100, "reason": "<= 80 words", "action_trigger": true | false}
action_trigger is true only when the next grid rung should be armed this session.`

// Fields shown in the summary, in order, with their labels.
var summaryFields = []struct{ key, label string }{
	{"month_low", "Month low"},
	{"k_line", "Candle / volume"},
	{"order_strength", "Intraday order flow"},
	{"valuation", "Valuation"},
	{"market_context", "Market context"},
	{"index_flow", "Index flow"},
	{"inst", "Institutional flow"},
	{"holders", "Large holders"},
	{"day_trade", "Day-trade ratio"},
	{"us_signal", "US market reference"},
	{"rev", "Revenue"},
}

var marketFields = []struct{ key, label string }{
	{"spx", "S&P 500"},
	{"nasdaq", "NASDAQ"},
	{"sox", "Philadelphia Semiconductor"},
	{"tsm", "TSM ADR"},
	{"market_context", "Headlines"},
}

// BuildPrompt renders the request for its strategy variant.
func BuildPrompt(req types.AdviceRequest) string {
	var b strings.Builder
	target := req.Symbol
	if req.Name != "" {
		target = fmt.Sprintf("%s (%s)", req.Name, req.Symbol)
	}

	switch NormalizeStrategy(req.Strategy) {
	case StrategyAccumulation:
		fmt.Fprintf(&b, "You are a patient long-horizon investor reviewing %s for gradual accumulation.\n", target)
		b.WriteString("Favour entries near value support, ignore intraday noise, refuse to add into a confirmed downtrend.\n\n")
		writeTechnical(&b, req)
		writeFields(&b, req.Context, summaryFields)
		b.WriteString("\n" + replyShape + "\n")
	case StrategyMarket:
		b.WriteString("You are a cross-market risk officer judging today's broad-market mood for Asian equities.\n")
		b.WriteString("Decide whether new risk may be added (buy), should wait (hold), or must be avoided (avoid).\n\n")
		writeFields(&b, req.Context, marketFields)
		writeTechnical(&b, req)
		b.WriteString("\n" + replyShape + "\n")
	default:
		fmt.Fprintf(&b, "You are a disciplined grid trader managing a ladder of buy rungs on %s.\n", target)
		b.WriteString("Rules: only add on weakness inside an intact trend, size is fixed per rung, never average into panic selling.\n\n")
		writeTechnical(&b, req)
		writeFields(&b, req.Context, summaryFields)
		b.WriteString("\n" + gridReplyShape + "\n")
	}
	return b.String()
}

func writeTechnical(b *strings.Builder, req types.AdviceRequest) {
	s := req.Snapshot
	b.WriteString("Technical summary:\n")
	fmt.Fprintf(b, "- Price: %.2f\n", s.Price)
	fmt.Fprintf(b, "- Trend: %s\n", req.Trend)
	fmt.Fprintf(b, "- MA20 / MA60: %s / %s\n", s.MA20, s.MA60)
	fmt.Fprintf(b, "- Bollinger: upper %s, mid %s, lower %s (%s)\n", s.BBUpper, s.BBMid, s.BBLower, req.Signals.BandPosition)
	fmt.Fprintf(b, "- RSI(14): %s (%s)\n", s.RSI, req.Signals.Heat)
	fmt.Fprintf(b, "- MACD histogram: %s (%s)\n", s.MACDHist, req.Signals.Momentum)
	fmt.Fprintf(b, "- ATR(14): %s\n", s.ATR)
}

func writeFields(b *strings.Builder, ctx map[string]string, fields []struct{ key, label string }) {
	b.WriteString("Context:\n")
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		seen[f.key] = true
		fmt.Fprintf(b, "- %s: %s\n", f.label, contextValue(ctx, f.key))
	}
	var extra []string
	for k := range ctx {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		fmt.Fprintf(b, "- %s: %s\n", k, contextValue(ctx, k))
	}
}

func contextValue(ctx map[string]string, key string) string {
	if v, ok := ctx[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return types.Unavailable
}
