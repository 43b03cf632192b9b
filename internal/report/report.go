// Package report renders a cycle as the markdown message sent to operators.
package report

import (
	"fmt"
	"strings"
	"time"

	"ai-grid-trader/internal/tradelog"
	"ai-grid-trader/internal/types"
)

const divider = "--------------------"

// Composer renders cycle results. Capital is the total experiment capital
// shown in the header.
type Composer struct {
	Title   string
	Capital float64
}

func NewComposer(title string, capital float64) *Composer {
	if title == "" {
		title = "AI grid report"
	}
	return &Composer{Title: title, Capital: capital}
}

// Compose renders one block per symbol. Any degraded part of a step is
// annotated in its block and counted in the footer.
func (c *Composer) Compose(cycle *types.CycleResult) string {
	var b strings.Builder
	started := time.Unix(cycle.Started, 0).In(tradelog.Zone)

	fmt.Fprintf(&b, "# %s\n", c.Title)
	fmt.Fprintf(&b, "### Date: `%s (UTC+8)`\n", started.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "### Capital: `%s TWD`\n", thousands(c.Capital))
	b.WriteString(divider + "\n")

	degraded := 0
	for _, r := range cycle.Results {
		if r == nil {
			continue
		}
		writeSymbol(&b, r)
		if len(r.Degraded) > 0 || r.Err != "" {
			degraded++
		}
		b.WriteString(divider + "\n")
	}

	if degraded > 0 {
		fmt.Fprintf(&b, "AI status: monitoring, %d of %d symbols degraded\n", degraded, len(cycle.Results))
	} else {
		b.WriteString("AI status: monitoring\n")
	}
	return strings.TrimSpace(b.String())
}

func writeSymbol(b *strings.Builder, r *types.StepResult) {
	title := r.Symbol
	if r.Name != "" {
		title = fmt.Sprintf("%s (%s)", r.Name, r.Symbol)
	}
	fmt.Fprintf(b, "## %s\n", title)

	if r.Price <= 0 {
		b.WriteString("Price: `unavailable`\n")
	} else {
		fmt.Fprintf(b, "Price: `%.2f`\n", r.Price)
	}
	fmt.Fprintf(b, "Trend: %s\n", r.Trend)
	fmt.Fprintf(b, "RSI: `%s` (%s)\n", r.Snapshot.RSI, r.Signals.Heat)
	fmt.Fprintf(b, "Bollinger: %s, momentum: %s\n", r.Signals.BandPosition, r.Signals.Momentum)
	fmt.Fprintf(b, "Suggested grid buy: `%s`\n", r.GridBuy)

	d := r.Advice.Decision
	ai := fmt.Sprintf("AI: **%s** (%d%%) %s", d.Decision, d.Confidence, d.Reason)
	switch {
	case r.Advice.Outcome == types.OutcomeDegraded:
		ai += " [degraded]"
	case r.Advice.Outcome == types.OutcomeRescued:
		ai += " [partial reply]"
	}
	if r.Advice.Cached {
		ai += " [cached]"
	}
	b.WriteString(ai + "\n")

	if r.Verdict.Allowed {
		b.WriteString("Risk gate: passed\n")
	} else {
		fmt.Fprintf(b, "Risk gate: blocked (%s)\n", r.Verdict.Reason)
	}

	for _, ev := range r.Events {
		switch ev.Kind {
		case types.GridFill:
			fmt.Fprintf(b, "Action: buy rung %d, %d shares at %.2f\n", ev.Rung, ev.Shares, ev.Price)
		case types.GridRelease:
			fmt.Fprintf(b, "Action: sell rung %d, %d shares at %.2f (realized %+.2f)\n", ev.Rung, ev.Shares, ev.Price, ev.Realized)
		case types.GridSkip:
			fmt.Fprintf(b, "Rung %d triggered, skipped: %s\n", ev.Rung, ev.Note)
		}
	}

	if p := r.Position; p != nil && p.TotalShares > 0 {
		fmt.Fprintf(b, "Position: %d shares, avg cost %.2f, %d rungs filled\n", p.TotalShares, p.AvgCost(), len(p.Levels))
	} else {
		b.WriteString("Position: flat\n")
	}

	if r.Err != "" {
		fmt.Fprintf(b, "Error: %s\n", r.Err)
	}
	for _, note := range r.Degraded {
		fmt.Fprintf(b, "Degraded: %s\n", note)
	}
}

// thousands formats v with comma separators and no decimals.
func thousands(v float64) string {
	s := fmt.Sprintf("%.0f", v)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var out []byte
	for i := range len(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
