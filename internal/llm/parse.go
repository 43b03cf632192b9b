package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"ai-grid-trader/internal/types"
)

const (
	rescuedConfidence = 50
	reasonUnparsable  = "unparsable advisory response"
	reasonRescued     = "rescued from a malformed advisory response"
)

var (
	fenceRe = regexp.MustCompile("```(?:json|JSON)?")

	// Keys may be bare, quoted either way or wrapped in markdown bold, so
	// Python-dict and "**decision**: buy" replies are still read.
	decisionRe = regexp.MustCompile(`(?i)["'*]*decision["'*]*\s*[:=]\s*["'*]*([^"',}*\n]+)`)
	confRe     = regexp.MustCompile(`(?i)["'*]*confidence["'*]*\s*[:=]\s*["'*]*(-?\d+(?:\.\d+)?)`)
	reasonRe   = regexp.MustCompile(`(?i)["'*]*reason["'*]*\s*[:=]\s*(?:"((?:[^"\\]|\\.)*)"|'((?:[^'\\]|\\.)*)')`)
	triggerRe  = regexp.MustCompile(`(?i)["'*]*action_trigger["'*]*\s*[:=]\s*["'*]*(true|false)`)
)

var verdictWords = map[string]types.Verdict{
	"buy":          types.VerdictBuy,
	"feasible":     types.VerdictBuy,
	"可行":           types.VerdictBuy,
	"hold":         types.VerdictHold,
	"wait":         types.VerdictHold,
	"watch":        types.VerdictHold,
	"neutral":      types.VerdictHold,
	"觀望":           types.VerdictHold,
	"观望":           types.VerdictHold,
	"avoid":        types.VerdictAvoid,
	"sell":         types.VerdictAvoid,
	"not feasible": types.VerdictAvoid,
	"infeasible":   types.VerdictAvoid,
	"不可行":          types.VerdictAvoid,
}

// ParseDecision turns raw provider text into a decision. It never fails:
// fenced or bare JSON decodes directly, JSON embedded in prose is cut out
// between the outermost braces, and anything else goes through per-field
// regex rescue before falling back to the neutral default.
func ParseDecision(text string) (types.AIDecision, types.AdviceOutcome) {
	t := stripFences(text)

	if d, ok := decodeObject(t); ok {
		return d, outcomeOf(d)
	}

	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		if d, ok := decodeObject(t[start : end+1]); ok {
			return d, outcomeOf(d)
		}
	}

	if d, ok := rescue(t); ok {
		return d, types.OutcomeRescued
	}
	return types.NeutralDecision(reasonUnparsable), types.OutcomeDegraded
}

func stripFences(s string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(s, ""))
}

func outcomeOf(d types.AIDecision) types.AdviceOutcome {
	if d.Degraded {
		return types.OutcomeRescued
	}
	return types.OutcomeOK
}

func decodeObject(s string) (types.AIDecision, bool) {
	if !strings.HasPrefix(s, "{") {
		return types.AIDecision{}, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return types.AIDecision{}, false
	}
	if _, ok := raw["decision"]; !ok {
		return types.AIDecision{}, false
	}

	var d types.AIDecision
	verdict, ok := normalizeVerdict(fmt.Sprint(raw["decision"]))
	d.Decision = verdict
	if !ok {
		d.Degraded = true
	}

	conf, ok := confidenceFrom(raw["confidence"])
	d.Confidence = conf
	if !ok {
		d.Degraded = true
	}

	switch r := raw["reason"].(type) {
	case string:
		d.Reason = strings.TrimSpace(r)
	case nil:
	default:
		d.Reason = fmt.Sprint(r)
	}

	switch v := raw["action_trigger"].(type) {
	case bool:
		d.ActionTrigger = &v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			d.ActionTrigger = &b
		}
	}
	if d.Degraded && d.Reason == "" {
		d.Reason = reasonRescued
	}
	return d, true
}

func rescue(s string) (types.AIDecision, bool) {
	d := types.AIDecision{Decision: types.VerdictHold, Confidence: rescuedConfidence, Degraded: true}
	found := false

	if m := decisionRe.FindStringSubmatch(s); m != nil {
		if v, ok := leadingVerdict(m[1]); ok {
			d.Decision = v
			found = true
		}
	}
	if m := confRe.FindStringSubmatch(s); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			d.Confidence = clampConfidence(f)
			found = true
		}
	}
	if m := reasonRe.FindStringSubmatch(s); m != nil {
		r := m[1]
		if r == "" {
			r = strings.ReplaceAll(m[2], `\'`, `'`)
		}
		d.Reason = strings.TrimSpace(strings.ReplaceAll(r, `\"`, `"`))
		found = true
	}
	if m := triggerRe.FindStringSubmatch(s); m != nil {
		b := strings.EqualFold(m[1], "true")
		d.ActionTrigger = &b
	}
	if !found {
		return types.AIDecision{}, false
	}
	if d.Reason == "" {
		d.Reason = reasonRescued
	}
	return d, true
}

func normalizeVerdict(s string) (types.Verdict, bool) {
	key := strings.ToLower(strings.TrimSpace(strings.Trim(s, `"' `)))
	if v, ok := verdictWords[key]; ok {
		return v, true
	}
	return types.VerdictHold, false
}

// leadingVerdict accepts "buy", "not feasible", or a verdict followed by prose.
func leadingVerdict(s string) (types.Verdict, bool) {
	if v, ok := normalizeVerdict(s); ok {
		return v, true
	}
	words := strings.Fields(s)
	for n := min(2, len(words)); n > 0; n-- {
		if v, ok := normalizeVerdict(strings.Join(words[:n], " ")); ok {
			return v, true
		}
	}
	return types.VerdictHold, false
}

func confidenceFrom(v any) (int, bool) {
	switch c := v.(type) {
	case float64:
		return clampConfidence(c), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(c), "%"), 64)
		if err != nil {
			return rescuedConfidence, false
		}
		return clampConfidence(f), true
	default:
		return rescuedConfidence, false
	}
}

// clampConfidence maps to an int in [0,100]. Fractions strictly between 0
// and 1 are read as probabilities.
func clampConfidence(f float64) int {
	if math.IsNaN(f) {
		return 0
	}
	if f > 0 && f < 1 {
		f *= 100
	}
	return int(math.Round(math.Max(0, math.Min(100, f))))
}
