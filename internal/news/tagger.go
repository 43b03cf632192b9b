package news

import (
	"strings"

	"ai-grid-trader/internal/types"
)

// Tagger classifies headlines into risk tags by vocabulary match. Systemic
// terms tag any headline; sell-pressure terms only count when the headline
// names the symbol.
type Tagger struct {
	sellPressure []string
	systemic     []string
}

func NewTagger(sellPressure, systemic []string) *Tagger {
	return &Tagger{sellPressure: lower(sellPressure), systemic: lower(systemic)}
}

// Tags returns the distinct tags raised by hs. aliases are the names the
// symbol goes by (ticker, stock id, company name).
func (t *Tagger) Tags(hs []Headline, aliases ...string) []types.RiskTag {
	var systemic, sell bool
	for _, h := range hs {
		title := strings.ToLower(h.Title)
		if !systemic && containsAny(title, t.systemic) {
			systemic = true
		}
		if !sell && mentions(title, aliases) && containsAny(title, t.sellPressure) {
			sell = true
		}
	}
	var tags []types.RiskTag
	if sell {
		tags = append(tags, types.RiskSellPressure)
	}
	if systemic {
		tags = append(tags, types.RiskSystemic)
	}
	return tags
}

func mentions(title string, aliases []string) bool {
	for _, a := range aliases {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" && strings.Contains(title, a) {
			return true
		}
	}
	return false
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if term != "" && strings.Contains(s, term) {
			return true
		}
	}
	return false
}

func lower(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
