package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/logger"
	"ai-grid-trader/internal/types"
)

// KeyRiskTags carries comma-separated types.RiskTag values from producers
// that classify their own output.
const KeyRiskTags = "risk_tags"

// DefaultKeys are the context fields the prompt and gate read. Composite
// fills any that no provider supplied with types.Unavailable.
var DefaultKeys = []string{
	"month_low", "k_line", "order_strength", "valuation", "market_context",
	"index_flow", "inst", "holders", "day_trade", "us_signal", "rev",
}

// Composite merges several providers. Providers run concurrently; later
// providers win on key conflicts except for risk tags, which are unioned.
type Composite struct {
	providers []interfaces.ContextProvider
	keys      []string
}

var _ interfaces.ContextProvider = (*Composite)(nil)

func NewComposite(keys []string, providers ...interfaces.ContextProvider) *Composite {
	if keys == nil {
		keys = DefaultKeys
	}
	return &Composite{providers: providers, keys: keys}
}

func (c *Composite) Name() string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return "composite(" + strings.Join(names, ",") + ")"
}

// Context never fails for a single provider; an error is returned only when
// every provider failed, and the map is filled either way.
func (c *Composite) Context(ctx context.Context, symbol string) (map[string]string, error) {
	results := make([]map[string]string, len(c.providers))
	errs := make([]error, len(c.providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range c.providers {
		g.Go(func() error {
			m, err := p.Context(gctx, symbol)
			results[i], errs[i] = m, err
			if err != nil {
				logger.Warn(ctx, "context provider failed", "provider", p.Name(), "symbol", symbol, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]string, len(c.keys))
	var tags []types.RiskTag
	failed := 0
	for i, m := range results {
		if errs[i] != nil {
			failed++
		}
		for k, v := range m {
			if k == KeyRiskTags {
				tags = append(tags, ParseTags(v)...)
				continue
			}
			if strings.TrimSpace(v) == "" {
				continue
			}
			if prev, ok := out[k]; ok && v == types.Unavailable && prev != types.Unavailable {
				continue
			}
			out[k] = v
		}
	}
	for _, k := range c.keys {
		if _, ok := out[k]; !ok {
			out[k] = types.Unavailable
		}
	}
	if len(tags) > 0 {
		out[KeyRiskTags] = FormatTags(tags)
	}

	if len(c.providers) > 0 && failed == len(c.providers) {
		return out, fmt.Errorf("all context providers failed: %w", errors.Join(errs...))
	}
	return out, nil
}

// ParseTags splits a risk_tags field.
func ParseTags(v string) []types.RiskTag {
	var tags []types.RiskTag
	for _, t := range strings.Split(v, ",") {
		if t = strings.TrimSpace(t); t != "" && t != types.Unavailable {
			tags = append(tags, types.RiskTag(t))
		}
	}
	return tags
}

// FormatTags joins tags deduplicated and sorted.
func FormatTags(tags []types.RiskTag) string {
	seen := make(map[types.RiskTag]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, string(t))
		}
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}
