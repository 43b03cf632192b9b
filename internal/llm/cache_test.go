package llm

import (
	"testing"
	"time"

	"ai-grid-trader/internal/types"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func TestCacheExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	cache := NewCache(15*time.Minute, WithClock(clock.Now))

	adv := types.Advice{
		Decision: types.AIDecision{Decision: types.VerdictBuy, Confidence: 70, Reason: "ok"},
		Outcome:  types.OutcomeOK,
	}
	cache.Set("2330", StrategyGrid, adv)

	clock.Advance(14*time.Minute + 59*time.Second)
	got, ok := cache.Get("2330", StrategyGrid)
	if !ok {
		t.Fatal("expected entry before TTL")
	}
	if got.Decision != adv.Decision {
		t.Errorf("cached decision = %+v, want %+v", got.Decision, adv.Decision)
	}

	clock.Advance(time.Second)
	if _, ok := cache.Get("2330", StrategyGrid); ok {
		t.Error("expected entry to expire at TTL")
	}
	if cache.Len() != 0 {
		t.Errorf("expired entry should be removed, len=%d", cache.Len())
	}
}

func TestCacheKeyedByStrategy(t *testing.T) {
	cache := NewCache(time.Hour)
	cache.Set("2330", StrategyGrid, types.Advice{Outcome: types.OutcomeOK})

	if _, ok := cache.Get("2330", StrategyAccumulation); ok {
		t.Error("different strategy must not share an entry")
	}
	if _, ok := cache.Get("2317", StrategyGrid); ok {
		t.Error("different symbol must not share an entry")
	}
}

func TestCacheDisabled(t *testing.T) {
	cache := NewCache(0)
	cache.Set("2330", StrategyGrid, types.Advice{Outcome: types.OutcomeOK})
	if _, ok := cache.Get("2330", StrategyGrid); ok {
		t.Error("zero TTL should disable caching")
	}

	var nilCache *Cache
	nilCache.Set("2330", StrategyGrid, types.Advice{})
	if _, ok := nilCache.Get("2330", StrategyGrid); ok {
		t.Error("nil cache should never hit")
	}
}

func TestCacheSetPurgesExpired(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cache := NewCache(time.Minute, WithClock(clock.Now))
	cache.Set("A", StrategyGrid, types.Advice{})
	cache.Set("B", StrategyGrid, types.Advice{})

	clock.Advance(2 * time.Minute)
	cache.Set("C", StrategyGrid, types.Advice{})
	if cache.Len() != 1 {
		t.Errorf("expected only the fresh entry, len=%d", cache.Len())
	}
}
