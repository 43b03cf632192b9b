package news

import (
	"context"
	"strings"
	"sync"
	"time"

	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/logger"
	"ai-grid-trader/internal/types"
)

// Service turns scraped headlines into the "market_context" field and the
// risk tags derived from them. Results are cached per symbol.
type Service struct {
	scraper *Scraper
	tagger  *Tagger
	cache   *headlineCache
	cfg     *ServiceConfig
	names   map[string]string
}

var _ interfaces.ContextProvider = (*Service)(nil)

// ServiceConfig configures the headline service
type ServiceConfig struct {
	MaxHeadlines   int           // headlines kept per symbol
	CacheDuration  time.Duration // how long a scrape is reused
	ScraperTimeout time.Duration
	Enabled        bool
}

// DefaultServiceConfig returns default configuration
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		MaxHeadlines:   5,
		CacheDuration:  15 * time.Minute,
		ScraperTimeout: 20 * time.Second,
		Enabled:        true,
	}
}

type headlineCache struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
	ttl  time.Duration
	now  func() time.Time
}

type cacheEntry struct {
	fields    map[string]string
	timestamp time.Time
}

func newHeadlineCache(ttl time.Duration) *headlineCache {
	return &headlineCache{data: make(map[string]cacheEntry), ttl: ttl, now: time.Now}
}

func (c *headlineCache) get(symbol string) (map[string]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[symbol]
	if !ok || c.now().Sub(entry.timestamp) >= c.ttl {
		return nil, false
	}
	return clone(entry.fields), true
}

func (c *headlineCache) set(symbol string, fields map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.data {
		if now.Sub(e.timestamp) >= c.ttl {
			delete(c.data, k)
		}
	}
	c.data[symbol] = cacheEntry{fields: clone(fields), timestamp: now}
}

// NewService creates a headline service. names maps symbols to display
// names used when matching symbol-specific headlines.
func NewService(scraper *Scraper, tagger *Tagger, cfg *ServiceConfig, names map[string]string) *Service {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	return &Service{
		scraper: scraper,
		tagger:  tagger,
		cache:   newHeadlineCache(cfg.CacheDuration),
		cfg:     cfg,
		names:   names,
	}
}

func (s *Service) Name() string { return "headlines" }

// Context returns market_context and risk_tags. A scrape failure leaves
// market_context unavailable and is not cached.
func (s *Service) Context(ctx context.Context, symbol string) (map[string]string, error) {
	if !s.cfg.Enabled {
		return map[string]string{"market_context": types.Unavailable}, nil
	}
	if cached, ok := s.cache.get(symbol); ok {
		logger.Debug(ctx, "Using cached headlines", "symbol", symbol)
		return cached, nil
	}

	hs, err := s.scraper.Headlines(ctx, symbol, s.cfg.MaxHeadlines)
	if err != nil {
		return map[string]string{"market_context": types.Unavailable}, err
	}

	fields := map[string]string{"market_context": types.Unavailable}
	if len(hs) > 0 {
		titles := make([]string, len(hs))
		for i, h := range hs {
			titles[i] = h.Title
		}
		fields["market_context"] = strings.Join(titles, " | ")
	}
	if tags := s.tagger.Tags(hs, symbol, stockID(symbol), s.names[symbol]); len(tags) > 0 {
		parts := make([]string, len(tags))
		for i, t := range tags {
			parts[i] = string(t)
		}
		fields["risk_tags"] = strings.Join(parts, ",")
	}

	logger.Info(ctx, "Headlines collected", "symbol", symbol, "count", len(hs), "tags", fields["risk_tags"])
	s.cache.set(symbol, fields)
	return clone(fields), nil
}

// ClearCache drops all cached scrapes.
func (s *Service) ClearCache() {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	s.cache.data = make(map[string]cacheEntry)
}

func stockID(symbol string) string {
	if i := strings.IndexByte(symbol, '.'); i > 0 {
		return symbol[:i]
	}
	return symbol
}

func clone(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
