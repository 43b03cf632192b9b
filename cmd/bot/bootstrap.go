package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"ai-grid-trader/internal/api"
	"ai-grid-trader/internal/engine"
	"ai-grid-trader/internal/engine/engineobs"
	"ai-grid-trader/internal/eod"
	"ai-grid-trader/internal/eod/eodobs"
	"ai-grid-trader/internal/grid"
	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/llm"
	"ai-grid-trader/internal/llm/claude"
	"ai-grid-trader/internal/llm/gemini"
	"ai-grid-trader/internal/llm/llmobs"
	"ai-grid-trader/internal/llm/noop"
	"ai-grid-trader/internal/llm/openai"
	"ai-grid-trader/internal/logger"
	"ai-grid-trader/internal/marketdata"
	"ai-grid-trader/internal/marketdata/marketobs"
	"ai-grid-trader/internal/news"
	"ai-grid-trader/internal/notify"
	"ai-grid-trader/internal/recorder"
	"ai-grid-trader/internal/risk"
	"ai-grid-trader/internal/store"
	"ai-grid-trader/internal/trace"
	"ai-grid-trader/internal/tradelog"

	"github.com/joho/godotenv"
)

// initializeSystem initializes logger and tracer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// httpOptions are shared by every outbound API client. Request logging
// follows the logger's debug level.
func httpOptions() []api.ClientOption {
	return []api.ClientOption{api.WithLogging(logger.IsDebugEnabled())}
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	logger.Info(ctx, "Config loaded",
		"path", path,
		"mode", cfg.Mode,
		"data_source", cfg.DataSource,
		"symbols", len(cfg.Symbols),
		"capital", cfg.Grid.Capital,
	)
	return cfg, nil
}

// initializeMarketData picks the candle source and wraps it with observability
func initializeMarketData(ctx context.Context, cfg *store.Config) interfaces.MarketData {
	var src interfaces.MarketData
	switch cfg.DataSource {
	case "KITE":
		tokens := make(map[string]int, len(cfg.Symbols))
		for _, s := range cfg.Symbols {
			tokens[s.Symbol] = s.InstrumentToken
		}
		src = marketdata.NewKite(os.Getenv("KITE_API_KEY"), os.Getenv("KITE_ACCESS_TOKEN"), tokens)
		logger.Info(ctx, "Using Kite historical candles")
	case "STATIC":
		src = marketdata.NewStatic(0)
		logger.Warn(ctx, "Using STATIC synthetic candles - prices are not real")
	default:
		src = marketdata.NewYahoo(os.Getenv("YAHOO_BASE_URL"), httpOptions()...)
		logger.Info(ctx, "Using Yahoo Finance candles")
	}
	return marketobs.WrapMarketData(src)
}

// initializeContext assembles the auxiliary context providers. Returns nil
// when every provider is disabled.
func initializeContext(ctx context.Context, cfg *store.Config) interfaces.ContextProvider {
	var providers []interfaces.ContextProvider

	if cfg.Context.FinMind.Enabled {
		providers = append(providers, marketobs.WrapContext(
			marketdata.NewFinMind(os.Getenv("FINMIND_TOKEN"), cfg.Context.FinMind.BaseURL, httpOptions()...)))
	}

	if cfg.Context.USMarket.Enabled {
		ttl := time.Duration(cfg.Context.USMarket.TTLMinutes) * time.Minute
		providers = append(providers, marketobs.WrapContext(
			marketdata.NewUSMarket(marketdata.NewYahoo(os.Getenv("YAHOO_BASE_URL"), httpOptions()...), ttl)))
	}

	h := cfg.Context.Headlines
	if h.Enabled {
		var sources []news.Source
		for _, s := range h.Sources {
			sources = append(sources, news.Source{
				Name:     s.Name,
				URL:      s.URL,
				Item:     s.Item,
				Title:    s.Title,
				Link:     s.Link,
				Fallback: s.Fallback,
			})
		}
		sell, systemic := riskTerms(cfg)
		names := make(map[string]string, len(cfg.Symbols))
		for _, s := range cfg.Symbols {
			names[s.Symbol] = s.Name
		}
		svc := news.NewService(
			news.NewScraper(sources, time.Duration(h.TimeoutSeconds)*time.Second, httpOptions()...),
			news.NewTagger(sell, systemic),
			&news.ServiceConfig{
				MaxHeadlines:   h.MaxHeadlines,
				CacheDuration:  time.Duration(h.CacheMinutes) * time.Minute,
				ScraperTimeout: time.Duration(h.TimeoutSeconds) * time.Second,
				Enabled:        true,
			},
			names,
		)
		providers = append(providers, marketobs.WrapContext(svc))
	}

	if len(providers) == 0 {
		logger.Warn(ctx, "No context providers enabled - auxiliary fields will read unavailable")
		return nil
	}
	composite := marketdata.NewComposite(nil, providers...)
	logger.Info(ctx, "Context providers ready", "providers", composite.Name())
	return composite
}

// riskTerms returns the configured vocabularies, falling back to the built-in
// lists for any left empty.
func riskTerms(cfg *store.Config) (sell, systemic []string) {
	sell, systemic = cfg.Risk.SellPressureTerms, cfg.Risk.SystemicTerms
	if len(sell) == 0 {
		sell = risk.DefaultSellPressureTerms
	}
	if len(systemic) == 0 {
		systemic = risk.DefaultSystemicTerms
	}
	return sell, systemic
}

// initializeAdvisor initializes and returns the advisory client with observability
func initializeAdvisor(ctx context.Context, cfg *store.Config) interfaces.Advisor {
	a := cfg.Advisor

	var completer interfaces.Completer
	switch a.Provider {
	case "GEMINI":
		completer = gemini.New(os.Getenv("GEMINI_API_KEY"), a.Endpoint, httpOptions()...)
	case "OPENAI":
		completer = openai.New(os.Getenv("OPENAI_API_KEY"), a.Endpoint, httpOptions()...)
	case "CLAUDE":
		completer = claude.New(os.Getenv("CLAUDE_API_KEY"), a.Endpoint, httpOptions()...)
	default:
		logger.Warn(ctx, "No advisory provider configured - using Noop advisor (always hold)")
		return llmobs.Wrap(noop.New())
	}

	advisor := llm.NewAdvisor(llm.Config{
		Models:          a.Models,
		Temperature:     a.Temperature,
		MaxOutputTokens: a.MaxOutputTokens,
		CallTimeout:     time.Duration(a.CallTimeoutSeconds) * time.Second,
		MaxAttempts:     a.MaxAttempts,
		RateLimitBase:   time.Duration(a.RateLimitBaseSecs) * time.Second,
		RateLimitStep:   time.Duration(a.RateLimitStepSecs) * time.Second,
		RetryDelay:      time.Duration(a.RetryDelaySeconds) * time.Second,
	}, completer, llm.NewCache(time.Duration(a.CacheTTLMinutes)*time.Minute))

	logger.Info(ctx, "Advisor ready", "provider", completer.Name(), "models", a.Models)
	return llmobs.Wrap(advisor)
}

// initializeLedger loads the grid ledger from the state file
func initializeLedger(ctx context.Context, cfg *store.Config) (*grid.Ledger, error) {
	g := cfg.Grid
	return grid.Open(ctx,
		grid.Config{
			Capital:       g.Capital,
			Levels:        g.Levels,
			GapPct:        g.GapPct,
			TakeProfitPct: g.TakeProfitPct,
		},
		grid.NewFileStore(g.StateFile),
		grid.WithSymbolCapital(cfg.SymbolCapital()),
		grid.WithSaveRetry(g.SaveAttempts, 200*time.Millisecond),
	)
}

// initializeSinks opens the JSONL journal and, when configured, the SQLite
// mirror. A SQLite failure only disables the mirror.
func initializeSinks(ctx context.Context, cfg *store.Config) (*tradelog.Journal, *recorder.SQLiteRecorder, []interfaces.DecisionSink) {
	journal := tradelog.NewJournal(cfg.DecisionLog.Dir)
	sinks := []interfaces.DecisionSink{journal}

	if cfg.DecisionLog.SQLitePath == "" {
		return journal, nil, sinks
	}
	db, err := recorder.NewSQLiteRecorder(ctx, cfg.DecisionLog.SQLitePath)
	if err != nil {
		logger.Warn(ctx, "SQLite recorder disabled", "path", cfg.DecisionLog.SQLitePath, "error", err)
		return journal, nil, sinks
	}
	return journal, db, append(sinks, db)
}

// initializeEngine builds the pipeline and the cycle runner around it
func initializeEngine(cfg *store.Config, d engine.Deps) *engine.Runner {
	symbols := make([]engine.Symbol, 0, len(cfg.Symbols))
	names := make([]string, 0, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols = append(symbols, engine.Symbol{Symbol: s.Symbol, Name: s.Name, Strategy: s.Strategy})
		names = append(names, s.Symbol)
	}
	eng := engine.New(engine.Config{
		Period:   cfg.Market.Period,
		Interval: cfg.Market.Interval,
		Symbols:  symbols,
	}, d)

	// Wrap with observability middleware
	return engine.NewRunner(engineobs.Wrap(eng), names, cfg.SymbolDelay())
}

// initializeNotifier fans reports out to Discord and stdout
func initializeNotifier(ctx context.Context, cfg *store.Config) interfaces.Notifier {
	var out notify.Multi
	if cfg.Notify.Discord {
		if hook := os.Getenv("DISCORD_WEBHOOK_URL"); hook != "" {
			out = append(out, notify.NewDiscord(hook, httpOptions()...))
		} else {
			logger.Warn(ctx, "Discord notifications enabled but DISCORD_WEBHOOK_URL is not set")
		}
	}
	if cfg.Notify.Stdout || len(out) == 0 {
		out = append(out, notify.NewStdout())
	}
	return out
}

// initializeEOD wraps the summarizer with observability
func initializeEOD(cfg *store.Config, journal *tradelog.Journal) interfaces.EodSummarizer {
	return eodobs.Wrap(eod.New(journal, cfg.Schedule.EODCloseTime))
}
