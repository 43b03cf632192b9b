package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/llm"
	"ai-grid-trader/internal/llm/claude"
	"ai-grid-trader/internal/llm/gemini"
	"ai-grid-trader/internal/llm/openai"
	"ai-grid-trader/internal/logger"
	"ai-grid-trader/internal/store"
	"ai-grid-trader/internal/types"

	"github.com/joho/godotenv"
)

var keyEnv = map[string]string{
	"GEMINI": "GEMINI_API_KEY",
	"OPENAI": "OPENAI_API_KEY",
	"CLAUDE": "CLAUDE_API_KEY",
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	symbol := flag.String("symbol", "2317.TW", "symbol used in the sample request")
	flag.Parse()

	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := store.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	provider := cfg.Advisor.Provider
	env, ok := keyEnv[provider]
	if !ok {
		fmt.Printf("Provider %s makes no remote calls, nothing to check\n", provider)
		return
	}
	key := os.Getenv(env)
	if key == "" {
		fmt.Printf("✗ %s is not set\n", env)
		os.Exit(1)
	}
	fmt.Printf("✓ %s is set (%d chars)\n", env, len(key))

	var completer interfaces.Completer
	switch provider {
	case "GEMINI":
		completer = gemini.New(key, cfg.Advisor.Endpoint)
	case "OPENAI":
		completer = openai.New(key, cfg.Advisor.Endpoint)
	case "CLAUDE":
		completer = claude.New(key, cfg.Advisor.Endpoint)
	}

	advisor := llm.NewAdvisor(llm.Config{
		Models:          cfg.Advisor.Models,
		Temperature:     cfg.Advisor.Temperature,
		MaxOutputTokens: cfg.Advisor.MaxOutputTokens,
	}, completer, nil)

	req := types.AdviceRequest{
		Symbol:   *symbol,
		Name:     *symbol,
		Strategy: llm.StrategyGrid,
		Snapshot: types.IndicatorSnapshot{
			Price: 100,
			RSI:   types.Ready(42),
			MA20:  types.Ready(101.5),
			MA60:  types.Ready(97.2),
		},
		Trend: types.TrendBullPullback,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	adv := advisor.Advise(ctx, req)
	out, _ := json.MarshalIndent(adv, "", "  ")
	fmt.Println(string(out))
	fmt.Printf("Outcome %s in %s\n", adv.Outcome, time.Since(start).Round(time.Millisecond))
	if adv.Outcome == types.OutcomeDegraded {
		os.Exit(2)
	}
}
