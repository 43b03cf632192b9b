package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-grid-trader/internal/engine"
	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/logger"
	"ai-grid-trader/internal/report"
	"ai-grid-trader/internal/risk"
	"ai-grid-trader/internal/trace"
	"ai-grid-trader/internal/tradelog"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

// bot ties one scheduled cycle to its report and the end-of-day jobs.
type bot struct {
	runner    *engine.Runner
	composer  *report.Composer
	notifier  interfaces.Notifier
	eod       interfaces.EodSummarizer
	journal   *tradelog.Journal
	retention int
}

func (b *bot) runCycle(ctx context.Context) {
	cycle, err := b.runner.RunCycle(ctx)
	if errors.Is(err, engine.ErrCycleInProgress) {
		return
	}
	if err != nil {
		logger.ErrorWithErr(ctx, "Decision cycle interrupted", err)
	}
	if cycle == nil || len(cycle.Results) == 0 {
		return
	}
	if err := b.notifier.Notify(ctx, b.composer.Compose(cycle)); err != nil {
		logger.ErrorWithErr(ctx, "Failed to deliver cycle report", err, "cycle_id", cycle.ID)
	}
}

func (b *bot) runEOD(ctx context.Context) {
	if ok, _ := b.eod.ShouldRunNow(); ok {
		if p, err := b.eod.SummarizeToday(); err != nil {
			logger.ErrorWithErr(ctx, "EOD summary failed", err)
		} else if p != "" {
			logger.Info(ctx, "EOD CSV written", "path", p)
		}
	}
	if b.retention > 0 {
		if err := b.journal.CompressOlder(b.retention); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}

func serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithErr(ctx, "Metrics server stopped", err, "addr", addr)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info(ctx, "Metrics endpoint listening", "addr", addr)
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	if err := initializeSystem(); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		os.Exit(1)
	}
	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - grid fills are simulated")
	}

	ledger, err := initializeLedger(ctx, cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to open grid ledger", err, "path", cfg.Grid.StateFile)
		os.Exit(1)
	}

	journal, db, sinks := initializeSinks(ctx, cfg)
	if db != nil {
		defer db.Close()
	}

	sell, systemic := riskTerms(cfg)
	runner := initializeEngine(cfg, engine.Deps{
		Market:  initializeMarketData(ctx, cfg),
		Context: initializeContext(ctx, cfg),
		Advisor: initializeAdvisor(ctx, cfg),
		Gate:    risk.NewGate(sell, systemic),
		Ledger:  ledger,
		Sinks:   sinks,
	})

	b := &bot{
		runner:    runner,
		composer:  report.NewComposer(cfg.Notify.Title, cfg.Grid.Capital),
		notifier:  initializeNotifier(ctx, cfg),
		eod:       initializeEOD(cfg, journal),
		journal:   journal,
		retention: cfg.DecisionLog.RetentionDays,
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = trace.Shutdown(shutdownCtx)
		_ = logger.Shutdown(shutdownCtx)
	}()

	if *once {
		b.runCycle(ctx)
		return
	}

	serveMetrics(ctx, cfg.Metrics.Addr)

	loc, _ := cfg.Location()
	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := c.AddFunc(cfg.Schedule.Cron, func() { b.runCycle(ctx) }); err != nil {
		logger.ErrorWithErr(ctx, "Invalid cycle schedule", err, "cron", cfg.Schedule.Cron)
		os.Exit(1)
	}
	if _, err := c.AddFunc(cfg.Schedule.EODCron, func() { b.runEOD(ctx) }); err != nil {
		logger.ErrorWithErr(ctx, "Invalid EOD schedule", err, "cron", cfg.Schedule.EODCron)
		os.Exit(1)
	}
	c.Start()

	logger.Info(ctx, "Bot started",
		"schedule", cfg.Schedule.Cron,
		"timezone", cfg.Schedule.Timezone,
		"symbols", runner.Symbols(),
	)
	if cfg.Schedule.RunOnStart {
		go b.runCycle(ctx)
	}

	<-ctx.Done()
	logger.Info(context.Background(), "Shutting down...")

	select {
	case <-c.Stop().Done():
	case <-time.After(30 * time.Second):
		logger.Warn(context.Background(), "Timed out waiting for the running cycle")
	}
	b.runEOD(context.Background())
}
