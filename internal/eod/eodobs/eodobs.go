package eodobs

import (
	"context"
	"time"

	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/logger"
	"ai-grid-trader/internal/trace"
)

type observableEodSummarizer struct {
	summarizer interfaces.EodSummarizer
}

var _ interfaces.EodSummarizer = (*observableEodSummarizer)(nil)

func Wrap(summarizer interfaces.EodSummarizer) interfaces.EodSummarizer {
	return &observableEodSummarizer{
		summarizer: summarizer,
	}
}

// summarize wraps one summary run in a span and reports the csv path.
func summarize(spanName, day string, run func() (string, error)) (string, error) {
	ctx, span := trace.StartSpan(context.Background(), spanName)
	defer span.End()

	start := time.Now()
	csvPath, err := run()
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 2, "EOD summary failed", err, "date", day, "duration_ms", elapsed)
		return "", err
	}
	if csvPath == "" {
		logger.InfoSkip(ctx, 2, "No grid fills or releases for EOD summary", "date", day)
		return "", nil
	}
	logger.InfoSkip(ctx, 2, "EOD summary written", "date", day, "csv_path", csvPath, "duration_ms", elapsed)
	return csvPath, nil
}

func (oes *observableEodSummarizer) SummarizeDay(t time.Time) (string, error) {
	return summarize("eod.SummarizeDay", t.Format("2006-01-02"), func() (string, error) {
		return oes.summarizer.SummarizeDay(t)
	})
}

func (oes *observableEodSummarizer) SummarizeToday() (string, error) {
	return summarize("eod.SummarizeToday", "today", oes.summarizer.SummarizeToday)
}

func (oes *observableEodSummarizer) ShouldRunNow() (bool, string) {
	ctx, span := trace.StartSpan(context.Background(), "eod.ShouldRunNow")
	defer span.End()

	shouldRun, csvPath := oes.summarizer.ShouldRunNow()
	logger.DebugSkip(ctx, 1, "EOD check completed",
		"should_run", shouldRun,
		"csv_path", csvPath,
	)
	return shouldRun, csvPath
}
