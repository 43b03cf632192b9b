package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"ai-grid-trader/internal/api"
	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/logger"
)

// DiscordLimit is the maximum message length Discord accepts.
const DiscordLimit = 2000

// ErrNoWebhook is returned when no webhook URL is configured.
var ErrNoWebhook = errors.New("discord webhook not configured")

// Discord posts reports to a channel webhook.
type Discord struct {
	webhook    string
	client     *api.Client
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
}

var _ interfaces.Notifier = (*Discord)(nil)

func NewDiscord(webhook string, opts ...api.ClientOption) *Discord {
	base := []api.ClientOption{api.WithTimeout(10 * time.Second)}
	return &Discord{
		webhook:    strings.TrimSpace(webhook),
		client:     api.NewClient(append(base, opts...)...),
		maxRetries: 4,
		sleep:      sleepCtx,
	}
}

type discordMessage struct {
	Content string `json:"content"`
}

// Notify sends text, split into messages under the length limit.
func (d *Discord) Notify(ctx context.Context, text string) error {
	if d.webhook == "" {
		return ErrNoWebhook
	}
	for i, chunk := range Split(text, DiscordLimit) {
		if err := d.send(ctx, chunk); err != nil {
			return fmt.Errorf("discord chunk %d: %w", i+1, err)
		}
	}
	return nil
}

// send posts one message. 429 waits Retry-After (or 2^attempt seconds), 5xx
// and transport errors back off 2^attempt seconds, other 4xx give up.
func (d *Discord) send(ctx context.Context, content string) error {
	var lastErr error
	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		_, err := d.client.POST(ctx, d.webhook, discordMessage{Content: content})
		if err == nil {
			return nil
		}
		lastErr = err

		wait := time.Duration(1<<attempt) * time.Second
		if se, ok := api.AsStatusError(err); ok {
			switch {
			case se.StatusCode == http.StatusTooManyRequests:
				if se.RetryAfter > 0 {
					wait = se.RetryAfter
				}
				logger.Warn(ctx, "Discord rate limited", "attempt", attempt, "wait", wait)
			case se.StatusCode >= 500:
				logger.Warn(ctx, "Discord server error", "status", se.StatusCode, "attempt", attempt)
			default:
				logger.Error(ctx, "Discord rejected message, not retrying", "status", se.StatusCode)
				return err
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt < d.maxRetries {
			if err := d.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", d.maxRetries, lastErr)
}

// Split breaks text into pieces of at most limit characters, preferring
// line boundaries.
func Split(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var (
		chunks []string
		cur    strings.Builder
		n      int
	)
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
			n = 0
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		ln := utf8.RuneCountInString(line)
		if n+ln > limit {
			flush()
		}
		for ln > limit {
			r := []rune(line)
			chunks = append(chunks, string(r[:limit]))
			line = string(r[limit:])
			ln -= limit
		}
		cur.WriteString(line)
		n += ln
	}
	flush()
	return chunks
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
