package claude

import (
	"context"
	"errors"
	"os"
	"strings"

	"ai-grid-trader/internal/api"
	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/llm"
	"ai-grid-trader/internal/trace"
	"ai-grid-trader/internal/types"
)

const (
	defaultEndpoint  = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
	systemPrompt     = "You are a disciplined equities advisor. Output STRICT JSON only."
)

// Client implements the Completer interface using the Anthropic Messages API
type Client struct {
	apiKey   string
	endpoint string
	http     *api.Client
}

var _ interfaces.Completer = (*Client)(nil)

// New creates a Claude-based completer. An empty endpoint falls back to
// CLAUDE_API_ENDPOINT, then the public API.
func New(apiKey, endpoint string, opts ...api.ClientOption) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("CLAUDE_API_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{apiKey: apiKey, endpoint: endpoint, http: api.NewClient(opts...)}
}

func (c *Client) Name() string { return "claude" }

// Complete sends the prompt as a single user turn
func (c *Client) Complete(ctx context.Context, req types.CompletionRequest) (string, error) {
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	if c.apiKey == "" {
		return "", llm.ErrMissingAPIKey
	}

	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	body := map[string]any{
		"model":       req.Model,
		"system":      systemPrompt,
		"messages":    []map[string]string{{"role": "user", "content": req.Prompt}},
		"max_tokens":  maxTokens,
		"temperature": req.Temperature,
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}

	resp, err := c.http.POST(ctx, c.endpoint, body, headers)
	if err != nil {
		return "", err
	}

	var r struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := resp.ParseJSON(&r); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" || block.Type == "" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("claude: response has no text content")
	}
	return b.String(), nil
}
