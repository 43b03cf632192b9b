package openai

import (
	"context"
	"errors"

	"ai-grid-trader/internal/api"
	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/llm"
	"ai-grid-trader/internal/trace"
	"ai-grid-trader/internal/types"
)

const defaultEndpoint = "https://api.openai.com/v1/chat/completions"

type Client struct {
	apiKey   string
	endpoint string
	http     *api.Client
}

var _ interfaces.Completer = (*Client)(nil)

// New creates a chat-completions completer. An empty endpoint selects the public API.
func New(apiKey, endpoint string, opts ...api.ClientOption) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{apiKey: apiKey, endpoint: endpoint, http: api.NewClient(opts...)}
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Complete(ctx context.Context, req types.CompletionRequest) (string, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	if c.apiKey == "" {
		return "", llm.ErrMissingAPIKey
	}

	body := map[string]any{
		"model":       req.Model,
		"messages":    []map[string]string{{"role": "user", "content": req.Prompt}},
		"temperature": req.Temperature,
	}
	if req.MaxOutputTokens > 0 {
		body["max_tokens"] = req.MaxOutputTokens
	}

	resp, err := c.http.POST(ctx, c.endpoint, body, map[string]string{"Authorization": "Bearer " + c.apiKey})
	if err != nil {
		return "", err
	}

	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := resp.ParseJSON(&r); err != nil {
		return "", err
	}
	if len(r.Choices) == 0 {
		return "", errors.New("no choices")
	}
	return r.Choices[0].Message.Content, nil
}
