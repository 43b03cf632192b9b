package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"ai-grid-trader/internal/api"
	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/llm"
	"ai-grid-trader/internal/trace"
	"ai-grid-trader/internal/types"
)

const DefaultEndpoint = "https://generativelanguage.googleapis.com/v1"

// Client calls the generateContent endpoint of the Gemini API.
type Client struct {
	apiKey string
	http   *api.Client
}

var _ interfaces.Completer = (*Client)(nil)

// New creates a Gemini completer. An empty endpoint selects the public API.
// Per-call deadlines come from the caller's context.
func New(apiKey, endpoint string, opts ...api.ClientOption) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	base := []api.ClientOption{
		api.WithBaseURL(strings.TrimRight(endpoint, "/")),
		api.WithTimeout(60 * time.Second),
	}
	return &Client{
		apiKey: apiKey,
		http:   api.NewClient(append(base, opts...)...),
	}
}

func (c *Client) Name() string { return "gemini" }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

// Complete sends one prompt and returns the first candidate's text.
func (c *Client) Complete(ctx context.Context, req types.CompletionRequest) (string, error) {
	ctx, span := trace.StartSpan(ctx, "gemini-api-call")
	defer span.End()

	if c.apiKey == "" {
		return "", llm.ErrMissingAPIKey
	}

	body := generateRequest{
		Contents: []content{{Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxOutputTokens,
		},
	}
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(req.Model))

	resp, err := c.http.POST(ctx, path, body, map[string]string{"x-goog-api-key": c.apiKey})
	if err != nil {
		return "", err
	}

	var r generateResponse
	if err := resp.ParseJSON(&r); err != nil {
		return "", err
	}
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini: response has no candidates")
	}
	return r.Candidates[0].Content.Parts[0].Text, nil
}
