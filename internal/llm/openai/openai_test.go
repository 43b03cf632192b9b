package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ai-grid-trader/internal/api"
	"ai-grid-trader/internal/llm"
	"ai-grid-trader/internal/types"
)

func TestCompleteSendsChatRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("authorization header = %q", r.Header.Get("Authorization"))
		}
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			Temperature float64 `json:"temperature"`
			MaxTokens   int     `json:"max_tokens"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Model != "gpt-4o-mini" || body.MaxTokens != 256 || body.Temperature != 0.2 {
			t.Errorf("unexpected request %+v", body)
		}
		if len(body.Messages) != 1 || body.Messages[0].Role != "user" || body.Messages[0].Content != "hello" {
			t.Errorf("unexpected messages %+v", body.Messages)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"decision\":\"buy\"}"}}]}`))
	}))
	defer srv.Close()

	text, err := New("k", srv.URL).Complete(context.Background(), types.CompletionRequest{
		Model: "gpt-4o-mini", Prompt: "hello", Temperature: 0.2, MaxOutputTokens: 256,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != `{"decision":"buy"}` {
		t.Errorf("text = %q", text)
	}
}

func TestCompleteSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"model_not_found"}}`))
	}))
	defer srv.Close()

	_, err := New("k", srv.URL).Complete(context.Background(), types.CompletionRequest{Model: "gemini-2.0-flash", Prompt: "p"})
	se, ok := api.AsStatusError(err)
	if !ok || se.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	if _, err := New("k", srv.URL).Complete(context.Background(), types.CompletionRequest{Model: "m"}); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestCompleteWithoutKey(t *testing.T) {
	_, err := New("", "http://127.0.0.1:1").Complete(context.Background(), types.CompletionRequest{Model: "m"})
	if !errors.Is(err, llm.ErrMissingAPIKey) {
		t.Errorf("err = %v, want ErrMissingAPIKey", err)
	}
}
