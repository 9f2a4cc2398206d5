package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/shy020501/Video-Automation/internal/models"
)

func TestGenerateEntries(t *testing.T) {
	var gotPrompt, gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		var req openai.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		if len(req.Messages) > 0 {
			gotPrompt = req.Messages[0].Content
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  {\"chef\": {\"animals\": [\"pig\"], \"used\": false}}  "}}]}`))
	}))
	defer server.Close()

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = server.URL
	svc := NewOpenAIServiceWithConfig(cfg, "", nil)

	raw, err := svc.GenerateEntries(context.Background(), []string{"pilot", "nurse"})
	if err != nil {
		t.Fatalf("GenerateEntries failed: %v", err)
	}
	if raw != `{"chef": {"animals": ["pig"], "used": false}}` {
		t.Errorf("raw = %q", raw)
	}
	if gotModel != "gpt-5-nano" {
		t.Errorf("model = %q", gotModel)
	}
	if !strings.Contains(gotPrompt, "pilot, nurse") {
		t.Errorf("prompt should list existing jobs, got %q", gotPrompt)
	}
}

func TestGenerateEntriesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer server.Close()

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = server.URL
	svc := NewOpenAIServiceWithConfig(cfg, "gpt-5-nano", nil)

	_, err := svc.GenerateEntries(context.Background(), nil)
	if !errors.Is(err, models.ErrExternalService) {
		t.Errorf("expected external service error, got %v", err)
	}
}
