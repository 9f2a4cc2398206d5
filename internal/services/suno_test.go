package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shy020501/Video-Automation/internal/models"
)

func TestGenerateBGM(t *testing.T) {
	var polls int32
	var payload sunoGenerateRequest

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer suno-test" {
			t.Errorf("missing bearer token")
		}
		switch r.URL.Path {
		case "/generate":
			_ = json.NewDecoder(r.Body).Decode(&payload)
			_, _ = w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"task-42"}}`))
		case "/generate/record-info":
			if r.URL.Query().Get("taskId") != "task-42" {
				t.Errorf("taskId = %q", r.URL.Query().Get("taskId"))
			}
			if atomic.AddInt32(&polls, 1) < 3 {
				_, _ = w.Write([]byte(`{"code":200,"data":{"taskId":"task-42","status":"PENDING"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"code":200,"data":{"taskId":"task-42","status":"SUCCESS","response":{"sunoData":[{"id":"a","audioUrl":"` + server.URL + `/audio/a.mp3"},{"id":"b","audioUrl":"` + server.URL + `/audio/b.mp3"}]}}}`))
		case "/audio/a.mp3":
			_, _ = w.Write([]byte("ID3-track-a"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	svc := NewSunoService("suno-test", server.URL, RetryPolicy{MaxAttempts: 10}, nil)

	data, err := svc.GenerateBGM(context.Background(), "chef", 17.5)
	if err != nil {
		t.Fatalf("GenerateBGM failed: %v", err)
	}
	if string(data) != "ID3-track-a" {
		t.Errorf("expected first track, got %q", data)
	}
	if polls != 3 {
		t.Errorf("polls = %d, want 3", polls)
	}

	if !payload.CustomMode || !payload.Instrumental || payload.Model != "V4_5ALL" {
		t.Errorf("unexpected payload flags: %+v", payload)
	}
	if payload.Title != "chef bgm" || payload.Style != "hybrid electronic cinematic short" {
		t.Errorf("unexpected title/style: %q / %q", payload.Title, payload.Style)
	}
	if !strings.Contains(payload.Prompt, "about 18 seconds") {
		t.Errorf("prompt should carry the rounded-up duration: %q", payload.Prompt)
	}
	if payload.StyleWeight != 0.65 || payload.WeirdnessConstraint != 0.5 || payload.AudioWeight != 0.65 {
		t.Errorf("unexpected weights: %+v", payload)
	}
}

func TestGenerateBGMTimeout(t *testing.T) {
	var polls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/generate" {
			_, _ = w.Write([]byte(`{"data":{"taskId":"task-1"}}`))
			return
		}
		atomic.AddInt32(&polls, 1)
		_, _ = w.Write([]byte(`{"data":{"status":"PENDING"}}`))
	}))
	defer server.Close()

	svc := NewSunoService("suno-test", server.URL, RetryPolicy{MaxAttempts: 4}, nil)

	_, err := svc.GenerateBGM(context.Background(), "chef", 10)
	if !errors.Is(err, models.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if polls != 4 {
		t.Errorf("polls = %d, want 4", polls)
	}
}

func TestGenerateBGMHTTPErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"submit rejected", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"msg":"insufficient credits"}`))
		}},
		{"poll rejected", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/generate" {
				_, _ = w.Write([]byte(`{"data":{"taskId":"task-1"}}`))
				return
			}
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"no task id", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":400,"msg":"bad prompt","data":null}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			svc := NewSunoService("suno-test", server.URL, RetryPolicy{MaxAttempts: 3}, nil)
			if _, err := svc.GenerateBGM(context.Background(), "chef", 10); !errors.Is(err, models.ErrExternalService) {
				t.Errorf("expected external service error, got %v", err)
			}
		})
	}
}
