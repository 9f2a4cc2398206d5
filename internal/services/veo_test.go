package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shy020501/Video-Automation/internal/models"
)

func writeStill(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chef_pig.jpg")
	if err := os.WriteFile(path, []byte("\xff\xd8\xff\xe0 fake jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVeoGenerateVideo(t *testing.T) {
	var submitted map[string]any
	polls := 0
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "g-key" {
			t.Errorf("missing api key header on %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1beta/models/veo-test:predictLongRunning":
			_ = json.NewDecoder(r.Body).Decode(&submitted)
			_, _ = w.Write([]byte(`{"name":"models/veo-test/operations/op1","done":false}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1beta/models/veo-test/operations/op1":
			polls++
			if polls < 2 {
				_, _ = w.Write([]byte(`{"name":"models/veo-test/operations/op1","done":false}`))
				return
			}
			_, _ = w.Write([]byte(`{"name":"models/veo-test/operations/op1","done":true,"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"` +
				server.URL + `/v1beta/files/abc123:download?alt=media"}}]}}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1beta/files/abc123:download":
			w.Header().Set("Content-Type", "video/mp4")
			_, _ = w.Write([]byte("mp4-bytes"))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	svc := NewVeoService("g-key", "veo-test", server.URL, nil)
	svc.poll = RetryPolicy{MaxAttempts: 5}

	data, err := svc.GenerateVideo(context.Background(), "chef", "pig", writeStill(t))
	if err != nil {
		t.Fatalf("GenerateVideo failed: %v", err)
	}
	if string(data) != "mp4-bytes" {
		t.Errorf("data = %q", data)
	}
	if polls != 2 {
		t.Errorf("polls = %d, want 2", polls)
	}

	params, _ := submitted["parameters"].(map[string]any)
	if params["aspectRatio"] != "9:16" || params["durationSeconds"] != float64(4) || params["resolution"] != "720p" {
		t.Errorf("unexpected parameters %v", params)
	}
	instances, _ := submitted["instances"].([]any)
	if len(instances) != 1 {
		t.Fatalf("instances = %v", submitted["instances"])
	}
	instance, _ := instances[0].(map[string]any)
	if prompt, _ := instance["prompt"].(string); !strings.Contains(prompt, "pig") {
		t.Errorf("prompt not substituted: %q", prompt)
	}
	if instance["image"] == nil {
		t.Errorf("first frame not sent")
	}
}

func TestVeoSafetyFiltered(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"models/veo-test/operations/op2","done":true,"response":{"generateVideoResponse":` +
			`{"raiMediaFilteredCount":1,"raiMediaFilteredReasons":["unsafe content"]}}}`))
	}))
	defer server.Close()

	svc := NewVeoService("g-key", "veo-test", server.URL, nil)
	svc.poll = RetryPolicy{MaxAttempts: 1}

	_, err := svc.GenerateVideo(context.Background(), "chef", "pig", writeStill(t))
	if !errors.Is(err, models.ErrExternalService) || !strings.Contains(err.Error(), "unsafe content") {
		t.Errorf("expected safety filter error, got %v", err)
	}
}

func TestVeoPollTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"models/veo-test/operations/op3","done":false}`))
	}))
	defer server.Close()

	svc := NewVeoService("g-key", "veo-test", server.URL, nil)
	svc.poll = RetryPolicy{MaxAttempts: 2}

	_, err := svc.GenerateVideo(context.Background(), "chef", "pig", writeStill(t))
	if !errors.Is(err, models.ErrTimeout) {
		t.Errorf("expected timeout, got %v", err)
	}
}
