package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shy020501/Video-Automation/internal/config"
)

func TestNewWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	logger, err := New(Options{Level: "debug", Encoding: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Debug("rendering final video")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"rendering final video"`) {
		t.Errorf("expected JSON log line, got %q", data)
	}
}

func TestNewRejectsUnknownOptions(t *testing.T) {
	if _, err := New(Options{Encoding: "xml"}); err == nil {
		t.Errorf("expected error for unsupported encoding")
	}
	if _, err := New(Options{Level: "chatty"}); err == nil {
		t.Errorf("expected error for unsupported level")
	}
}

func TestNewFromConfig(t *testing.T) {
	if _, err := NewFromConfig(nil); err != nil {
		t.Fatalf("NewFromConfig(nil) failed: %v", err)
	}

	cfg := &config.Config{}
	cfg.Logger.Level = "warn"
	cfg.Logger.Encoding = "console"
	cfg.Logger.Development = true
	if _, err := NewFromConfig(cfg); err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
}
