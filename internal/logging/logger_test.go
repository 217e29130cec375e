package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json", Output: &buf})

	logger.Info("hello", "lane", "critical")

	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Errorf("expected JSON output, got %q", out)
	}
	if !strings.Contains(out, `"lane":"critical"`) {
		t.Errorf("expected lane attr, got %q", out)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Format: "text", Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn message should be logged")
	}
}

func TestSanitizer_RedactsKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "text", Output: &buf})

	secret := "sk-" + strings.Repeat("a", 30)
	logger.Error("provider rejected request", "detail", "api call with "+secret+" failed")

	out := buf.String()
	if strings.Contains(out, secret) {
		t.Error("API key leaked into log output")
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("expected redaction marker, got %q", out)
	}
}

func TestWithHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json", Output: &buf})

	logger.WithLane("standard").WithTask("t-1").WithAgent("a-1").Info("admitted")

	out := buf.String()
	for _, want := range []string{`"lane":"standard"`, `"task_id":"t-1"`, `"agent_id":"a-1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got %q", want, out)
		}
	}
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	logger.Info("discarded") // Must not panic
}
