package internal

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLogger_JSONRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "production", "warn")

	logger.Info("dropped")
	logger.Warn("provider rejected key", "api_key", "sk-live-123", "model", "gpt-4o")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("expected a single JSON record, got %q: %v", buf.String(), err)
	}
	if rec["api_key"] != "[REDACTED]" {
		t.Errorf("api_key = %v", rec["api_key"])
	}
	if rec["model"] != "gpt-4o" || rec["service"] != "govai-console" {
		t.Errorf("record = %v", rec)
	}
}

func TestNewLogger_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "development", "verbose")

	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug should be filtered at info, got %q", buf.String())
	}
	logger.Info("shown")
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Error("info record missing")
	}
}
