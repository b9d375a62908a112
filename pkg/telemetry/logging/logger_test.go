package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// TestNew_Defaults tests that empty config produces an info-level JSON logger.
func TestNew_Defaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if logger.Level() != slog.LevelInfo {
		t.Errorf("Expected default level info, got %v", logger.Level())
	}

	logger.Slog().Info("hello", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "hello" {
		t.Errorf("Expected msg hello, got %v", entry["msg"])
	}
	if entry["key"] != "value" {
		t.Errorf("Expected key=value, got %v", entry["key"])
	}
}

// TestNew_InvalidLevel tests that an unknown level is rejected.
func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	if err == nil {
		t.Fatal("Expected error for invalid level")
	}
}

// TestNew_InvalidFormat tests that an unknown format is rejected.
func TestNew_InvalidFormat(t *testing.T) {
	_, err := New(Config{Format: "xml"})
	if err == nil {
		t.Fatal("Expected error for invalid format")
	}
}

// TestLogger_TextFormat tests text output.
func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Slog().Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("Expected text output, got %q", buf.String())
	}
}

// TestLogger_SetLevel tests runtime level changes.
func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Slog().Debug("dropped")
	if buf.Len() != 0 {
		t.Errorf("Expected debug to be suppressed at info level, got %q", buf.String())
	}

	if err := logger.SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel failed: %v", err)
	}
	logger.Slog().Debug("kept")
	if buf.Len() == 0 {
		t.Error("Expected debug output after SetLevel(debug)")
	}

	if err := logger.SetLevel("shout"); err == nil {
		t.Error("Expected error for invalid level")
	}
}
