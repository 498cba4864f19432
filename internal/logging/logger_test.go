package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Info("agent cycle complete", "claimed", 2)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "drover.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "agent cycle complete" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["claimed"] != float64(2) {
		t.Errorf("claimed = %v", entry["claimed"])
	}
}

func TestChildLoggerAttrs(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	child := logger.WithAgent("local").WithChannel("email").WithItem("email-20260101T000000-hi")
	child.Debug("publishing")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "drover.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["agent"] != "local" || entry["channel"] != "email" {
		t.Errorf("missing child attrs: %v", entry)
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelWarn)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Info("should be filtered")
	logger.Warn("should appear")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "drover.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	out := string(data)
	if strings.Contains(out, "should be filtered") {
		t.Error("INFO message leaked through WARN level")
	}
	if !strings.Contains(out, "should appear") {
		t.Error("WARN message missing")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Info("discarded")
	logger.WithAgent("x").Error("also discarded")
	// No file, Close is a no-op.
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
