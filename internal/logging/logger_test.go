package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Format: FormatJSON, Output: &buf})

	l.Debug("dropped debug")
	l.Info("dropped info")
	l.Warn("kept warn")
	l.Error("kept error")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "kept warn") {
		t.Errorf("first line should be the warn entry: %s", lines[0])
	}
}

func TestLoggerJSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})

	l.With(map[string]any{"component": "sweep"}).Infof("batch done", map[string]any{"count": 7})

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if entry.Message != "batch done" {
		t.Errorf("message = %q", entry.Message)
	}
	if entry.Fields["component"] != "sweep" {
		t.Errorf("component field missing: %v", entry.Fields)
	}
	if entry.Fields["count"] != float64(7) {
		t.Errorf("count field missing: %v", entry.Fields)
	}
}

func TestLoggerRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})

	l.WithRequestID("req-123").Info("handled")

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.RequestID != "req-123" {
		t.Errorf("requestId = %q, want req-123", entry.RequestID)
	}
}

func TestParseLevelAndFormat(t *testing.T) {
	if ParseLevel("error") != LevelError {
		t.Error("ParseLevel(error)")
	}
	if ParseLevel("bogus") != LevelInfo {
		t.Error("unknown level should default to info")
	}
	if ParseFormat("text") != FormatText {
		t.Error("ParseFormat(text)")
	}
	if ParseFormat("bogus") != FormatJSON {
		t.Error("unknown format should default to json")
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatText, Output: &buf})

	l.WithRequestID("abc").Info("plain text")

	out := buf.String()
	if !strings.Contains(out, "[info] plain text") {
		t.Errorf("unexpected text output: %q", out)
	}
	if !strings.Contains(out, "requestId=abc") {
		t.Errorf("request ID missing from text output: %q", out)
	}
}
