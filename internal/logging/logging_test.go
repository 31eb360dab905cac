package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewNonTerminalWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", &buf)

	logger.Debug("hidden")
	logger.Info("resolved", "conversation", "c1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not a single JSON line: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "resolved" || rec["conversation"] != "c1" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestContextLogger(t *testing.T) {
	if From(context.Background()) != slog.Default() {
		t.Error("From on empty context should return slog.Default")
	}
	logger := New("debug", &bytes.Buffer{})
	ctx := With(context.Background(), logger)
	if From(ctx) != logger {
		t.Error("From did not return the attached logger")
	}
}
