package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "info", want: slog.LevelInfo},
		{in: "DEBUG", want: slog.LevelDebug},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "trace", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "warn", Format: FormatJSON})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("dropped")
	logger.Warn("duplicate identity", "identity", "u1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line at warn level, got %d: %q", len(lines), buf.String())
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["msg"] != "duplicate identity" || rec["identity"] != "u1" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("poll complete", "changes", 3)
	if !strings.Contains(buf.String(), "msg=\"poll complete\" changes=3") {
		t.Errorf("unexpected text output %q", buf.String())
	}
}

func TestNew_InvalidFormat(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, Options{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}
