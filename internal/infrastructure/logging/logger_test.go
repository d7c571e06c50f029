package logging

import (
	"log/slog"
	"testing"

	"github.com/velagate/velagate-core/internal/infrastructure/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LoggingConfig
	}{
		{
			name: "json stdout",
			cfg:  config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		},
		{
			name: "text stderr",
			cfg:  config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"},
		},
		{
			name: "unknown values fall back",
			cfg:  config.LoggingConfig{Level: "chatty", Format: "yaml", Output: "syslog"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.cfg, "1.0.0")
			if logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.expected {
			t.Errorf("parseLevel(%q) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}

func TestWith(t *testing.T) {
	logger := Default()
	child := logger.With("component", "ingest")
	if child == nil {
		t.Fatal("expected non-nil child logger")
	}
	if child == logger {
		t.Error("With should return a new logger")
	}
}
