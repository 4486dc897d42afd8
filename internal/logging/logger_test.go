package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		enable   slog.Level
		disabled slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug, slog.LevelDebug - 4},
		{"warn level", "WARN", slog.LevelWarn, slog.LevelInfo},
		{"error level", "error", slog.LevelError, slog.LevelWarn},
		{"default info", "", slog.LevelInfo, slog.LevelDebug},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			if !logger.Enabled(ctx, tt.enable) {
				t.Fatalf("expected level %s to be enabled", tt.enable)
			}
			if logger.Enabled(ctx, tt.disabled) {
				t.Fatalf("expected level %s to be disabled", tt.disabled)
			}
		})
	}
}

func TestWithRequestIDAndCallID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("info", &buf).WithRequestID("req-1").WithCallID("call-9")
	logger.Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["request_id"] != "req-1" {
		t.Fatalf("request_id = %v", line["request_id"])
	}
	if line["call_id"] != "call-9" {
		t.Fatalf("call_id = %v", line["call_id"])
	}
}

func TestEmptyIDsReturnSameLogger(t *testing.T) {
	logger := Default()
	if logger.WithRequestID("") != logger {
		t.Fatal("expected same logger for empty request id")
	}
	if logger.WithCallID("") != logger {
		t.Fatal("expected same logger for empty call id")
	}
}
