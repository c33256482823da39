package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerLevels(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger(Options{Env: "production", Level: "warn"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("info should be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Fatalf("warn should be enabled")
	}

	dev, err := NewLogger(Options{Env: "dev"})
	if err != nil {
		t.Fatalf("NewLogger(dev): %v", err)
	}
	if !dev.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("development logger should log debug")
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := NewLogger(Options{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestContextLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))
	ctx = WithFields(ctx, zap.String("request_id", "abc"))

	L(ctx).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["request_id"]; got != "abc" {
		t.Fatalf("request_id field missing: %v", entries[0].ContextMap())
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	t.Parallel()

	if FromContext(context.Background()) != DefaultLogger() {
		t.Fatalf("expected default logger for bare context")
	}
}
