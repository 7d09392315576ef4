package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"thumbconv/internal/config"
	"thumbconv/internal/logging"
	"thumbconv/internal/services"
)

func newFileLogger(t *testing.T, format, level string) func() string {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "logs", "thumbconv.log")
	noColor := false
	logger, err := logging.New(logging.Options{
		Format:      format,
		Level:       level,
		OutputPaths: []string{logPath},
		Color:       &noColor,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	read := func() string {
		content, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		return string(content)
	}
	logger.Info("first line", logging.String(logging.FieldComponent, "loader"), logging.Int("width", 512))
	logger.Debug("debug line")
	return read
}

func TestNewFromConfigConsole(t *testing.T) {
	cfg := config.Default()
	logger, err := logging.NewFromConfig(&cfg, false)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger instance")
	}
	if logger.Enabled(context.Background(), -4) {
		t.Fatal("expected debug disabled at info level")
	}

	verbose, err := logging.NewFromConfig(&cfg, true)
	if err != nil {
		t.Fatalf("NewFromConfig verbose returned error: %v", err)
	}
	if !verbose.Enabled(context.Background(), -4) {
		t.Fatal("expected verbose logger to enable debug")
	}
}

func TestConsoleLoggerFormatsComponentAndFields(t *testing.T) {
	read := newFileLogger(t, "console", "info")
	content := read()
	if !strings.Contains(content, "INFO loader: first line") {
		t.Fatalf("expected component prefix, got %q", content)
	}
	if !strings.Contains(content, "width=512") {
		t.Fatalf("expected key=value field, got %q", content)
	}
	if strings.Contains(content, "debug line") {
		t.Fatalf("expected debug suppressed at info level, got %q", content)
	}
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
	if strings.Contains(content, "\x1b[") {
		t.Fatalf("expected no ANSI colors in file output, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	read := newFileLogger(t, "console", "debug")
	content := read()
	if !strings.Contains(content, "debug line") {
		t.Fatalf("expected debug line, got %q", content)
	}
	if !strings.Contains(content, ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestNewJSONLogger(t *testing.T) {
	read := newFileLogger(t, "json", "info")
	line := strings.TrimSpace(strings.Split(read(), "\n")[0])
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, line)
	}
	if payload["level"] != "info" {
		t.Fatalf("unexpected level: %v", payload["level"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", payload)
	}
	if payload["component"] != "loader" {
		t.Fatalf("unexpected component: %v", payload["component"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ctx.log")
	noColor := false
	logger, err := logging.New(logging.Options{Level: "info", OutputPaths: []string{logPath}, Color: &noColor})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := context.Background()
	ctx = services.WithItemIndex(ctx, 3)
	ctx = services.WithStage(ctx, "resize")
	ctx = services.WithRequestID(ctx, "req-xyz")

	logging.WithContext(ctx, logger).Info("contextual log", logging.Error(errors.New("bad thing")))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	for _, want := range []string{"item_index=3", "stage=resize", "correlation_id=req-xyz", `error="bad thing"`} {
		if !strings.Contains(string(content), want) {
			t.Fatalf("expected %q in %q", want, content)
		}
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewComponentLogger(nil, "test")
	if logger.Enabled(context.Background(), 8) {
		t.Fatal("expected nop logger to be disabled")
	}
	logger.Error("ignored")
}
