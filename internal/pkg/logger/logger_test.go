package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func newBufferLogger(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: level, Format: "json", Output: &buf, ServiceName: "reelrender-test"}), &buf
}

func TestNewFormats(t *testing.T) {
	for _, format := range []string{"json", "text", "TEXT", ""} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Level: "info", Format: format, Output: &buf})
			log.Info("hello")
			if buf.Len() == 0 {
				t.Fatal("expected output")
			}
		})
	}
}

func TestJSONOutput(t *testing.T) {
	log, buf := newBufferLogger("debug")
	log.Info("render finished", "output", "out_1.mp4")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "render finished" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["output"] != "out_1.mp4" {
		t.Errorf("output = %v", entry["output"])
	}
	if entry["service"] != "reelrender-test" {
		t.Errorf("service = %v", entry["service"])
	}
}

func TestLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		logFn     func(*Logger)
		shouldLog bool
	}{
		{"info logs info", "info", func(l *Logger) { l.Info("x") }, true},
		{"info drops debug", "info", func(l *Logger) { l.Debug("x") }, false},
		{"debug logs debug", "debug", func(l *Logger) { l.Debug("x") }, true},
		{"error drops warn", "error", func(l *Logger) { l.Warn("x") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newBufferLogger(tt.level)
			tt.logFn(log)
			if (buf.Len() > 0) != tt.shouldLog {
				t.Errorf("shouldLog=%v, got output %q", tt.shouldLog, buf.String())
			}
		})
	}
}

func TestScopedLoggers(t *testing.T) {
	tests := []struct {
		name string
		fn   func(*Logger) *Logger
		want string
	}{
		{"request", func(l *Logger) *Logger { return l.WithRequestID("req-123") }, `"request_id":"req-123"`},
		{"job", func(l *Logger) *Logger { return l.WithJobID("job-456") }, `"job_id":"job-456"`},
		{"component", func(l *Logger) *Logger { return l.WithComponent("render") }, `"component":"render"`},
		{"error", func(l *Logger) *Logger { return l.WithError(context.DeadlineExceeded) }, "deadline exceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newBufferLogger("info")
			tt.fn(log).Info("x")
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected %s in %s", tt.want, buf.String())
			}
		})
	}
}

func TestWithNilError(t *testing.T) {
	log, _ := newBufferLogger("info")
	if log.WithError(nil) != log {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestFromContext(t *testing.T) {
	log, buf := newBufferLogger("info")

	ctx := ContextWithRequestID(context.Background(), "req-abc")
	ctx = ContextWithJobID(ctx, "job-xyz")
	log.FromContext(ctx).Info("x")

	out := buf.String()
	if !strings.Contains(out, "req-abc") || !strings.Contains(out, "job-xyz") {
		t.Errorf("expected both ids in %s", out)
	}
	if JobIDFromContext(ctx) != "job-xyz" {
		t.Errorf("JobIDFromContext = %q", JobIDFromContext(ctx))
	}
	if JobIDFromContext(context.Background()) != "" {
		t.Error("expected empty job id for bare context")
	}
}

func TestLogError(t *testing.T) {
	log, buf := newBufferLogger("info")

	log.LogError(context.Background(), "ignored", nil)
	if buf.Len() != 0 {
		t.Fatalf("nil error should not log, got %s", buf.String())
	}

	log.LogError(context.Background(), "cleanup failed", context.Canceled)
	out := buf.String()
	if !strings.Contains(out, "cleanup failed") || !strings.Contains(out, "logger_test.go") {
		t.Errorf("expected message and source in %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{" Debug ", "DEBUG"},
		{"info", "INFO"},
		{"warning", "WARN"},
		{"ERROR", "ERROR"},
		{"verbose", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input).String(); got != tt.expected {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.expected)
			}
		})
	}
}
