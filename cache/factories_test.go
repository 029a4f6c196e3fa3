package cache

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	if logger == nil {
		t.Fatal("Logger should not be nil")
	}

	// These should not panic - they're no-ops
	logger.Debug("test message", "key", "value")
	logger.Info("test message", "key", "value")
	logger.Warn("test message", "key", "value")
	logger.Error("test message", "key", "value")

	// Test with no args
	logger.Debug("test message")
	logger.Info("test message")
	logger.Warn("test message")
	logger.Error("test message")

	// Test with nil
	logger.Debug("test message", nil)
	logger.Info("test message", nil)
	logger.Warn("test message", nil)
	logger.Error("test message", nil)
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create pipe: %v", err)
	}
	os.Stdout = w
	fn()
	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func TestConsoleLogger(t *testing.T) {
	logger := NewConsoleLogger("pod-1")

	tests := []struct {
		level string
		log   func(msg string, args ...any)
	}{
		{"[DEBUG]", logger.Debug},
		{"[INFO]", logger.Info},
		{"[WARN]", logger.Warn},
		{"[ERROR]", logger.Error},
	}

	for _, tt := range tests {
		output := captureStdout(t, func() { tt.log("fetch settled", "seq", 3) })
		for _, want := range []string{tt.level, "pod-1", "fetch settled", "seq 3"} {
			if !strings.Contains(output, want) {
				t.Errorf("Expected %q in output, got: %s", want, output)
			}
		}
	}

	output := captureStdout(t, func() { logger.Info("message without args") })
	if strings.TrimSpace(output) != "[INFO] pod-1: message without args" {
		t.Errorf("Unexpected output without args: %q", output)
	}
}

func TestJSONMarshaller(t *testing.T) {
	marshaller := NewJSONMarshaller()

	data, err := marshaller.Marshal(persistedEntry{Key: "v1/data/default/posts/list", Data: []byte(`[1]`)})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var back persistedEntry
	if err := marshaller.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if back.Key != "v1/data/default/posts/list" || string(back.Data) != "[1]" {
		t.Fatalf("Unexpected entry after round trip: %+v", back)
	}

	var result map[string]any
	if err := marshaller.Unmarshal([]byte("invalid json"), &result); err == nil {
		t.Fatal("Expected error for invalid JSON")
	}
}

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(&buf, slog.LevelInfo)

	logger.Debug("hidden message")
	logger.Info("fetch completed", "key", "v1/data/default/posts")
	logger.Error("fetch failed", "attempt", 2)

	output := buf.String()
	if strings.Contains(output, "hidden message") {
		t.Errorf("Debug records should be filtered at info level, got: %s", output)
	}
	if !strings.Contains(output, "fetch completed") || !strings.Contains(output, "key=v1/data/default/posts") {
		t.Errorf("Expected info record with key attribute, got: %s", output)
	}
	if !strings.Contains(output, "level=ERROR") || !strings.Contains(output, "attempt=2") {
		t.Errorf("Expected error record with attempt attribute, got: %s", output)
	}
}

func TestWrapSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := WrapSlog(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	logger.Debug("debug message", "seq", 1)
	logger.Warn("warn message")

	output := buf.String()
	if !strings.Contains(output, `"msg":"debug message"`) || !strings.Contains(output, `"seq":1`) {
		t.Errorf("Expected JSON debug record, got: %s", output)
	}
	if !strings.Contains(output, `"level":"WARN"`) {
		t.Errorf("Expected JSON warn record, got: %s", output)
	}
}
