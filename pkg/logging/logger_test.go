package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger("test-component", Options{Dir: dir, Level: LevelDebug})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.component != "test-component" {
		t.Errorf("Expected component 'test-component', got %q", logger.component)
	}
	if logger.SessionID() == "" {
		t.Error("Expected non-empty session ID")
	}
	if filepath.Dir(logger.LogPath()) != dir {
		t.Errorf("Expected log file in %s, got %s", dir, logger.LogPath())
	}
	if _, err := os.Stat(logger.LogPath()); os.IsNotExist(err) {
		t.Errorf("Log file does not exist at %s", logger.LogPath())
	}
}

func TestLoggerFormatting(t *testing.T) {
	logger, err := NewLogger("test", Options{Dir: t.TempDir(), Level: LevelDebug})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Debugf("Debug message %d", 1)
	logger.Infof("Info message")
	logger.Warnf("Warning message")
	logger.Errorf("Error message")
	if err := logger.Close(); err != nil {
		t.Fatalf("Failed to close logger: %v", err)
	}

	content, err := os.ReadFile(logger.LogPath())
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	logContent := string(content)

	expectedPatterns := []string{
		"[test] [DEBUG] Debug message 1",
		"[test] [INFO] Info message",
		"[test] [WARN] Warning message",
		"[test] [ERROR] Error message",
	}
	for _, pattern := range expectedPatterns {
		if !strings.Contains(logContent, pattern) {
			t.Errorf("Log content missing expected pattern: %q\nContent:\n%s", pattern, logContent)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("filter", &buf, LevelWarn)

	logger.Debugf("hidden debug")
	logger.Infof("hidden info")
	logger.Warnf("shown warn")
	logger.Errorf("shown error")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected messages below WARN to be dropped, got:\n%s", out)
	}
	if !strings.Contains(out, "shown warn") || !strings.Contains(out, "shown error") {
		t.Errorf("Expected WARN and ERROR messages, got:\n%s", out)
	}
}

func TestWithSharesOutput(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWriterLogger("component1", &buf, LevelInfo)
	child := parent.With("component2")

	parent.Infof("from parent")
	child.Infof("from child")

	if parent.SessionID() != child.SessionID() {
		t.Errorf("Expected same session ID, got %q and %q", parent.SessionID(), child.SessionID())
	}
	out := buf.String()
	if !strings.Contains(out, "[component1] [INFO] from parent") {
		t.Error("Log missing component1 entries")
	}
	if !strings.Contains(out, "[component2] [INFO] from child") {
		t.Error("Log missing component2 entries")
	}
}

func TestNopAndNil(t *testing.T) {
	Nop().Errorf("dropped")

	var logger *Logger
	logger.Infof("nil loggers are silent")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "", want: LevelInfo},
		{in: "debug", want: LevelDebug},
		{in: " INFO ", want: LevelInfo},
		{in: "warning", want: LevelWarn},
		{in: "error", want: LevelError},
		{in: "verbose", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseLevel(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLevel(%q) unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestLoggerClose(t *testing.T) {
	logger, err := NewLogger("test", Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	if err := logger.Close(); err != nil {
		t.Errorf("First close failed: %v", err)
	}
	// Close again should be safe
	if err := logger.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}

func TestLogPathFormat(t *testing.T) {
	logger, err := NewLogger("test", Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	// <session-id>-marker.log
	fileName := filepath.Base(logger.LogPath())
	if !strings.HasSuffix(fileName, "-marker.log") {
		t.Errorf("Expected log file to end with '-marker.log', got %q", fileName)
	}
	sessionPart := strings.TrimSuffix(fileName, "-marker.log")
	if _, err := uuid.Parse(sessionPart); err != nil {
		t.Errorf("Expected session ID part to be a UUID, got %q: %v", sessionPart, err)
	}
}

func TestNewLoggerFallback(t *testing.T) {
	// A regular file where the log directory should be.
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	logger, err := NewLogger("test", Options{Dir: filepath.Join(blocker, "logs"), Level: levelOff})
	if err == nil {
		t.Fatal("Expected an error for an unusable log directory")
	}
	if logger == nil {
		t.Fatal("Expected a fallback logger")
	}
	if logger.LogPath() != "" {
		t.Errorf("Fallback logger should not have a log path, got %q", logger.LogPath())
	}
}
