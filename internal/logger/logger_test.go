package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_WritesLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.Info("frame %d", 1)
	l.Warning("store %s", "down")
	l.Error("fatal")

	out := buf.String()
	for _, want := range []string{"INFO", "frame 1", "WARNING", "store down", "ERROR", "fatal"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got: %s", want, out)
		}
	}
}

func TestNewLogger_CreatesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer l.Close()

	l.Warning("camera %s dropped a frame", "cam1")

	data, err := os.ReadFile(filepath.Join(dir, "warning.log"))
	if err != nil {
		t.Fatalf("Failed to read warning.log: %v", err)
	}
	if !strings.Contains(string(data), "camera cam1 dropped a frame") {
		t.Errorf("warning.log missing entry: %s", data)
	}

	if err := l.CleanLogs("warning.log"); err != nil {
		t.Fatalf("CleanLogs failed: %v", err)
	}
	data, _ = os.ReadFile(filepath.Join(dir, "warning.log"))
	if len(data) != 0 {
		t.Errorf("Expected warning.log to be empty, got %q", data)
	}
}
