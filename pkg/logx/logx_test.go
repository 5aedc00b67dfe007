package logx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("crawler")
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}
	if logger.workerID != "crawler" {
		t.Errorf("Expected workerID crawler, got %s", logger.workerID)
	}
}

func TestDebugDisabledByDefault(t *testing.T) {
	SetDebugConfig(false, false, "")
	if IsDebugEnabled() {
		t.Error("Debug should be disabled")
	}

	SetDebugConfig(true, false, "")
	if !IsDebugEnabled() {
		t.Error("Debug should be enabled after SetDebugConfig")
	}
	SetDebugConfig(false, false, "")
}

func TestSetDebugConfigCreatesLogDir(t *testing.T) {
	tmpDir := t.TempDir()
	logDir := filepath.Join(tmpDir, "logs")

	SetDebugConfig(true, true, logDir)
	defer SetDebugConfig(false, false, "")

	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		t.Error("Log directory was not created")
	}
}

func TestErrorfReturnsError(t *testing.T) {
	logger := NewLogger("test")
	err := logger.Errorf("patch failed for %s", "index.html")
	if err == nil {
		t.Fatal("Errorf should return an error")
	}
	if !strings.Contains(err.Error(), "index.html") {
		t.Errorf("Error message missing context: %v", err)
	}
}
