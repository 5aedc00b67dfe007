// Package logx provides structured logging for the siteforge workers.
package logx

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Logger writes leveled, worker-tagged log lines.
type Logger struct {
	workerID string
	logger   *log.Logger
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Enabled     bool
	FileLogging bool
	LogDir      string
}

//nolint:gochecknoglobals // Process-wide debug configuration
var (
	debugConfig = &DebugConfig{}
	debugMutex  sync.RWMutex

	debugFile     *os.File
	debugFileOnce sync.Once
)

// Initialize debug configuration from environment variables.
func init() { //nolint:gochecknoinits // Required for env var initialization
	initDebugFromEnv()
}

func initDebugFromEnv() {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugConfig.Enabled = true
	}

	if debugFile := os.Getenv("DEBUG_FILE"); debugFile == "1" || strings.EqualFold(debugFile, "true") {
		debugConfig.FileLogging = true
	}

	if debugLogDir := os.Getenv("DEBUG_LOG_DIR"); debugLogDir != "" {
		debugConfig.LogDir = debugLogDir
	} else if debugConfig.LogDir == "" {
		debugConfig.LogDir = "logs"
	}
}

// NewLogger creates a logger tagged with the given worker ID.
func NewLogger(workerID string) *Logger {
	return &Logger{
		workerID: workerID,
		logger:   log.New(os.Stderr, "", 0), // Log to stderr for CLI compatibility
	}
}

// SetDebugConfig configures global debug logging settings.
func SetDebugConfig(enabled, fileLogging bool, logDir string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	debugConfig.Enabled = enabled
	debugConfig.FileLogging = fileLogging
	if logDir != "" {
		debugConfig.LogDir = logDir
	}

	if fileLogging && debugConfig.LogDir != "" {
		if err := os.MkdirAll(debugConfig.LogDir, 0755); err != nil {
			fmt.Printf("Warning: failed to create log directory %s: %v\n", debugConfig.LogDir, err)
		}
	}
}

// IsDebugEnabled returns whether debug logging is enabled.
func IsDebugEnabled() bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	return debugConfig.Enabled
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	message := fmt.Sprintf(format, args...)
	logLine := fmt.Sprintf("[%s] [%s] %s: %s", timestamp, l.workerID, level, message)
	l.logger.Println(logLine)

	debugMutex.RLock()
	fileLogging := debugConfig.FileLogging
	debugMutex.RUnlock()

	if fileLogging {
		writeDebugFile(logLine)
	}
}

// writeDebugFile appends a line to the shared debug log file.
func writeDebugFile(line string) {
	debugFileOnce.Do(func() {
		debugMutex.RLock()
		logDir := debugConfig.LogDir
		debugMutex.RUnlock()

		if err := os.MkdirAll(logDir, 0755); err != nil {
			return
		}
		path := filepath.Join(logDir, fmt.Sprintf("debug-%s.log", time.Now().UTC().Format("2006-01-02")))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return
		}
		debugFile = f
	})

	if debugFile != nil {
		_, _ = debugFile.WriteString(line + "\n")
	}
}

func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled() {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// Errorf logs an error message and returns it as an error value.
func (l *Logger) Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	l.log(LevelError, "%s", err.Error())
	return err
}
