// Package eventlog provides structured logging of pipeline messages to
// daily rotated JSONL files.
package eventlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"siteforge/pkg/proto"
)

// Writer handles structured logging of messages to daily rotated JSON log files.
type Writer struct {
	logDir       string
	currentFile  *os.File
	currentDate  string
	mu           sync.Mutex
	rotationHour int // Hour of day to rotate (0-23)
}

// NewWriter creates a new event log writer with daily rotation in the specified directory.
func NewWriter(logDir string, rotationHours int) (*Writer, error) {
	// Create logs directory if it doesn't exist.
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Default to 24 hours (daily rotation at midnight) if invalid
	if rotationHours <= 0 {
		rotationHours = 24
	}

	writer := &Writer{
		logDir:       logDir,
		rotationHour: rotationHours,
	}

	// Initialize with current log file.
	if err := writer.rotateIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize log file: %w", err)
	}

	return writer, nil
}

// WriteMessage writes a message to the current log file with automatic rotation.
func (w *Writer) WriteMessage(msg *proto.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Check if we need to rotate.
	if err := w.rotateIfNeeded(); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	jsonData, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	if _, err := w.currentFile.Write(jsonData); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	// Newline for JSONL format.
	if _, err := w.currentFile.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	if err := w.currentFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	return nil
}

func (w *Writer) rotateIfNeeded() error {
	now := time.Now()
	newDate := now.Format("2006-01-02")

	// Rotate on a new day or when no file is open yet.
	if w.currentFile == nil || w.currentDate != newDate {
		return w.rotate(newDate)
	}

	return nil
}

func (w *Writer) rotate(newDate string) error {
	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
	}

	filename := fmt.Sprintf("events-%s.jsonl", newDate)
	path := filepath.Join(w.logDir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	w.currentFile = file
	w.currentDate = newDate

	return nil
}

// Close closes the current log file and cleans up resources.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile != nil {
		err := w.currentFile.Close()
		w.currentFile = nil
		if err != nil {
			return fmt.Errorf("failed to close event log file: %w", err)
		}
	}

	return nil
}

// GetCurrentLogFile returns the path of the currently active log file.
func (w *Writer) GetCurrentLogFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return ""
	}

	return filepath.Join(w.logDir, fmt.Sprintf("events-%s.jsonl", w.currentDate))
}

// ReadMessages reads and parses messages from a specific log file.
func ReadMessages(logFilePath string) ([]*proto.Message, error) {
	data, err := os.ReadFile(logFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	if len(data) == 0 {
		return []*proto.Message{}, nil
	}

	var line []byte
	var messages []*proto.Message

	for _, b := range data {
		if b == '\n' {
			if len(line) > 0 {
				msg, err := proto.MessageFromJSON(line)
				if err != nil {
					return nil, fmt.Errorf("failed to parse message: %w", err)
				}
				messages = append(messages, msg)
				line = []byte{}
			}
		} else {
			line = append(line, b)
		}
	}

	// Handle last line if no trailing newline.
	if len(line) > 0 {
		msg, err := proto.MessageFromJSON(line)
		if err != nil {
			return nil, fmt.Errorf("failed to parse final message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// ListLogFiles returns all event log files in the log directory.
func ListLogFiles(logDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(logDir, "events-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}

	return files, nil
}
