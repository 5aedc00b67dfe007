package eventlog

import (
	"path/filepath"
	"testing"
	"time"

	"siteforge/pkg/proto"
)

func TestWriterRoundTrip(t *testing.T) {
	logDir := t.TempDir()

	writer, err := NewWriter(logDir, 24)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	msg := proto.NewMessage(proto.MsgTypeNotification, proto.WorkerOrchestrator, proto.WorkerCrawler)
	msg.SetPayload("phase", "crawling")
	msg.SetPayload("iteration", 1)

	if err := writer.WriteMessage(msg); err != nil {
		t.Fatalf("Failed to write message: %v", err)
	}

	logFile := writer.GetCurrentLogFile()
	if logFile == "" {
		t.Fatal("Expected a current log file path")
	}

	expected := filepath.Join(logDir, "events-"+time.Now().Format("2006-01-02")+".jsonl")
	if logFile != expected {
		t.Errorf("Expected log file %s, got %s", expected, logFile)
	}

	messages, err := ReadMessages(logFile)
	if err != nil {
		t.Fatalf("Failed to read messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}

	got := messages[0]
	if got.ID != msg.ID {
		t.Errorf("Expected message ID %s, got %s", msg.ID, got.ID)
	}
	if got.SourceAgent != proto.WorkerOrchestrator {
		t.Errorf("Expected source orchestrator, got %s", got.SourceAgent)
	}
	if phase, ok := got.GetPayload("phase"); !ok || phase != "crawling" {
		t.Errorf("Expected phase payload crawling, got %v", phase)
	}
}

func TestWriterAppendsMultipleMessages(t *testing.T) {
	logDir := t.TempDir()

	writer, err := NewWriter(logDir, 24)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	for i := 0; i < 3; i++ {
		msg := proto.NewMessage(proto.MsgTypeRequest, proto.WorkerOrchestrator, proto.WorkerAnalysis)
		if err := writer.WriteMessage(msg); err != nil {
			t.Fatalf("Failed to write message %d: %v", i, err)
		}
	}

	messages, err := ReadMessages(writer.GetCurrentLogFile())
	if err != nil {
		t.Fatalf("Failed to read messages: %v", err)
	}
	if len(messages) != 3 {
		t.Errorf("Expected 3 messages, got %d", len(messages))
	}
}

func TestListLogFiles(t *testing.T) {
	logDir := t.TempDir()

	writer, err := NewWriter(logDir, 24)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	files, err := ListLogFiles(logDir)
	if err != nil {
		t.Fatalf("Failed to list log files: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("Expected 1 log file, got %d", len(files))
	}
}

func TestReadMessagesEmptyFile(t *testing.T) {
	logDir := t.TempDir()

	writer, err := NewWriter(logDir, 24)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	messages, err := ReadMessages(writer.GetCurrentLogFile())
	if err != nil {
		t.Fatalf("Failed to read empty log: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("Expected no messages, got %d", len(messages))
	}
}
