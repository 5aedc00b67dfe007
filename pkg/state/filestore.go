package state

import (
	"fmt"
	"os"
	"path/filepath"

	"siteforge/pkg/logx"
	"siteforge/pkg/proto"
)

// DefaultDocumentName is the shared protocol document filename, matching the
// wire format produced by earlier versions of the system.
const DefaultDocumentName = "communication_protocol.json"

// FileStore persists the protocol document as a JSON file on shared storage.
type FileStore struct {
	path   string
	logger *logx.Logger
}

// NewFileStore creates a file-backed store at the given path, creating the
// parent directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return &FileStore{
		path:   path,
		logger: logx.NewLogger("state"),
	}, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Read loads the document. A missing or malformed file yields a freshly
// initialized document with all workers idle.
func (s *FileStore) Read() (*proto.ProtocolDocument, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return proto.NewProtocolDocument(), nil
		}
		return nil, fmt.Errorf("failed to read protocol document %s: %w", s.path, err)
	}

	doc, err := proto.DocumentFromJSON(data)
	if err != nil {
		s.logger.Warn("⚠️ Malformed protocol document at %s, starting fresh: %v", s.path, err)
		return proto.NewProtocolDocument(), nil
	}
	return doc, nil
}

// Write replaces the backing file atomically via temp file + rename, so a
// concurrent reader never observes a partially written document.
func (s *FileStore) Write(doc *proto.ProtocolDocument) error {
	data, err := doc.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal protocol document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".protocol-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write protocol document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace protocol document: %w", err)
	}
	return nil
}

// Update performs a read-modify-write. Last writer wins under concurrency.
func (s *FileStore) Update(mutate func(doc *proto.ProtocolDocument)) (*proto.ProtocolDocument, error) {
	doc, err := s.Read()
	if err != nil {
		return nil, err
	}
	mutate(doc)
	if err := s.Write(doc); err != nil {
		return nil, err
	}
	return doc, nil
}
