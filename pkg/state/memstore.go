package state

import (
	"sync"

	"siteforge/pkg/proto"
)

// MemStore is an in-memory store backend for tests and single-process runs.
type MemStore struct {
	mu  sync.Mutex
	doc *proto.ProtocolDocument
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Read returns a deep copy of the current document, or a freshly initialized
// one when nothing has been written yet.
func (s *MemStore) Read() (*proto.ProtocolDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return proto.NewProtocolDocument(), nil
	}
	return s.doc.Clone(), nil
}

// Write replaces the stored document.
func (s *MemStore) Write(doc *proto.ProtocolDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc = doc.Clone()
	return nil
}

// Update performs a read-modify-write under the store mutex.
func (s *MemStore) Update(mutate func(doc *proto.ProtocolDocument)) (*proto.ProtocolDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := proto.NewProtocolDocument()
	if s.doc != nil {
		doc = s.doc.Clone()
	}
	mutate(doc)
	s.doc = doc.Clone()
	return doc, nil
}
