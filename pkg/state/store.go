// Package state manages persistent storage of the shared protocol document.
// The document is the only coordination primitive between workers: reads and
// writes are plain overwrites with no locking, so concurrent updates race and
// the last writer wins. A lost update can shrink a field's information but
// never corrupts the document structurally.
package state

import (
	"siteforge/pkg/proto"
)

// Store is the protocol document storage contract. Any backend (file,
// key-value store, in-memory for tests) can sit behind it.
type Store interface {
	// Read returns the current document. A missing or malformed backing
	// document yields a freshly initialized one, never an error about
	// absence.
	Read() (*proto.ProtocolDocument, error)

	// Write atomically replaces the backing document.
	Write(doc *proto.ProtocolDocument) error

	// Update performs a read-modify-write. It is not transactionally
	// isolated: two concurrent updates can race and the later write wins.
	Update(mutate func(doc *proto.ProtocolDocument)) (*proto.ProtocolDocument, error)
}
