package proof

import (
	"bytes"
	"fmt"

	"github.com/jmcleod/docproof/document"
	"github.com/jmcleod/docproof/storage"
	"github.com/jmcleod/docproof/storage/authstore"
)

// Entry is one proven key/value pair.
type Entry = authstore.VerifiedEntry

// Verify checks proof against expectedRoot and returns the proven entries.
// A nil expectedRoot only checks internal consistency.
func Verify(proof []byte, expectedRoot []byte) ([]Entry, error) {
	p, err := authstore.DecodeProof(proof)
	if err != nil {
		return nil, err
	}
	return p.Verify(expectedRoot)
}

// Root returns the root hash a proof commits to.
func Root(proof []byte) ([]byte, error) {
	p, err := authstore.DecodeProof(proof)
	if err != nil {
		return nil, err
	}
	return p.Root, nil
}

// VerifyDocuments checks a document proof and decodes the proven documents.
// Every entry must lie in the primary-key tree of contractID/docType.
func VerifyDocuments(proof []byte, expectedRoot []byte, contractID document.ID, docType string) ([]*document.Document, error) {
	entries, err := Verify(proof, expectedRoot)
	if err != nil {
		return nil, err
	}
	want := storage.DocumentsPath(contractID, docType).Prefix()
	docs := make([]*document.Document, 0, len(entries))
	for i, e := range entries {
		if !bytes.Equal(e.Path.Prefix(), want) {
			return nil, fmt.Errorf("%w: entry %d is outside %s/%s", authstore.ErrInvalidProof, i, contractID, docType)
		}
		_, doc, err := storage.OpenRecord(e.Value)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if !bytes.Equal(doc.ID[:], e.Key) {
			return nil, fmt.Errorf("%w: entry %d key does not match document id", authstore.ErrInvalidProof, i)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
