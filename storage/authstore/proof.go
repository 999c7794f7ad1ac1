package authstore

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/jmcleod/docproof/internal/merkle"
	"github.com/jmcleod/docproof/internal/util"
	"github.com/jmcleod/docproof/storage"
)

// ErrInvalidProof is returned when a proof does not verify.
var ErrInvalidProof = errors.New("invalid proof")

// Proof is the encoded form of a set of inclusion proofs against one root.
// It proves that every entry is present; it does not prove that a query
// result is complete.
type Proof struct {
	Root    []byte                  `cbor:"root"`
	Entries []merkle.InclusionProof `cbor:"entries"`
}

// Marshal encodes p as canonical CBOR.
func (p *Proof) Marshal() ([]byte, error) {
	return util.MarshalCanonical(p)
}

// DecodeProof parses an encoded proof.
func DecodeProof(raw []byte) (*Proof, error) {
	var p Proof
	if err := util.UnmarshalCanonical(raw, &p); err != nil {
		return nil, fmt.Errorf("decoding proof: %w", err)
	}
	if len(p.Root) != util.HashSize {
		return nil, fmt.Errorf("decoding proof: root must be %d bytes, got %d", util.HashSize, len(p.Root))
	}
	return &p, nil
}

// VerifiedEntry is a key/value pair proven by a Proof.
type VerifiedEntry struct {
	Path  storage.Path
	Key   []byte
	Value []byte
}

// Verify checks every entry against the proof root and, when expectedRoot is
// non-nil, checks the root itself.
func (p *Proof) Verify(expectedRoot []byte) ([]VerifiedEntry, error) {
	if expectedRoot != nil && !bytes.Equal(expectedRoot, p.Root) {
		return nil, fmt.Errorf("%w: root mismatch", ErrInvalidProof)
	}
	var root merkle.Hash
	copy(root[:], p.Root)

	out := make([]VerifiedEntry, 0, len(p.Entries))
	for i := range p.Entries {
		e := &p.Entries[i]
		if !e.Verify(root) {
			return nil, fmt.Errorf("%w: entry %d does not hash to root", ErrInvalidProof, i)
		}
		path, key, err := storage.DecodeKey(e.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidProof, i, err)
		}
		out = append(out, VerifiedEntry{Path: path, Key: key, Value: e.Value})
	}
	return out, nil
}
