// Package document defines the documents stored by the drive layer and the
// block context mutations execute under.
package document

import (
	"fmt"
	"time"

	"github.com/jmcleod/docproof/internal/util"
)

// IDSize is the length in bytes of document, contract and identity identifiers.
const IDSize = 32

// InitialRevision is the revision the store assigns to a newly created document.
const InitialRevision uint64 = 1

// ID is a 32-byte identifier for documents, data contracts and identities.
type ID [IDSize]byte

// ParseID decodes a hex-encoded identifier.
func ParseID(s string) (ID, error) {
	b, err := util.HexDecode(s)
	if err != nil {
		return ID{}, fmt.Errorf("decoding identifier: %w", err)
	}
	return IDFromBytes(b)
}

// IDFromBytes copies b into an ID. b must be exactly IDSize bytes long.
func IDFromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != IDSize {
		return id, validationErrorf("identifier must be %d bytes, got %d", IDSize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

func (id ID) String() string {
	return util.HexEncode(id[:])
}

// Bytes returns a copy of the identifier as a slice.
func (id ID) Bytes() []byte {
	return util.CopyBytes(id[:])
}

// IsZero reports whether every byte of id is zero.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Identifier addresses a single document. The triple is globally unique.
type Identifier struct {
	ContractID ID
	Type       string
	DocumentID ID
}

func (i Identifier) String() string {
	return fmt.Sprintf("%s/%s/%s", i.ContractID, i.Type, i.DocumentID)
}

// Document is a schema-shaped record owned by an identity.
type Document struct {
	ID         ID
	ContractID ID
	Type       string
	OwnerID    ID
	Properties map[string]any
	// Revision is zero (unset) on create and strictly increases on every update.
	Revision  uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identifier returns the (contract, type, id) triple of d.
func (d *Document) Identifier() Identifier {
	return Identifier{ContractID: d.ContractID, Type: d.Type, DocumentID: d.ID}
}

// Clone returns a deep copy of d. Nested maps and slices in Properties are
// copied as well.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Properties = cloneValue(d.Properties).(map[string]any)
	return &c
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return map[string]any(nil)
		}
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = cloneValue(val)
		}
		return s
	case []byte:
		return util.CopyBytes(t)
	default:
		return v
	}
}

// BlockInfo is the immutable context of the block an operation executes in.
type BlockInfo struct {
	Height                uint64
	Epoch                 uint16
	CoreChainLockedHeight uint32
	Time                  time.Time
}

// TimeMillis returns the block time as Unix milliseconds.
func (b BlockInfo) TimeMillis() uint64 {
	if b.Time.IsZero() {
		return 0
	}
	return uint64(b.Time.UnixMilli())
}
