package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jmcleod/docproof/document"
)

// Root subtrees of the state tree.
const (
	RootPublicKeyHashes       byte = 24
	RootIdentities            byte = 32
	RootDataContractDocuments byte = 64
)

// Markers inside a contract subtree.
var (
	ContractStorageKey = []byte{0}
	DocumentsMarker    = []byte{1}
	PrimaryKeyMarker   = []byte{0}
)

// Path is a sequence of subtree keys leading from the state root to a leaf
// tree.
type Path [][]byte

// DocumentsPath is the primary-key tree of one document type:
// contract root -> documents marker -> document type -> primary key marker.
func DocumentsPath(contractID document.ID, docType string) Path {
	return Path{
		{RootDataContractDocuments},
		contractID.Bytes(),
		DocumentsMarker,
		[]byte(docType),
		PrimaryKeyMarker,
	}
}

// ContractPath is the subtree holding a serialized data contract under
// ContractStorageKey.
func ContractPath(contractID document.ID) Path {
	return Path{{RootDataContractDocuments}, contractID.Bytes()}
}

// IdentitiesPath holds serialized identities keyed by identity id.
func IdentitiesPath() Path {
	return Path{{RootIdentities}}
}

// PublicKeyHashesPath maps unique public key hashes to identity ids.
func PublicKeyHashesPath() Path {
	return Path{{RootPublicKeyHashes}}
}

// Prefix returns the encoded path. Every key encoded under p starts with it.
func (p Path) Prefix() []byte {
	var buf bytes.Buffer
	for _, seg := range p {
		writeSegment(&buf, seg)
	}
	return buf.Bytes()
}

// Key encodes key under p.
func (p Path) Key(key []byte) []byte {
	var buf bytes.Buffer
	buf.Write(p.Prefix())
	writeSegment(&buf, key)
	return buf.Bytes()
}

func (p Path) String() string {
	return fmt.Sprintf("%x", p.Prefix())
}

func writeSegment(buf *bytes.Buffer, seg []byte) {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(seg)))
	buf.Write(lenBuf[:n])
	buf.Write(seg)
}

// DecodeKey splits an encoded key back into its path segments and leaf key.
func DecodeKey(encoded []byte) (Path, []byte, error) {
	var segs [][]byte
	for len(encoded) > 0 {
		n, read := binary.Uvarint(encoded)
		if read <= 0 || uint64(len(encoded)-read) < n {
			return nil, nil, errors.New("malformed storage key")
		}
		segs = append(segs, encoded[read:read+int(n)])
		encoded = encoded[read+int(n):]
	}
	if len(segs) == 0 {
		return nil, nil, errors.New("empty storage key")
	}
	return Path(segs[:len(segs)-1]), segs[len(segs)-1], nil
}

// PathQuery names a single key under a path, as used by multi-path proofs.
type PathQuery struct {
	Path Path
	Key  []byte
}
