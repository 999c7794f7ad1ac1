package util

import "golang.org/x/crypto/blake2b"

// HashSize is the size in bytes of every digest used for commitments.
const HashSize = blake2b.Size256

// Hash returns the blake2b-256 digest of the concatenated parts.
func Hash(parts ...[]byte) [HashSize]byte {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}
