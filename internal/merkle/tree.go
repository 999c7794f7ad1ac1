// Package merkle commits to a sorted set of key/value leaves with a binary
// Merkle tree and produces inclusion proofs against its root.
package merkle

import (
	"bytes"
	"errors"
	"sort"

	"github.com/jmcleod/docproof/internal/util"
)

// Hash is a blake2b-256 digest.
type Hash [util.HashSize]byte

// EmptyRoot is the root of a tree without leaves.
var EmptyRoot Hash

const (
	leafPrefix = 0x00
	nodePrefix = 0x01
)

// ErrKeyNotFound is returned when proving a key that is not in the tree.
var ErrKeyNotFound = errors.New("key not in tree")

// Leaf is a committed key/value pair.
type Leaf struct {
	Key   []byte
	Value []byte
}

// LeafHash is H(0x00 || key || H(value)).
func LeafHash(key, value []byte) Hash {
	vh := util.Hash(value)
	return util.Hash([]byte{leafPrefix}, key, vh[:])
}

// NodeHash is H(0x01 || left || right).
func NodeHash(left, right Hash) Hash {
	return util.Hash([]byte{nodePrefix}, left[:], right[:])
}

// Tree is an immutable Merkle tree. Levels[0] holds the leaf hashes in key
// order and the last level holds the root.
type Tree struct {
	keys   [][]byte
	values [][]byte
	Levels [][]Hash
}

// Build constructs a tree over leaves. Leaves are sorted by key; keys must be
// unique.
func Build(leaves []Leaf) (*Tree, error) {
	sorted := make([]Leaf, len(leaves))
	copy(sorted, leaves)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0
	})

	t := &Tree{
		keys:   make([][]byte, len(sorted)),
		values: make([][]byte, len(sorted)),
	}
	level := make([]Hash, len(sorted))
	for i, l := range sorted {
		if i > 0 && bytes.Equal(sorted[i-1].Key, l.Key) {
			return nil, errors.New("duplicate leaf key")
		}
		t.keys[i] = l.Key
		t.values[i] = l.Value
		level[i] = LeafHash(l.Key, l.Value)
	}
	if len(level) == 0 {
		return t, nil
	}

	t.Levels = append(t.Levels, level)
	for len(level) > 1 {
		level = nextLevel(level)
		t.Levels = append(t.Levels, level)
	}
	return t, nil
}

// nextLevel pairs up hashes, duplicating the last one of an odd level.
func nextLevel(hashes []Hash) []Hash {
	n := len(hashes)
	if n%2 != 0 {
		hashes = append(hashes[:n:n], hashes[n-1])
		n++
	}
	next := make([]Hash, n/2)
	for i := 0; i < n; i += 2 {
		next[i/2] = NodeHash(hashes[i], hashes[i+1])
	}
	return next
}

// Root returns the tree root, or EmptyRoot for an empty tree.
func (t *Tree) Root() Hash {
	if len(t.Levels) == 0 {
		return EmptyRoot
	}
	return t.Levels[len(t.Levels)-1][0]
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	return len(t.keys)
}

// Prove returns an inclusion proof for key.
func (t *Tree) Prove(key []byte) (*InclusionProof, error) {
	idx := sort.Search(len(t.keys), func(i int) bool {
		return bytes.Compare(t.keys[i], key) >= 0
	})
	if idx == len(t.keys) || !bytes.Equal(t.keys[idx], key) {
		return nil, ErrKeyNotFound
	}

	p := &InclusionProof{
		Key:   util.CopyBytes(key),
		Value: util.CopyBytes(t.values[idx]),
	}
	pos := idx
	for _, level := range t.Levels[:len(t.Levels)-1] {
		sibling := pos ^ 1
		if sibling >= len(level) {
			sibling = pos
		}
		side := SideRight
		if sibling < pos {
			side = SideLeft
		}
		p.Steps = append(p.Steps, ProofStep{Side: side, Sibling: level[sibling]})
		pos /= 2
	}
	return p, nil
}
