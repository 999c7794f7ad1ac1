package merkle

// Side tells on which side of the running hash a sibling sits.
type Side uint8

const (
	SideRight Side = iota
	SideLeft
)

// ProofStep is one sibling on the path from a leaf to the root.
type ProofStep struct {
	Side    Side `cbor:"side"`
	Sibling Hash `cbor:"sibling"`
}

// InclusionProof shows that Key maps to Value in a tree.
type InclusionProof struct {
	Key   []byte      `cbor:"key"`
	Value []byte      `cbor:"value"`
	Steps []ProofStep `cbor:"steps"`
}

// ComputeRoot folds the proof steps over the leaf hash.
func (p *InclusionProof) ComputeRoot() Hash {
	current := LeafHash(p.Key, p.Value)
	for _, step := range p.Steps {
		if step.Side == SideLeft {
			current = NodeHash(step.Sibling, current)
		} else {
			current = NodeHash(current, step.Sibling)
		}
	}
	return current
}

// Verify reports whether p proves its key/value pair under root.
func (p *InclusionProof) Verify(root Hash) bool {
	return p.ComputeRoot() == root
}

// Size returns the encoded size contribution of the proof in bytes.
func (p *InclusionProof) Size() int {
	return len(p.Key) + len(p.Value) + len(p.Steps)*(len(Hash{})+1)
}
