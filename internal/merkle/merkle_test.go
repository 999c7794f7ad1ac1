package merkle

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeShape(t *testing.T) {
	tree, err := Build([]Leaf{
		{Key: []byte("c"), Value: []byte("3")},
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
	})
	require.NoError(t, err)
	require.Equal(t, 3, tree.Len())

	h1 := LeafHash([]byte("a"), []byte("1"))
	h2 := LeafHash([]byte("b"), []byte("2"))
	h3 := LeafHash([]byte("c"), []byte("3"))
	n1 := NodeHash(h1, h2)
	n2 := NodeHash(h3, h3)
	assert.Equal(t, NodeHash(n1, n2), tree.Root())
}

func TestEmptyAndSingle(t *testing.T) {
	empty, err := Build(nil)
	require.NoError(t, err)
	assert.Equal(t, EmptyRoot, empty.Root())
	_, err = empty.Prove([]byte("a"))
	assert.ErrorIs(t, err, ErrKeyNotFound)

	single, err := Build([]Leaf{{Key: []byte("k"), Value: []byte("v")}})
	require.NoError(t, err)
	assert.Equal(t, LeafHash([]byte("k"), []byte("v")), single.Root())

	p, err := single.Prove([]byte("k"))
	require.NoError(t, err)
	assert.Empty(t, p.Steps)
	assert.True(t, p.Verify(single.Root()))
}

func TestDuplicateKeys(t *testing.T) {
	_, err := Build([]Leaf{{Key: []byte("a")}, {Key: []byte("a")}})
	assert.Error(t, err)
}

func TestProveEveryLeaf(t *testing.T) {
	var leaves []Leaf
	for i := 0; i < 11; i++ {
		leaves = append(leaves, Leaf{Key: []byte(fmt.Sprintf("key-%02d", i)), Value: []byte{byte(i)}})
	}
	tree, err := Build(leaves)
	require.NoError(t, err)

	for _, l := range leaves {
		p, err := tree.Prove(l.Key)
		require.NoError(t, err)
		assert.True(t, p.Verify(tree.Root()), "proof for %s", l.Key)

		tampered := *p
		tampered.Value = []byte("forged")
		assert.False(t, tampered.Verify(tree.Root()))
	}

	_, err = tree.Prove([]byte("key-99"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRootIgnoresInputOrder(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("root does not depend on leaf order", prop.ForAll(
		func(keys []string) bool {
			seen := map[string]bool{}
			var forward []Leaf
			for _, k := range keys {
				if seen[k] {
					continue
				}
				seen[k] = true
				forward = append(forward, Leaf{Key: []byte(k), Value: []byte(k + "!")})
			}
			reversed := make([]Leaf, len(forward))
			for i, l := range forward {
				reversed[len(forward)-1-i] = l
			}
			a, err := Build(forward)
			if err != nil {
				return false
			}
			b, err := Build(reversed)
			if err != nil {
				return false
			}
			return a.Root() == b.Root()
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
