package merkle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func leavesOf(ss ...string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

func TestEmptyTreeRoot(t *testing.T) {
	tree := New(nil)
	assert.Equal(t, ZeroRoot, tree.Root())
}

func TestSingleLeafRootIsProvable(t *testing.T) {
	leaves := leavesOf("tx1")
	tree := New(leaves)
	proof := tree.Proof(0)
	assert.True(t, Verify(leaves[0], proof, 0, tree.Root()))
}

func TestOddLeafCountDuplicatesLast(t *testing.T) {
	leaves := leavesOf("tx1", "tx2", "tx3")
	tree := New(leaves)
	for i := range leaves {
		proof := tree.Proof(i)
		assert.True(t, Verify(leaves[i], proof, i, tree.Root()), "leaf %d should verify", i)
	}
}

func TestEveryLeafVerifiesAgainstRoot(t *testing.T) {
	leaves := leavesOf("a", "b", "c", "d", "e", "f", "g")
	tree := New(leaves)
	root := tree.Root()
	for i := range leaves {
		proof := tree.Proof(i)
		assert.True(t, Verify(leaves[i], proof, i, root), "leaf %d should verify", i)
	}
}

func TestVerifyRejectsWrongLeaf(t *testing.T) {
	leaves := leavesOf("a", "b", "c", "d")
	tree := New(leaves)
	proof := tree.Proof(0)
	assert.False(t, Verify([]byte("tampered"), proof, 0, tree.Root()))
}

func TestRootHelperMatchesTree(t *testing.T) {
	leaves := leavesOf("x", "y")
	assert.Equal(t, New(leaves).Root(), Root(leaves))
}
