// Package merkle computes the Merkle root committed to by a block's
// transaction list and produces/verifies inclusion proofs against it.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
)

// ZeroRoot is the root of an empty tree: the hex encoding of 32 zero
// bytes.
var ZeroRoot = hex.EncodeToString(make([]byte, 32))

// Proof is the list of sibling hashes (as raw bytes) encountered walking
// from a leaf up to the root, in leaf-to-root order.
type Proof [][]byte

// Tree holds every level of a Merkle tree built over a fixed leaf set,
// leaves first, root last. It is built once and is immutable afterward.
type Tree struct {
	levels [][][]byte
}

// New builds a Merkle tree over leaves, where each leaf is the raw bytes
// of a hex-encoded transaction id. An odd level duplicates its last node
// before pairing, matching Bitcoin-style Merkle construction.
func New(leaves [][]byte) *Tree {
	if len(leaves) == 0 {
		return &Tree{levels: [][][]byte{{make([]byte, 32)}}}
	}

	level := make([][]byte, len(leaves))
	copy(level, leaves)

	tree := &Tree{levels: [][][]byte{level}}
	for len(level) > 1 {
		level = nextLevel(level)
		tree.levels = append(tree.levels, level)
	}
	return tree
}

// Root returns the hex-encoded Merkle root.
func (t *Tree) Root() string {
	top := t.levels[len(t.levels)-1]
	return hex.EncodeToString(top[0])
}

// RootBytes returns the raw Merkle root.
func (t *Tree) RootBytes() []byte {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Proof returns the sibling hashes from leaf index i up to the root.
func (t *Tree) Proof(i int) Proof {
	var proof Proof
	index := i
	for level := 0; level < len(t.levels)-1; level++ {
		nodes := t.levels[level]
		siblingIndex := siblingOf(index, len(nodes))
		proof = append(proof, nodes[siblingIndex])
		index /= 2
	}
	return proof
}

// Verify folds proof starting from data itself (leaves are not hashed
// before pairing, matching New), using the
// parity of index at each level to decide sibling order, and reports
// whether the result matches root (hex-encoded).
func Verify(data []byte, proof Proof, index int, root string) bool {
	current := data
	for _, sibling := range proof {
		if index%2 == 0 {
			current = combine(current, sibling)
		} else {
			current = combine(sibling, current)
		}
		index /= 2
	}
	return hex.EncodeToString(current) == root
}

func nextLevel(level [][]byte) [][]byte {
	if len(level)%2 != 0 {
		level = append(level, level[len(level)-1])
	}
	next := make([][]byte, len(level)/2)
	for i := 0; i < len(level); i += 2 {
		next[i/2] = combine(level[i], level[i+1])
	}
	return next
}

func combine(left, right []byte) []byte {
	buf := make([]byte, 0, len(left)+len(right))
	buf = append(buf, left...)
	buf = append(buf, right...)
	hash := sha256.Sum256(buf)
	return hash[:]
}

// siblingOf returns the index of index's pair within a level of the
// given length, duplicating the last node when the level is odd-sized.
func siblingOf(index, levelLen int) int {
	if index%2 == 0 {
		if index+1 < levelLen {
			return index + 1
		}
		return index // duplicated last node is its own sibling
	}
	return index - 1
}

// Root computes the hex Merkle root over leaves directly, without
// retaining the intermediate levels. Used where only the root is needed.
func Root(leaves [][]byte) string {
	return New(leaves).Root()
}
