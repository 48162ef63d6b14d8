// Package block implements block construction, proof-of-work mining,
// and block-level validation against a point-in-time UTXO snapshot.
package block

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/minichain/nanochain/pkg/coreerr"
	"github.com/minichain/nanochain/pkg/merkle"
	"github.com/minichain/nanochain/pkg/transaction"
)

// Difficulty is the fixed number of leading hex-zero nibbles New stamps
// into every block header. Mine and IsValid work against the header's
// own Difficulty field, not this constant. There is no retargeting in
// this core.
const Difficulty = 4

// Header is the fixed-size, hashed part of a block.
type Header struct {
	PrevBlockHash string
	MerkleRoot    string
	Timestamp     int64
	Difficulty    int
	Nonce         uint64
	Height        uint64
}

// Block is a header plus its ordered transaction list. Hash is cached
// after mining/loading and is always Header's SHA-256.
type Block struct {
	Header       Header
	Transactions []*transaction.Transaction
	Hash         string
}

// New assembles an unmined block over txs at height, chained onto
// prevHash. The Merkle root is computed immediately; Nonce and Hash are
// filled in by Mine.
func New(prevHash string, height uint64, txs []*transaction.Transaction) *Block {
	b := &Block{
		Header: Header{
			PrevBlockHash: prevHash,
			Timestamp:     time.Now().Unix(),
			Difficulty:    Difficulty,
			Height:        height,
		},
		Transactions: txs,
	}
	b.Header.MerkleRoot = b.computeMerkleRoot()
	return b
}

func (b *Block) computeMerkleRoot() string {
	leaves := make([][]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		leaves[i] = []byte(tx.ID)
	}
	return merkle.Root(leaves)
}

// headerBytes is the canonical byte layout hashed for both mining and
// identity. It excludes Hash itself.
func (h Header) headerBytes() []byte {
	var buf bytes.Buffer
	buf.WriteString(h.PrevBlockHash)
	buf.WriteString(h.MerkleRoot)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(h.Timestamp))
	buf.Write(tmp[:])
	binary.BigEndian.PutUint64(tmp[:], uint64(h.Difficulty))
	buf.Write(tmp[:])
	binary.BigEndian.PutUint64(tmp[:], h.Nonce)
	buf.Write(tmp[:])
	binary.BigEndian.PutUint64(tmp[:], h.Height)
	buf.Write(tmp[:])
	return buf.Bytes()
}

func (h Header) hash() string {
	sum := sha256.Sum256(h.headerBytes())
	return hex.EncodeToString(sum[:])
}

// meetsTarget reports whether hash carries at least difficulty leading
// hex-zero nibbles.
func meetsTarget(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if len(hash) < difficulty {
		return false
	}
	return strings.Count(hash[:difficulty], "0") == difficulty
}

// Mine searches for a Nonce producing a header hash meeting the header's
// Difficulty, stopping early if ctx-style cancellation is signaled via
// stop. It
// returns the winning hash, also recorded on b.Hash.
func (b *Block) Mine(stop <-chan struct{}) (string, error) {
	for nonce := uint64(0); ; nonce++ {
		select {
		case <-stop:
			return "", coreerr.New(coreerr.HashError, "mining canceled")
		default:
		}
		b.Header.Nonce = nonce
		h := b.Header.hash()
		if meetsTarget(h, b.Header.Difficulty) {
			b.Hash = h
			return h, nil
		}
		if nonce == ^uint64(0) {
			return "", coreerr.New(coreerr.HashError, "nonce space exhausted")
		}
	}
}

// IsValid checks b's internal consistency: a recorded hash equal to the
// header's hash and meeting the header's Difficulty field, a matching
// Merkle root, a coinbase at index 0 only, and every transaction
// verifying against snapshot. snapshot must reflect UTXO state
// immediately prior to b (spends made within b are never visible to
// b's own transactions: intra-block spend chains are rejected here).
func (b *Block) IsValid(snapshot transaction.UTXOVerifier) error {
	if b.Hash == "" {
		return coreerr.New(coreerr.InvalidBlock, "block has no recorded hash")
	}
	if b.Hash != b.Header.hash() {
		return coreerr.New(coreerr.InvalidBlock, "recorded hash does not match header")
	}
	if !meetsTarget(b.Hash, b.Header.Difficulty) {
		return coreerr.New(coreerr.InvalidBlock, "hash does not meet difficulty target")
	}
	if b.computeMerkleRoot() != b.Header.MerkleRoot {
		return coreerr.New(coreerr.InvalidBlock, "merkle root mismatch")
	}
	if len(b.Transactions) == 0 {
		return coreerr.New(coreerr.InvalidBlock, "block has no transactions")
	}
	if !b.Transactions[0].IsCoinbase() {
		return coreerr.New(coreerr.InvalidBlock, "first transaction must be coinbase")
	}

	seenSpends := make(map[string]bool)
	minted := make(map[string]bool)
	for i, tx := range b.Transactions {
		if i > 0 && tx.IsCoinbase() {
			return coreerr.New(coreerr.InvalidBlock, fmt.Sprintf("transaction %d: coinbase only allowed at index 0", i))
		}
		for _, in := range tx.Inputs {
			if i > 0 && minted[fmt.Sprintf("%s:%d", in.TxID, in.Vout)] {
				return coreerr.New(coreerr.InvalidBlock, fmt.Sprintf("transaction %d: spends an output created earlier in the same block", i))
			}
			spendKey := fmt.Sprintf("%s:%d", in.TxID, in.Vout)
			if seenSpends[spendKey] {
				return coreerr.New(coreerr.InvalidBlock, fmt.Sprintf("transaction %d: double-spends an input already used in this block", i))
			}
			seenSpends[spendKey] = true
		}
		if err := tx.Verify(snapshot); err != nil {
			return coreerr.Wrap(coreerr.InvalidTransaction, fmt.Sprintf("transaction %d", i), err)
		}
		for vout := range tx.Outputs {
			minted[fmt.Sprintf("%s:%d", tx.ID, vout)] = true
		}
	}
	return nil
}

// SerializedSize approximates b's on-the-wire size by summing its
// transactions' serialized sizes plus a fixed header overhead.
func (b *Block) SerializedSize() int {
	size := 88 // fixed allowance for the header and hash, not their exact encoded length
	for _, tx := range b.Transactions {
		size += tx.SerializedSize()
	}
	return size
}
