// Package blockchain assembles blocks into an append-only chain: it
// enforces linkage and proof-of-work on every append, keeps the chain's
// UTXO set current, and answers lookups by height, hash, and
// transaction id.
package blockchain

import (
	"encoding/gob"
	"fmt"
	"os"
	"sync"

	"github.com/minichain/nanochain/pkg/block"
	"github.com/minichain/nanochain/pkg/coreerr"
	"github.com/minichain/nanochain/pkg/transaction"
	"github.com/minichain/nanochain/pkg/utxo"
)

// MaxChainLength caps the number of blocks a chain may hold.
const MaxChainLength = 1_000_000

// MaxBlockSize caps a single block's serialized size in bytes.
const MaxBlockSize = 1_000_000

// Chain is an in-memory, append-only sequence of blocks backed by a
// live UTXO set. It is safe for concurrent use.
type Chain struct {
	mu      sync.RWMutex
	blocks  []*block.Block
	byHash  map[string]*block.Block
	txIndex map[string]*transaction.Transaction
	utxos   *utxo.Set
}

// New starts a chain from genesis, which must already be mined and
// carry a single coinbase transaction with PrevBlockHash "" and
// Height 0.
func New(genesis *block.Block) (*Chain, error) {
	c := &Chain{
		byHash:  make(map[string]*block.Block),
		txIndex: make(map[string]*transaction.Transaction),
		utxos:   utxo.New(),
	}
	if err := c.AddBlock(genesis); err != nil {
		return nil, coreerr.Wrap(coreerr.InvalidChain, "accept genesis block", err)
	}
	return c, nil
}

// Tip returns the current chain head, or nil if the chain is empty.
func (c *Chain) Tip() *block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return nil
	}
	return c.blocks[len(c.blocks)-1]
}

// Height returns the number of blocks currently on the chain.
func (c *Chain) Height() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// UTXOSet returns the chain's live UTXO index.
func (c *Chain) UTXOSet() *utxo.Set {
	return c.utxos
}

// AddBlock validates b against the current tip and UTXO set, then
// appends it and applies its transactions to the UTXO set. b is
// rejected if: the chain is already at MaxChainLength, b exceeds
// MaxBlockSize, b's PrevBlockHash does not match the current tip (or,
// for the first block, is not empty), its height is not exactly
// tip+1, or b.IsValid fails against the pre-block UTXO snapshot.
func (c *Chain) AddBlock(b *block.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.blocks) >= MaxChainLength {
		return coreerr.New(coreerr.CapacityExceeded, "chain has reached its maximum length")
	}
	if b.SerializedSize() > MaxBlockSize {
		return coreerr.New(coreerr.InvalidBlock, "block exceeds maximum size")
	}

	if len(c.blocks) == 0 {
		if b.Header.PrevBlockHash != "" {
			return coreerr.New(coreerr.InvalidBlock, "genesis block must not reference a previous hash")
		}
		if b.Header.Height != 0 {
			return coreerr.New(coreerr.InvalidBlock, "genesis block must be at height 0")
		}
	} else {
		tip := c.blocks[len(c.blocks)-1]
		if b.Header.PrevBlockHash != tip.Hash {
			return coreerr.New(coreerr.InvalidBlock, "block does not chain onto the current tip")
		}
		if b.Header.Height != tip.Header.Height+1 {
			return coreerr.New(coreerr.InvalidBlock, "block height is not tip height + 1")
		}
	}

	if err := b.IsValid(c.utxos); err != nil {
		return err
	}

	c.blocks = append(c.blocks, b)
	c.byHash[b.Hash] = b
	for _, tx := range b.Transactions {
		c.txIndex[tx.ID] = tx
	}
	c.utxos.Apply(b.Transactions)
	return nil
}

// GetBlock returns the block with the given hash.
func (c *Chain) GetBlock(hash string) (*block.Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.byHash[hash]
	return b, ok
}

// GetBlockByHeight returns the block at the given height.
func (c *Chain) GetBlockByHeight(height uint64) (*block.Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if height >= uint64(len(c.blocks)) {
		return nil, false
	}
	return c.blocks[height], true
}

// GetBlocksAfter returns every block strictly after hash, in chain
// order, up to limit blocks. A limit of zero means no limit.
func (c *Chain) GetBlocksAfter(hash string, limit int) ([]*block.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	start := 0
	if hash != "" {
		b, ok := c.byHash[hash]
		if !ok {
			return nil, coreerr.New(coreerr.BlockNotFound, fmt.Sprintf("block %s not found", hash))
		}
		start = int(b.Header.Height) + 1
	}
	if start >= len(c.blocks) {
		return nil, nil
	}
	end := len(c.blocks)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]*block.Block, end-start)
	copy(out, c.blocks[start:end])
	return out, nil
}

// FindTransaction returns the transaction with the given id, and the
// hash of the block containing it.
func (c *Chain) FindTransaction(txid string) (*transaction.Transaction, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tx, ok := c.txIndex[txid]
	if !ok {
		return nil, "", false
	}
	for _, b := range c.blocks {
		for _, t := range b.Transactions {
			if t.ID == txid {
				return tx, b.Hash, true
			}
		}
	}
	return tx, "", true
}

// ValidateChain re-verifies every block's linkage and proof-of-work by
// replaying the chain against a freshly built UTXO set. It is used
// after loading a chain from disk, where individual AddBlock checks
// were already passed once but the persisted bytes deserve a second
// look.
func (c *Chain) ValidateChain() error {
	c.mu.RLock()
	blocks := make([]*block.Block, len(c.blocks))
	copy(blocks, c.blocks)
	c.mu.RUnlock()

	replay := utxo.New()
	var prevHash string
	for i, b := range blocks {
		if b.Header.Height != uint64(i) {
			return coreerr.New(coreerr.InvalidChain, fmt.Sprintf("block at index %d has height %d", i, b.Header.Height))
		}
		if i == 0 {
			if b.Header.PrevBlockHash != "" {
				return coreerr.New(coreerr.InvalidChain, "genesis block references a previous hash")
			}
		} else if b.Header.PrevBlockHash != prevHash {
			return coreerr.New(coreerr.InvalidChain, fmt.Sprintf("block at index %d does not chain onto its predecessor", i))
		}
		if err := b.IsValid(replay); err != nil {
			return coreerr.Wrap(coreerr.InvalidChain, fmt.Sprintf("block at index %d", i), err)
		}
		replay.Apply(b.Transactions)
		prevHash = b.Hash
	}
	return nil
}

// persisted is the on-disk representation of a chain: its ordered
// blocks. The UTXO set and indices are rebuilt from this on load.
type persisted struct {
	Blocks []*block.Block
}

// SaveToFile gob-encodes the chain's blocks to path.
func (c *Chain) SaveToFile(path string) error {
	c.mu.RLock()
	snapshot := persisted{Blocks: make([]*block.Block, len(c.blocks))}
	copy(snapshot.Blocks, c.blocks)
	c.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return coreerr.Wrap(coreerr.Io, "create chain file", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(snapshot); err != nil {
		return coreerr.Wrap(coreerr.Serialization, "encode chain", err)
	}
	return nil
}

// LoadFromFile rebuilds a chain, including its UTXO set and indices,
// from a file written by SaveToFile. Every block's validity is
// re-checked during the rebuild via ValidateChain.
func LoadFromFile(path string) (*Chain, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Io, "open chain file", err)
	}
	defer f.Close()

	var snapshot persisted
	if err := gob.NewDecoder(f).Decode(&snapshot); err != nil {
		return nil, coreerr.Wrap(coreerr.Deserialization, "decode chain", err)
	}
	if len(snapshot.Blocks) == 0 {
		return nil, coreerr.New(coreerr.InvalidChain, "persisted chain has no blocks")
	}

	c := &Chain{
		byHash:  make(map[string]*block.Block),
		txIndex: make(map[string]*transaction.Transaction),
		utxos:   utxo.New(),
	}
	for _, b := range snapshot.Blocks {
		c.blocks = append(c.blocks, b)
		c.byHash[b.Hash] = b
		for _, tx := range b.Transactions {
			c.txIndex[tx.ID] = tx
		}
	}
	if err := c.ValidateChain(); err != nil {
		return nil, err
	}
	c.utxos = utxo.New()
	for _, b := range c.blocks {
		c.utxos.Apply(b.Transactions)
	}
	return c, nil
}
