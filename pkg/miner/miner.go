// Package miner assembles candidate blocks from the mempool and the
// chain tip and mines them, the way the teacher's miner package drives
// a mine loop against a chain and mempool pair.
package miner

import (
	"fmt"
	"sync"
	"time"

	"github.com/minichain/nanochain/pkg/block"
	"github.com/minichain/nanochain/pkg/blockchain"
	"github.com/minichain/nanochain/pkg/coreerr"
	"github.com/minichain/nanochain/pkg/mempool"
	"github.com/minichain/nanochain/pkg/transaction"
)

// MaxTransactionsPerBlock bounds how many mempool transactions a
// candidate block carries, beyond the coinbase.
const MaxTransactionsPerBlock = 2_000

// Miner repeatedly assembles and mines blocks against chain, draining
// mempool as blocks are found.
type Miner struct {
	mu           sync.Mutex
	chain        *blockchain.Chain
	pool         *mempool.Mempool
	coinbaseAddr string
	running      bool
	stop         chan struct{}
	onBlockMined func(*block.Block)
}

// New returns a miner paying block rewards to coinbaseAddr.
func New(chain *blockchain.Chain, pool *mempool.Mempool, coinbaseAddr string) *Miner {
	return &Miner{chain: chain, pool: pool, coinbaseAddr: coinbaseAddr}
}

// OnBlockMined registers a callback invoked after each block is
// successfully mined and appended, used by the node to broadcast it.
func (m *Miner) OnBlockMined(fn func(*block.Block)) {
	m.mu.Lock()
	m.onBlockMined = fn
	m.mu.Unlock()
}

// AssembleCandidate builds the next unmined block: a coinbase paying
// the configured address, followed by up to MaxTransactionsPerBlock
// fee-ordered transactions drawn from the mempool.
func (m *Miner) AssembleCandidate() (*block.Block, error) {
	tip := m.chain.Tip()
	var prevHash string
	var height uint64
	if tip != nil {
		prevHash = tip.Hash
		height = tip.Header.Height + 1
	}

	coinbase, err := transaction.NewCoinbase(m.coinbaseAddr, fmt.Sprintf("mined at height %d", height))
	if err != nil {
		return nil, err
	}

	txs := append([]*transaction.Transaction{coinbase}, m.pool.GetTransactionsForBlock(MaxTransactionsPerBlock)...)
	return block.New(prevHash, height, txs), nil
}

// MineOnce assembles a candidate, mines it, and appends it to the
// chain, removing its non-coinbase transactions from the mempool on
// success.
func (m *Miner) MineOnce(stop <-chan struct{}) (*block.Block, error) {
	candidate, err := m.AssembleCandidate()
	if err != nil {
		return nil, err
	}
	if _, err := candidate.Mine(stop); err != nil {
		return nil, err
	}
	if err := m.chain.AddBlock(candidate); err != nil {
		return nil, coreerr.Wrap(coreerr.InvalidBlock, "append mined block", err)
	}
	m.pool.RemoveAll(candidate.Transactions[1:])

	m.mu.Lock()
	cb := m.onBlockMined
	m.mu.Unlock()
	if cb != nil {
		cb(candidate)
	}
	return candidate, nil
}

// Start runs MineOnce in a loop until Stop is called. Mining errors
// (e.g. an empty mempool producing a coinbase-only block is not an
// error; a race losing the chain tip to another block is) are ignored
// and the loop simply retries against the new tip.
func (m *Miner) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return coreerr.New(coreerr.InvalidBlock, "miner is already running")
	}
	m.running = true
	m.stop = make(chan struct{})
	stop := m.stop
	m.mu.Unlock()

	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			_, _ = m.MineOnce(stop)
			time.Sleep(10 * time.Millisecond)
		}
	}()
	return nil
}

// Stop halts the mining loop started by Start.
func (m *Miner) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stop)
}
