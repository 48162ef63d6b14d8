// Package mempool holds validated, unconfirmed transactions awaiting
// inclusion in a block. Admission is validated and ordered by fee rate;
// a bounded LRU cache remembers already-validated transaction ids so a
// transaction re-broadcast by multiple peers is not re-verified from
// scratch.
package mempool

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/minichain/nanochain/pkg/coreerr"
	"github.com/minichain/nanochain/pkg/transaction"
)

const (
	// Capacity is the maximum number of transactions the pool holds at
	// once.
	Capacity = 5_000
	// MaxTxSize caps an individual transaction's serialized size.
	MaxTxSize = 100_000
	// MinFeeRate is the minimum fee, per serialized byte, a transaction
	// must offer to be admitted.
	MinFeeRate = 1e-5
	// ValidationCacheSize bounds the LRU cache of already-validated
	// transaction ids.
	ValidationCacheSize = 10_000
	// shardCount is the number of independent locked buckets the pool is
	// split across, so unrelated transactions don't contend on a single
	// mutex during concurrent admission.
	shardCount = 16
)

type entry struct {
	txid     string
	tx       *transaction.Transaction
	feeRate  float64
	size     int
	admitted time.Time
}

type shard struct {
	mu  sync.RWMutex
	txs map[string]entry
}

// Mempool is the shared pool of unconfirmed, admission-validated
// transactions.
type Mempool struct {
	shards    [shardCount]*shard
	count     sync.RWMutex // guards the aggregate count used for capacity checks
	size      int
	validated *lru.Cache[string, bool]
}

// New returns an empty mempool.
func New() *Mempool {
	cache, _ := lru.New[string, bool](ValidationCacheSize)
	mp := &Mempool{validated: cache}
	for i := range mp.shards {
		mp.shards[i] = &shard{txs: make(map[string]entry)}
	}
	return mp
}

func (mp *Mempool) shardFor(txid string) *shard {
	h := fnv.New32a()
	h.Write([]byte(txid))
	return mp.shards[h.Sum32()%shardCount]
}

// Size returns the number of transactions currently held.
func (mp *Mempool) Size() int {
	mp.count.RLock()
	defer mp.count.RUnlock()
	return mp.size
}

// Has reports whether txid is already in the pool.
func (mp *Mempool) Has(txid string) bool {
	s := mp.shardFor(txid)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.txs[txid]
	return ok
}

// Add validates tx against verifier and, if it passes, admits it to the
// pool. A previously-seen valid transaction id skips re-verification by
// consulting the validation cache, but its UTXO liveness is always
// re-checked since chain state changes underneath the cache.
func (mp *Mempool) Add(tx *transaction.Transaction, verifier transaction.UTXOVerifier) error {
	if tx.IsCoinbase() {
		return coreerr.New(coreerr.InvalidTransaction, "coinbase transactions do not belong in the mempool")
	}
	if mp.Has(tx.ID) {
		return coreerr.New(coreerr.DuplicateTransaction, tx.ID)
	}

	size := tx.SerializedSize()
	if size > MaxTxSize {
		return coreerr.New(coreerr.InvalidTransaction, "transaction exceeds maximum size")
	}

	feeRate := tx.FeeRate()
	if feeRate < MinFeeRate {
		return coreerr.New(coreerr.InvalidFee, "transaction fee rate is below the minimum")
	}

	if cached, ok := mp.validated.Get(tx.ID); !ok || !cached {
		if err := tx.Verify(verifier); err != nil {
			mp.validated.Add(tx.ID, false)
			return err
		}
		mp.validated.Add(tx.ID, true)
	} else {
		for i := range tx.Inputs {
			if !verifier.VerifyInput(&tx.Inputs[i]) {
				return coreerr.New(coreerr.UTXOError, "input no longer references a live utxo")
			}
		}
	}

	if err := mp.reserveSlot(feeRate); err != nil {
		return err
	}

	s := mp.shardFor(tx.ID)
	s.mu.Lock()
	s.txs[tx.ID] = entry{txid: tx.ID, tx: tx, feeRate: feeRate, size: size, admitted: time.Now()}
	s.mu.Unlock()

	mp.count.Lock()
	mp.size++
	mp.count.Unlock()
	return nil
}

// reserveSlot ensures there is room for a new transaction with the
// given fee rate, evicting the single lowest fee-rate transaction in
// the pool if it is at capacity and the incoming transaction outbids
// it. Returns an error if the pool is full and cannot make room.
func (mp *Mempool) reserveSlot(feeRate float64) error {
	if mp.Size() < Capacity {
		return nil
	}

	lowestID, lowestRate, found := mp.lowestFeeRate()
	if !found || feeRate <= lowestRate {
		return coreerr.New(coreerr.CapacityExceeded, "mempool is full")
	}
	mp.Remove(lowestID)
	return nil
}

// lowestFeeRate returns the eviction candidate: the lowest fee-rate
// entry in the pool. Ties are broken deterministically by oldest
// arrival first, then lexicographically smallest txid, the same
// tiebreak blockOrderLess applies to block assembly, so eviction never
// depends on map-iteration order.
func (mp *Mempool) lowestFeeRate() (string, float64, bool) {
	var (
		lowest entry
		found  bool
	)
	for _, s := range mp.shards {
		s.mu.RLock()
		for _, e := range s.txs {
			if !found || isLowerPriority(e, lowest) {
				lowest, found = e, true
			}
		}
		s.mu.RUnlock()
	}
	return lowest.txid, lowest.feeRate, found
}

// isLowerPriority reports whether candidate is the worse eviction
// candidate compared to current: a strictly lower fee rate, or (tied)
// an older arrival, or (tied) a lexicographically smaller txid.
func isLowerPriority(candidate, current entry) bool {
	if candidate.feeRate != current.feeRate {
		return candidate.feeRate < current.feeRate
	}
	if !candidate.admitted.Equal(current.admitted) {
		return candidate.admitted.Before(current.admitted)
	}
	return candidate.txid < current.txid
}

// Remove drops txid from the pool, if present.
func (mp *Mempool) Remove(txid string) {
	s := mp.shardFor(txid)
	s.mu.Lock()
	_, existed := s.txs[txid]
	delete(s.txs, txid)
	s.mu.Unlock()

	if existed {
		mp.count.Lock()
		mp.size--
		mp.count.Unlock()
	}
}

// RemoveAll drops every transaction in txs, used after a block confirms
// them.
func (mp *Mempool) RemoveAll(txs []*transaction.Transaction) {
	for _, tx := range txs {
		mp.Remove(tx.ID)
	}
}

// GetTransactionsForBlock returns up to limit pooled transactions
// ordered by descending fee rate, the selection a miner assembles a
// block from. Transactions tied on fee rate are ordered by arrival
// timestamp ascending (older first), then lexicographic txid, so the
// result is fully deterministic. A limit of zero returns every
// transaction.
func (mp *Mempool) GetTransactionsForBlock(limit int) []*transaction.Transaction {
	all := mp.allEntries()
	sort.SliceStable(all, func(i, j int) bool {
		return blockOrderLess(all[i], all[j])
	})
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	out := make([]*transaction.Transaction, len(all))
	for i, e := range all {
		out[i] = e.tx
	}
	return out
}

// blockOrderLess reports whether a sorts before b in block-assembly
// order: higher fee rate first, ties broken by older arrival, then
// lexicographically smaller txid.
func blockOrderLess(a, b entry) bool {
	if a.feeRate != b.feeRate {
		return a.feeRate > b.feeRate
	}
	if !a.admitted.Equal(b.admitted) {
		return a.admitted.Before(b.admitted)
	}
	return a.txid < b.txid
}

func (mp *Mempool) allEntries() []entry {
	var all []entry
	for _, s := range mp.shards {
		s.mu.RLock()
		for _, e := range s.txs {
			all = append(all, e)
		}
		s.mu.RUnlock()
	}
	return all
}

// CleanupOldTransactions removes every transaction admitted more than
// maxAge ago and returns how many were evicted. It is called
// periodically by the node, not run on an internal timer.
func (mp *Mempool) CleanupOldTransactions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	var removed int
	for _, s := range mp.shards {
		s.mu.Lock()
		for txid, e := range s.txs {
			if e.admitted.Before(cutoff) {
				delete(s.txs, txid)
				removed++
			}
		}
		s.mu.Unlock()
	}
	if removed > 0 {
		mp.count.Lock()
		mp.size -= removed
		mp.count.Unlock()
	}
	return removed
}
