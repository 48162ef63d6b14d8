// Package utxo maintains the set of unspent transaction outputs: the
// live index consulted by transaction verification, spend construction,
// and balance queries.
package utxo

import (
	"fmt"
	"sync"

	"github.com/minichain/nanochain/pkg/coreerr"
	"github.com/minichain/nanochain/pkg/transaction"
)

// Set is the unspent-output index keyed by "txid:vout". It is safe for
// concurrent use.
type Set struct {
	mu      sync.RWMutex
	outputs map[string]entry
}

type entry struct {
	txid   string
	vout   int
	output transaction.TxOutput
}

// New returns an empty UTXO set.
func New() *Set {
	return &Set{outputs: make(map[string]entry)}
}

func key(txid string, vout int) string {
	return fmt.Sprintf("%s:%d", txid, vout)
}

// Exists reports whether (txid, vout) is currently unspent.
func (s *Set) Exists(txid string, vout int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.outputs[key(txid, vout)]
	return ok
}

// Find returns the output at (txid, vout), if unspent.
func (s *Set) Find(txid string, vout int) (transaction.TxOutput, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.outputs[key(txid, vout)]
	if !ok {
		return transaction.TxOutput{}, false
	}
	return e.output, true
}

// VerifyInput reports whether in references a currently live output.
// This is the only check VerifyInput performs; amount and ownership are
// checked separately by Transaction.Verify via Find.
func (s *Set) VerifyInput(in *transaction.TxInput) bool {
	return s.Exists(in.TxID, in.Vout)
}

// Balance sums the value of every unspent output owned by pubKeyHash.
func (s *Set) Balance(pubKeyHash []byte) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, e := range s.outputs {
		if hashEqual(e.output.PubKeyHash, pubKeyHash) {
			total += e.output.Value
		}
	}
	return total
}

// FindSpendableOutputs greedily accumulates unspent outputs owned by the
// holder of pubKeyHash until their sum reaches amount, or returns every
// output owned by pubKeyHash if that sum falls short (the caller
// reports InsufficientFunds in that case).
func (s *Set) FindSpendableOutputs(pubKeyHash []byte, amount int64) ([]transaction.UTXOInfo, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var accumulated int64
	var infos []transaction.UTXOInfo
	for _, e := range s.outputs {
		if !hashEqual(e.output.PubKeyHash, pubKeyHash) {
			continue
		}
		infos = append(infos, transaction.UTXOInfo{TxID: e.txid, Vout: e.vout, Value: e.output.Value})
		accumulated += e.output.Value
		if accumulated >= amount {
			break
		}
	}
	return infos, accumulated
}

// AddressFinder adapts a Set to transaction.SpendableOutputFinder,
// resolving an address to a pubkey hash before delegating.
type AddressFinder struct {
	Set     *Set
	Decode  func(address string) ([]byte, error)
}

// FindSpendableOutputs implements transaction.SpendableOutputFinder.
func (a AddressFinder) FindSpendableOutputs(address string, amount int64) ([]transaction.UTXOInfo, error) {
	pubKeyHash, err := a.Decode(address)
	if err != nil {
		return nil, err
	}
	infos, accumulated := a.Set.FindSpendableOutputs(pubKeyHash, amount)
	if accumulated < amount {
		return nil, coreerr.New(coreerr.InsufficientFunds, fmt.Sprintf("have %d, need %d", accumulated, amount))
	}
	return infos, nil
}

func hashEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Apply consumes txs' inputs and inserts their outputs. It is the only
// mutator used during normal block processing: every input is removed
// before any output of the same batch is inserted, so a transaction may
// not spend an output created earlier in the same batch (intra-block
// spend chains are rejected upstream, at block validation).
func (s *Set) Apply(txs []*transaction.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		if !tx.IsCoinbase() {
			for _, in := range tx.Inputs {
				delete(s.outputs, key(in.TxID, in.Vout))
			}
		}
	}
	for _, tx := range txs {
		for vout, out := range tx.Outputs {
			s.outputs[key(tx.ID, vout)] = entry{txid: tx.ID, vout: vout, output: out}
		}
	}
}

// Reindex rebuilds the set from scratch over the given block sequence,
// replaying every transaction's outputs and inputs in order. A
// transaction whose id collides with one already seen is logged by the
// caller and skipped here, the same divergence-tolerant behavior the
// original node uses when replaying a chain built by another process.
func Reindex(blocks [][]*transaction.Transaction) (*Set, []string) {
	set := New()
	var warnings []string
	seen := make(map[string]bool)

	for _, txs := range blocks {
		for _, tx := range txs {
			if seen[tx.ID] {
				warnings = append(warnings, fmt.Sprintf("duplicate transaction id %s skipped during reindex", tx.ID))
				continue
			}
			seen[tx.ID] = true
		}
	}

	added := make(map[string]bool)
	for _, txs := range blocks {
		filtered := make([]*transaction.Transaction, 0, len(txs))
		for _, tx := range txs {
			if added[tx.ID] {
				continue
			}
			added[tx.ID] = true
			filtered = append(filtered, tx)
		}
		set.Apply(filtered)
	}
	return set, warnings
}

// Size returns the number of tracked unspent outputs.
func (s *Set) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.outputs)
}
