package mempool

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minichain/nanochain/pkg/crypto"
	"github.com/minichain/nanochain/pkg/transaction"
)

type fakeVerifier struct {
	outputs map[string]transaction.TxOutput
}

func fvKey(txid string, vout int) string {
	return txid + "#" + string(rune('0'+vout))
}

func (f *fakeVerifier) Find(txid string, vout int) (transaction.TxOutput, bool) {
	out, ok := f.outputs[fvKey(txid, vout)]
	return out, ok
}

func (f *fakeVerifier) VerifyInput(in *transaction.TxInput) bool {
	_, ok := f.outputs[fvKey(in.TxID, in.Vout)]
	return ok
}

func buildSpend(t *testing.T, inputValue, outputValue int64) (*transaction.Transaction, *fakeVerifier) {
	t.Helper()
	secret, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	pub := crypto.CompressedPubKey(secret.PubKey())
	hash := crypto.PubKeyHash(pub)

	tx := &transaction.Transaction{
		Inputs:  []transaction.TxInput{{TxID: "prev", Vout: 0, Value: inputValue}},
		Outputs: []transaction.TxOutput{{Value: outputValue, PubKeyHash: hash}},
	}
	tx.ID = fmt.Sprintf("synthetic-%d-%d", inputValue, outputValue)
	require.NoError(t, transaction.Sign(tx, transaction.NewSigner(secret, pub)))

	verifier := &fakeVerifier{outputs: map[string]transaction.TxOutput{
		fvKey("prev", 0): {Value: inputValue, PubKeyHash: hash},
	}}
	return tx, verifier
}

func TestAddAcceptsValidTransaction(t *testing.T) {
	tx, verifier := buildSpend(t, 1000, 900)
	mp := New()
	require.NoError(t, mp.Add(tx, verifier))
	assert.True(t, mp.Has(tx.ID))
	assert.Equal(t, 1, mp.Size())
}

func TestAddRejectsDuplicate(t *testing.T) {
	tx, verifier := buildSpend(t, 1000, 900)
	mp := New()
	require.NoError(t, mp.Add(tx, verifier))
	assert.Error(t, mp.Add(tx, verifier))
}

func TestAddRejectsCoinbase(t *testing.T) {
	secret, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	hash := crypto.PubKeyHash(crypto.CompressedPubKey(secret.PubKey()))
	addr, err := crypto.AddressFromPubKeyHash(hash)
	require.NoError(t, err)

	coinbase, err := transaction.NewCoinbase(addr, "")
	require.NoError(t, err)

	mp := New()
	assert.Error(t, mp.Add(coinbase, nil))
}

func TestAddRejectsOversizedTransaction(t *testing.T) {
	tx, verifier := buildSpend(t, 1000, 500)
	for i := 0; i < 5000; i++ {
		tx.Outputs = append(tx.Outputs, transaction.TxOutput{Value: 1, PubKeyHash: []byte("padding-output-to-grow-size")})
	}
	mp := New()
	assert.Error(t, mp.Add(tx, verifier))
}

func TestGetTransactionsForBlockOrdersByFeeRate(t *testing.T) {
	mp := New()
	highFee, hv := buildSpend(t, 1000, 500) // large fee
	lowFee, lv := buildSpend(t, 1000, 990)  // small fee
	require.NoError(t, mp.Add(highFee, hv))
	require.NoError(t, mp.Add(lowFee, lv))

	ordered := mp.GetTransactionsForBlock(0)
	require.Len(t, ordered, 2)
	assert.Equal(t, highFee.ID, ordered[0].ID)
}

func TestGetTransactionsForBlockBreaksFeeRateTiesByArrivalThenTxID(t *testing.T) {
	mp := New()
	first, fv := buildSpend(t, 1000, 500)
	second, sv := buildSpend(t, 1000, 500) // identical fee and size, so identical fee rate
	first.ID = "zzz-later-lexicographically"
	second.ID = "aaa-lower-lexicographically" // same length as first.ID, so same serialized size
	require.NoError(t, mp.Add(first, fv))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, mp.Add(second, sv))

	ordered := mp.GetTransactionsForBlock(0)
	require.Len(t, ordered, 2)
	// first arrived earlier than second despite sorting after it
	// lexicographically, so arrival order wins the tiebreak.
	assert.Equal(t, first.ID, ordered[0].ID)
	assert.Equal(t, second.ID, ordered[1].ID)
}

func TestBlockOrderLessBreaksTiesByTxIDWhenArrivalEqual(t *testing.T) {
	now := time.Now()
	a := entry{txid: "aaa", feeRate: 1, admitted: now}
	b := entry{txid: "bbb", feeRate: 1, admitted: now}
	assert.True(t, blockOrderLess(a, b))
	assert.False(t, blockOrderLess(b, a))
}

func TestIsLowerPriorityPrefersLowerFeeRateThenOlderThenSmallerTxID(t *testing.T) {
	older := time.Now()
	newer := older.Add(time.Second)

	lowFee := entry{txid: "x", feeRate: 1, admitted: older}
	highFee := entry{txid: "y", feeRate: 2, admitted: older}
	assert.True(t, isLowerPriority(lowFee, highFee))
	assert.False(t, isLowerPriority(highFee, lowFee))

	tiedOlder := entry{txid: "z", feeRate: 1, admitted: older}
	tiedNewer := entry{txid: "a", feeRate: 1, admitted: newer}
	assert.True(t, isLowerPriority(tiedOlder, tiedNewer))
	assert.False(t, isLowerPriority(tiedNewer, tiedOlder))

	sameTimeA := entry{txid: "aaa", feeRate: 1, admitted: older}
	sameTimeB := entry{txid: "bbb", feeRate: 1, admitted: older}
	assert.True(t, isLowerPriority(sameTimeA, sameTimeB))
	assert.False(t, isLowerPriority(sameTimeB, sameTimeA))
}

func TestRemoveAllEvictsConfirmedTransactions(t *testing.T) {
	tx, verifier := buildSpend(t, 1000, 500)
	mp := New()
	require.NoError(t, mp.Add(tx, verifier))
	mp.RemoveAll([]*transaction.Transaction{tx})
	assert.False(t, mp.Has(tx.ID))
	assert.Equal(t, 0, mp.Size())
}

func TestCleanupOldTransactionsEvictsStaleEntries(t *testing.T) {
	tx, verifier := buildSpend(t, 1000, 500)
	mp := New()
	require.NoError(t, mp.Add(tx, verifier))

	removed := mp.CleanupOldTransactions(time.Hour)
	assert.Equal(t, 0, removed)

	time.Sleep(2 * time.Millisecond)
	removed = mp.CleanupOldTransactions(time.Millisecond)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, mp.Size())
}
