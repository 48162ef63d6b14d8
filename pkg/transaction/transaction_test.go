package transaction

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minichain/nanochain/pkg/crypto"
)

type fakeUTXOSet struct {
	outputs map[string]TxOutput
}

func utxoKey(txid string, vout int) string {
	return fmt.Sprintf("%s:%d", txid, vout)
}

func (f *fakeUTXOSet) Find(txid string, vout int) (TxOutput, bool) {
	out, ok := f.outputs[utxoKey(txid, vout)]
	return out, ok
}

func (f *fakeUTXOSet) VerifyInput(in *TxInput) bool {
	_, ok := f.outputs[utxoKey(in.TxID, in.Vout)]
	return ok
}

func (f *fakeUTXOSet) FindSpendableOutputs(address string, amount int64) ([]UTXOInfo, error) {
	var infos []UTXOInfo
	var total int64
	for key, out := range f.outputs {
		infos = append(infos, UTXOInfo{TxID: key, Vout: 0, Value: out.Value})
		total += out.Value
		if total >= amount {
			break
		}
	}
	return infos, nil
}

func mustAddress(t *testing.T, pub []byte) string {
	t.Helper()
	addr, err := crypto.AddressFromPubKeyHash(crypto.PubKeyHash(pub))
	require.NoError(t, err)
	return addr
}

func TestNewCoinbaseHasSentinelInputAndSubsidy(t *testing.T) {
	secret, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	addr := mustAddress(t, crypto.CompressedPubKey(secret.PubKey()))

	tx, err := NewCoinbase(addr, "block reward")
	require.NoError(t, err)

	assert.True(t, tx.IsCoinbase())
	assert.Equal(t, -1, tx.Inputs[0].Vout)
	assert.Equal(t, int64(Subsidy), tx.Outputs[0].Value)
	assert.NoError(t, tx.Verify(nil))
}

func TestFeeRateIsZeroForCoinbase(t *testing.T) {
	secret, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	addr := mustAddress(t, crypto.CompressedPubKey(secret.PubKey()))

	tx, err := NewCoinbase(addr, "")
	require.NoError(t, err)
	assert.Zero(t, tx.FeeRate())
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	secret, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	pub := crypto.CompressedPubKey(secret.PubKey())
	hash := crypto.PubKeyHash(pub)

	otherHash := crypto.PubKeyHash([]byte("some-other-recipient-pubkey-012"))

	tx := &Transaction{
		Inputs:  []TxInput{{TxID: "prev", Vout: 0, Value: 100}},
		Outputs: []TxOutput{{Value: 50, PubKeyHash: otherHash}, {Value: 49, PubKeyHash: hash}},
	}
	tx.ID = tx.computeID()

	require.NoError(t, Sign(tx, NewSigner(secret, pub)))

	set := &fakeUTXOSet{outputs: map[string]TxOutput{
		utxoKey("prev", 0): {Value: 100, PubKeyHash: hash},
	}}

	assert.NoError(t, tx.Verify(set))
}

func TestVerifyRejectsUnbalancedTransaction(t *testing.T) {
	secret, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	pub := crypto.CompressedPubKey(secret.PubKey())
	hash := crypto.PubKeyHash(pub)

	tx := &Transaction{
		Inputs:  []TxInput{{TxID: "prev", Vout: 0, Value: 100}},
		Outputs: []TxOutput{{Value: 100, PubKeyHash: hash}},
	}
	tx.ID = tx.computeID()
	require.NoError(t, Sign(tx, NewSigner(secret, pub)))

	set := &fakeUTXOSet{outputs: map[string]TxOutput{
		utxoKey("prev", 0): {Value: 100, PubKeyHash: hash},
	}}

	assert.Error(t, tx.Verify(set))
}

func TestVerifyRejectsMissingUTXO(t *testing.T) {
	secret, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	pub := crypto.CompressedPubKey(secret.PubKey())
	hash := crypto.PubKeyHash(pub)

	tx := &Transaction{
		Inputs:  []TxInput{{TxID: "missing", Vout: 0, Value: 100}},
		Outputs: []TxOutput{{Value: 50, PubKeyHash: hash}},
	}
	tx.ID = tx.computeID()
	require.NoError(t, Sign(tx, NewSigner(secret, pub)))

	set := &fakeUTXOSet{outputs: map[string]TxOutput{}}
	assert.Error(t, tx.Verify(set))
}

func TestVerifyRejectsWrongOwnerSignature(t *testing.T) {
	owner, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	ownerPub := crypto.CompressedPubKey(owner.PubKey())
	ownerHash := crypto.PubKeyHash(ownerPub)

	impostor, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	impostorPub := crypto.CompressedPubKey(impostor.PubKey())

	tx := &Transaction{
		Inputs:  []TxInput{{TxID: "prev", Vout: 0, Value: 100}},
		Outputs: []TxOutput{{Value: 50, PubKeyHash: ownerHash}},
	}
	tx.ID = tx.computeID()
	require.NoError(t, Sign(tx, NewSigner(impostor, impostorPub)))

	set := &fakeUTXOSet{outputs: map[string]TxOutput{
		utxoKey("prev", 0): {Value: 100, PubKeyHash: ownerHash},
	}}

	assert.Error(t, tx.Verify(set))
}

func TestStrippedSerializationExcludesSignatureAndID(t *testing.T) {
	secret, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	pub := crypto.CompressedPubKey(secret.PubKey())

	tx := &Transaction{
		Inputs:  []TxInput{{TxID: "a", Vout: 0, Value: 10}},
		Outputs: []TxOutput{{Value: 9, PubKeyHash: []byte("x")}},
	}
	before := tx.stripped()

	tx.ID = tx.computeID()
	require.NoError(t, Sign(tx, NewSigner(secret, pub)))
	after := tx.stripped()

	assert.Equal(t, before, after, "setting the ID and signing must not change the stripped serialization")
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	secret, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	pub := crypto.CompressedPubKey(secret.PubKey())
	hash := crypto.PubKeyHash(pub)

	tx := &Transaction{
		Inputs:  []TxInput{{TxID: "prev", Vout: 0, Value: 100}},
		Outputs: []TxOutput{{Value: 50, PubKeyHash: hash}},
	}
	tx.ID = tx.computeID()
	require.NoError(t, Sign(tx, NewSigner(secret, pub)))

	data, err := tx.Serialize()
	require.NoError(t, err)

	back, err := Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, back.ID)
	assert.Equal(t, tx.Inputs, back.Inputs)
	assert.Equal(t, tx.Outputs, back.Outputs)
}

func TestNewBuildsChangeOutput(t *testing.T) {
	secret, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	fromAddr := mustAddress(t, crypto.CompressedPubKey(secret.PubKey()))

	toSecret, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	toAddr := mustAddress(t, crypto.CompressedPubKey(toSecret.PubKey()))

	finder := spendableStub{value: 100}
	tx, err := New(fromAddr, toAddr, 30, finder)
	require.NoError(t, err)

	require.Len(t, tx.Outputs, 2)
	assert.Equal(t, int64(30), tx.Outputs[0].Value)
	assert.Equal(t, int64(100-30-Fee), tx.Outputs[1].Value)
}

func TestNewFailsOnInsufficientFunds(t *testing.T) {
	secret, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	fromAddr := mustAddress(t, crypto.CompressedPubKey(secret.PubKey()))
	toAddr := fromAddr

	finder := spendableStub{value: 10}
	_, err = New(fromAddr, toAddr, 30, finder)
	assert.Error(t, err)
}

type spendableStub struct {
	value int64
}

func (s spendableStub) FindSpendableOutputs(address string, amount int64) ([]UTXOInfo, error) {
	return []UTXOInfo{{TxID: "prev", Vout: 0, Value: s.value}}, nil
}
