// Package wallet manages keypairs and the addresses derived from them.
// Wallets either hold a private key (spendable) or only a public key
// (watch-only); both satisfy transaction.Signer where signing is
// possible. Keys are kept in memory and persisted in the clear — at-rest
// encryption is outside this package's scope.
package wallet

import (
	"encoding/gob"
	"fmt"
	"os"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/minichain/nanochain/pkg/coreerr"
	"github.com/minichain/nanochain/pkg/crypto"
)

// Wallet is a keypair and the address it derives. Secret is nil for a
// watch-only wallet created from a public key alone.
type Wallet struct {
	Secret  *btcec.PrivateKey
	PubKey  []byte
	Address string
}

// New generates a fresh keypair and its derived address.
func New() (*Wallet, error) {
	secret, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	pub := crypto.CompressedPubKey(secret.PubKey())
	addr, err := crypto.AddressFromPubKeyHash(crypto.PubKeyHash(pub))
	if err != nil {
		return nil, err
	}
	return &Wallet{Secret: secret, PubKey: pub, Address: addr}, nil
}

// FromPublicKey builds a watch-only wallet from a 33-byte compressed
// public key: it can verify and derive an address, but never sign.
func FromPublicKey(pubKey []byte) (*Wallet, error) {
	if _, err := crypto.ParsePubKey(pubKey); err != nil {
		return nil, err
	}
	addr, err := crypto.AddressFromPubKeyHash(crypto.PubKeyHash(pubKey))
	if err != nil {
		return nil, err
	}
	return &Wallet{PubKey: pubKey, Address: addr}, nil
}

// PublicKeyBytes implements transaction.Signer.
func (w *Wallet) PublicKeyBytes() []byte { return w.PubKey }

// Sign implements transaction.Signer. It fails if w has no secret key.
func (w *Wallet) Sign(msg32 []byte) ([]byte, error) {
	if w.Secret == nil {
		return nil, coreerr.New(coreerr.InvalidSignature, "wallet is watch-only")
	}
	return crypto.Sign(w.Secret, msg32)
}

// record is the gob-stable representation persisted to disk: the raw
// secret key bytes (nil for a watch-only wallet) and the public key.
type record struct {
	SecretBytes []byte
	PubKey      []byte
}

func (w *Wallet) toRecord() record {
	r := record{PubKey: w.PubKey}
	if w.Secret != nil {
		r.SecretBytes = w.Secret.Serialize()
	}
	return r
}

func fromRecord(r record) (*Wallet, error) {
	addr, err := crypto.AddressFromPubKeyHash(crypto.PubKeyHash(r.PubKey))
	if err != nil {
		return nil, err
	}
	w := &Wallet{PubKey: r.PubKey, Address: addr}
	if len(r.SecretBytes) > 0 {
		w.Secret, _ = btcec.PrivKeyFromBytes(r.SecretBytes)
	}
	return w, nil
}

// Wallets is a named collection of wallets keyed by address, persisted
// as a single file.
type Wallets struct {
	mu      sync.RWMutex
	wallets map[string]*Wallet
}

// NewWallets returns an empty collection.
func NewWallets() *Wallets {
	return &Wallets{wallets: make(map[string]*Wallet)}
}

// CreateWallet generates a new wallet, adds it to the collection, and
// returns its address.
func (ws *Wallets) CreateWallet() (string, error) {
	w, err := New()
	if err != nil {
		return "", err
	}
	ws.mu.Lock()
	ws.wallets[w.Address] = w
	ws.mu.Unlock()
	return w.Address, nil
}

// Get returns the wallet for address, if known.
func (ws *Wallets) Get(address string) (*Wallet, bool) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	w, ok := ws.wallets[address]
	return w, ok
}

// Addresses returns every address currently held.
func (ws *Wallets) Addresses() []string {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	out := make([]string, 0, len(ws.wallets))
	for addr := range ws.wallets {
		out = append(out, addr)
	}
	return out
}

// SaveToFile gob-encodes the collection to path.
func (ws *Wallets) SaveToFile(path string) error {
	ws.mu.RLock()
	records := make(map[string]record, len(ws.wallets))
	for addr, w := range ws.wallets {
		records[addr] = w.toRecord()
	}
	ws.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return coreerr.Wrap(coreerr.Io, "create wallet file", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(records); err != nil {
		return coreerr.Wrap(coreerr.Serialization, "encode wallets", err)
	}
	return nil
}

// LoadWalletsFromFile reconstructs a collection from a file written by
// SaveToFile.
func LoadWalletsFromFile(path string) (*Wallets, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Io, "open wallet file", err)
	}
	defer f.Close()

	var records map[string]record
	if err := gob.NewDecoder(f).Decode(&records); err != nil {
		return nil, coreerr.Wrap(coreerr.Deserialization, "decode wallets", err)
	}

	ws := NewWallets()
	for addr, r := range records {
		w, err := fromRecord(r)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Deserialization, fmt.Sprintf("wallet %s", addr), err)
		}
		ws.wallets[addr] = w
	}
	return ws, nil
}
