// Package crypto provides the cryptographic primitives shared by the
// wallet and transaction packages: SHA-256, RIPEMD-160, Base58Check
// addressing, and ECDSA over secp256k1 with a 64-byte compact signature
// encoding.
package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // RIPEMD-160 is required by the address format, not a choice.

	"github.com/minichain/nanochain/pkg/coreerr"
)

const (
	addressVersion  = 0x00
	checksumLength  = 4
	pubKeyHashLen   = 20
	compressedPKLen = 33
	compactSigLen   = 64
)

// Sha256 hashes data with a single round of SHA-256.
func Sha256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// DoubleSha256 hashes data with two rounds of SHA-256, the checksum scheme
// used throughout Base58Check.
func DoubleSha256(data []byte) [32]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// Ripemd160 hashes data with RIPEMD-160, used to derive the 20-byte
// pubkey hash embedded in every address and output.
func Ripemd160(data []byte) []byte {
	h := ripemd160.New()
	h.Write(data)
	return h.Sum(nil)
}

// PubKeyHash computes RIPEMD160(SHA256(pubkey)), the binding recorded in
// every TxOutput and recovered from a decoded address.
func PubKeyHash(pubKey []byte) []byte {
	sha := sha256.Sum256(pubKey)
	return Ripemd160(sha[:])
}

// GenerateKeyPair generates a fresh secp256k1 keypair using a
// cryptographically secure RNG.
func GenerateKeyPair() (*btcec.PrivateKey, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, coreerr.Wrap(coreerr.InvalidSignature, "generate keypair", err)
	}
	return key, nil
}

// CompressedPubKey returns the 33-byte compressed SEC1 encoding of pub.
func CompressedPubKey(pub *btcec.PublicKey) []byte {
	return pub.SerializeCompressed()
}

// ParsePubKey parses a 33-byte compressed public key.
func ParsePubKey(data []byte) (*btcec.PublicKey, error) {
	if len(data) != compressedPKLen {
		return nil, coreerr.New(coreerr.InvalidPublicKey, "expected 33-byte compressed public key")
	}
	pub, err := btcec.ParsePubKey(data)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.InvalidPublicKey, "parse public key", err)
	}
	return pub, nil
}

// Sign signs a 32-byte message digest with secret, returning a 64-byte
// compact signature (raw R||S, no recovery id).
func Sign(secret *btcec.PrivateKey, msg32 []byte) ([]byte, error) {
	if secret == nil {
		return nil, coreerr.New(coreerr.InvalidSignature, "read-only")
	}
	if len(msg32) != 32 {
		return nil, coreerr.New(coreerr.InvalidMessage, "message must be a 32-byte digest")
	}
	r, s, err := ecdsa.Sign(rand.Reader, secret.ToECDSA(), msg32)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.InvalidSignature, "sign digest", err)
	}
	return concatRS(r, s), nil
}

// Verify checks a 64-byte compact signature against a 33-byte compressed
// public key and a 32-byte message digest. A signature mismatch returns
// (false, nil); only malformed inputs return an error.
func Verify(pubKeySer []byte, msg32 []byte, sig []byte) (bool, error) {
	if len(msg32) != 32 {
		return false, coreerr.New(coreerr.InvalidMessage, "message must be a 32-byte digest")
	}
	if len(sig) != compactSigLen {
		return false, coreerr.New(coreerr.InvalidSignature, "expected 64-byte compact signature")
	}
	pub, err := ParsePubKey(pubKeySer)
	if err != nil {
		return false, err
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return false, nil
	}
	return ecdsa.Verify(pub.ToECDSA(), msg32, r, s), nil
}

func concatRS(r, s *big.Int) []byte {
	out := make([]byte, compactSigLen)
	rb := r.Bytes()
	sb := s.Bytes()
	copy(out[32-len(rb):32], rb)
	copy(out[64-len(sb):], sb)
	return out
}

// Base58CheckEncode encodes payload as VERSION || payload || CHECKSUM,
// where CHECKSUM is the first four bytes of DoubleSha256(VERSION||payload).
func Base58CheckEncode(payload []byte) string {
	versioned := append([]byte{addressVersion}, payload...)
	checksum := DoubleSha256(versioned)
	full := append(versioned, checksum[:checksumLength]...)
	return base58.Encode(full)
}

// Base58CheckDecode decodes a Base58Check string, verifies its checksum,
// and returns the payload with version and checksum stripped.
func Base58CheckDecode(addr string) ([]byte, error) {
	full, err := base58.Decode(addr)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.InvalidAddress, "base58 decode", err)
	}
	if len(full) <= checksumLength+1 {
		return nil, coreerr.New(coreerr.InvalidAddress, "payload too short")
	}
	versioned := full[:len(full)-checksumLength]
	checksum := full[len(full)-checksumLength:]
	expected := DoubleSha256(versioned)
	if !bytes.Equal(checksum, expected[:checksumLength]) {
		return nil, coreerr.New(coreerr.InvalidAddress, "checksum mismatch")
	}
	if versioned[0] != addressVersion {
		return nil, coreerr.New(coreerr.InvalidAddress, "unsupported version byte")
	}
	return versioned[1:], nil
}

// AddressFromPubKeyHash encodes a 20-byte pubkey hash as a Base58Check
// address.
func AddressFromPubKeyHash(pubKeyHash []byte) (string, error) {
	if len(pubKeyHash) != pubKeyHashLen {
		return "", coreerr.New(coreerr.InvalidAddress, "pubkey hash must be 20 bytes")
	}
	return Base58CheckEncode(pubKeyHash), nil
}

// DecodeAddress decodes addr and returns its 20-byte pubkey hash.
func DecodeAddress(addr string) ([]byte, error) {
	payload, err := Base58CheckDecode(addr)
	if err != nil {
		return nil, err
	}
	if len(payload) != pubKeyHashLen {
		return nil, coreerr.New(coreerr.InvalidAddress, "decoded payload is not 20 bytes")
	}
	return payload, nil
}
