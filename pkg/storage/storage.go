// Package storage provides a bucketed key-value facade over a single
// embedded Badger instance: distinct logical buckets (blocks,
// addresses, utxos) share one physical store by prefixing keys, the
// way the teacher's storage layer prefixes hash/height/latest-height
// keys over one database.
package storage

import (
	"bytes"

	"github.com/dgraph-io/badger/v4"

	"github.com/minichain/nanochain/pkg/coreerr"
)

// Store is a single physical Badger instance exposing per-bucket
// Put/Get/Delete/Scan.
type Store struct {
	db *badger.DB
}

// Config configures the on-disk store.
type Config struct {
	Path string
}

// Open opens (creating if necessary) a Badger store at cfg.Path.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Io, "open storage", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return coreerr.Wrap(coreerr.Io, "close storage", err)
	}
	return nil
}

// Bucket names, also used as the key prefix separating their
// namespaces within the shared physical store.
const (
	BucketBlocks    = "blocks"
	BucketAddresses = "addresses"
	BucketUTXOs     = "utxos"
)

// Bucket is a namespaced view over Store, scoping every key to prefix.
type Bucket struct {
	store  *Store
	prefix []byte
}

// Bucket returns a namespaced view scoped to name.
func (s *Store) Bucket(name string) Bucket {
	return Bucket{store: s, prefix: append([]byte(name), ':')}
}

func (b Bucket) key(k string) []byte {
	return append(append([]byte{}, b.prefix...), []byte(k)...)
}

// Put writes value under key within the bucket's namespace.
func (b Bucket) Put(key string, value []byte) error {
	err := b.store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.key(key), value)
	})
	if err != nil {
		return coreerr.Wrap(coreerr.Database, "put", err)
	}
	return nil
}

// Get reads the value at key within the bucket's namespace.
func (b Bucket) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := b.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, coreerr.Wrap(coreerr.Database, "get", err)
	}
	return value, true, nil
}

// Delete removes key from the bucket's namespace.
func (b Bucket) Delete(key string) error {
	err := b.store.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.key(key))
	})
	if err != nil {
		return coreerr.Wrap(coreerr.Database, "delete", err)
	}
	return nil
}

// Scan calls fn for every key/value pair in the bucket whose key
// carries the given suffix prefix, in Badger's key order. fn returns
// false to stop iteration early.
func (b Bucket) Scan(keyPrefix string, fn func(key string, value []byte) bool) error {
	scanPrefix := b.key(keyPrefix)
	err := b.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = scanPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(scanPrefix); it.ValidForPrefix(scanPrefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			key := bytes.TrimPrefix(item.KeyCopy(nil), b.prefix)
			if !fn(string(key), value) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return coreerr.Wrap(coreerr.Database, "scan", err)
	}
	return nil
}
