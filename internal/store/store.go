// Package store is a small badger-backed KV wrapper holding accounts,
// proposals and the proposal id sequence. Values are JSON; keys are
// prefixed ("account/<addr>", "proposal/<id>").
package store

import (
	"encoding/json"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

type Store struct {
	db *badger.DB

	// sequences are leased in blocks; Release on close persists the
	// unused remainder so ids stay monotonic across restarts.
	seqs []*badger.Sequence
}

// Open opens (or creates) the store at dir.
func Open(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("store: dir is required")
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "store: open badger")
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a throwaway store. Test use only.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "store: open badger in-memory")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	for _, seq := range s.seqs {
		_ = seq.Release()
	}
	return s.db.Close()
}

// SetJSON stores v under key as JSON.
func (s *Store) SetJSON(key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "store: marshal %s", key)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), b)
	})
}

// GetJSON loads key into out. Returns false if the key does not exist.
func (s *Store) GetJSON(key string, out interface{}) (bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "store: get %s", key)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, errors.Wrapf(err, "store: unmarshal %s", key)
	}
	return true, nil
}

// IteratePrefix calls fn for every key under prefix, in key order.
func (s *Store) IteratePrefix(prefix string, fn func(key string, val []byte) error) error {
	p := []byte(prefix)
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.Key()), val); err != nil {
				return err
			}
		}
		return nil
	})
}

// Sequence returns a named monotonic sequence. Values are never reused,
// including across restarts (a restart may skip ahead by the unreleased
// lease, which is fine for uniqueness).
func (s *Store) Sequence(name string) (*badger.Sequence, error) {
	seq, err := s.db.GetSequence([]byte("seq/"+name), 64)
	if err != nil {
		return nil, errors.Wrapf(err, "store: sequence %s", name)
	}
	s.seqs = append(s.seqs, seq)
	return seq, nil
}
