// Package book owns trade proposals: creation, listing, retirement.
// Ids are assigned from a persisted monotonic sequence and never
// reused. Retire is compare-and-swap shaped: retiring a proposal that
// is already inactive fails instead of no-opping, which is what turns a
// settlement race into a detectable error.
package book

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/btree"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/gridwatt/energytrade/internal/domain"
	"github.com/gridwatt/energytrade/internal/store"
)

const keyPrefix = "proposal/"

type Book struct {
	kv  *store.Store
	seq *badger.Sequence

	mu   sync.RWMutex
	byID map[uint64]domain.Proposal
	// ids keeps creation order without sorting on every list call.
	ids *btree.BTreeG[uint64]
}

// New loads existing proposals from kv and wires the id sequence.
func New(kv *store.Store) (*Book, error) {
	seq, err := kv.Sequence("proposal_id")
	if err != nil {
		return nil, err
	}
	b := &Book{
		kv:   kv,
		seq:  seq,
		byID: make(map[uint64]domain.Proposal),
		ids:  btree.NewG[uint64](8, func(a, b uint64) bool { return a < b }),
	}
	err = kv.IteratePrefix(keyPrefix, func(key string, val []byte) error {
		var p domain.Proposal
		if err := json.Unmarshal(val, &p); err != nil {
			return errors.Wrapf(err, "book: corrupt record %s", key)
		}
		b.byID[p.ID] = p
		b.ids.ReplaceOrInsert(p.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Create validates and stores a new active proposal, returning it with
// its assigned id.
func (b *Book) Create(proposer common.Address, energyAmount, pricePerUnit decimal.Decimal, duration int64) (domain.Proposal, error) {
	if energyAmount.Sign() <= 0 {
		return domain.Proposal{}, errors.Wrap(domain.ErrInvalidParameters, "energy amount must be positive")
	}
	if pricePerUnit.Sign() <= 0 {
		return domain.Proposal{}, errors.Wrap(domain.ErrInvalidParameters, "price per unit must be positive")
	}
	if duration <= 0 {
		return domain.Proposal{}, errors.Wrap(domain.ErrInvalidParameters, "duration must be positive")
	}

	n, err := b.seq.Next()
	if err != nil {
		return domain.Proposal{}, errors.Wrap(err, "book: next id")
	}
	p := domain.Proposal{
		ID:           n + 1, // ids start at 1
		Proposer:     proposer,
		EnergyAmount: energyAmount,
		PricePerUnit: pricePerUnit,
		Duration:     duration,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := b.persist(p); err != nil {
		return domain.Proposal{}, err
	}

	b.mu.Lock()
	b.byID[p.ID] = p
	b.ids.ReplaceOrInsert(p.ID)
	b.mu.Unlock()
	return p, nil
}

// Get returns the proposal, active or not.
func (b *Book) Get(id uint64) (domain.Proposal, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.byID[id]
	if !ok {
		return domain.Proposal{}, errors.Wrapf(domain.ErrNotFound, "proposal %d", id)
	}
	return p, nil
}

// ListActive returns active proposals in creation order. The result is
// a fresh snapshot, never a live view.
func (b *Book) ListActive() []domain.Proposal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Proposal, 0, len(b.byID))
	b.ids.Ascend(func(id uint64) bool {
		if p, ok := b.byID[id]; ok && p.IsActive {
			out = append(out, p)
		}
		return true
	})
	return out
}

// Retire flips IsActive to false exactly once. A second retire, or a
// retire of an unknown id, fails with domain.ErrAlreadyRetired so a
// racing settlement is detected rather than absorbed.
func (b *Book) Retire(id uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.byID[id]
	if !ok || !p.IsActive {
		return errors.Wrapf(domain.ErrAlreadyRetired, "proposal %d", id)
	}
	p.IsActive = false
	if err := b.persist(p); err != nil {
		return err
	}
	b.byID[id] = p
	return nil
}

func (b *Book) persist(p domain.Proposal) error {
	key := fmt.Sprintf("%s%020d", keyPrefix, p.ID)
	return errors.Wrapf(b.kv.SetJSON(key, p), "book: persist proposal %d", p.ID)
}
