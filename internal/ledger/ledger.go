// Package ledger owns participant balances. Balances never go negative:
// a debit is checked and applied as one step under the address lock, so
// two concurrent debits on the same account cannot both pass the check.
package ledger

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/gridwatt/energytrade/internal/domain"
	"github.com/gridwatt/energytrade/internal/store"
)

const keyPrefix = "account/"

const shardCount = 64

type shard struct {
	mu       sync.Mutex
	balances map[common.Address]decimal.Decimal
}

// Ledger is the account ledger. Locking is per-address (sharded), so
// unrelated accounts settle independently.
type Ledger struct {
	kv     *store.Store
	shards [shardCount]shard
}

// New loads existing accounts from kv.
func New(kv *store.Store) (*Ledger, error) {
	l := &Ledger{kv: kv}
	for i := range l.shards {
		l.shards[i].balances = make(map[common.Address]decimal.Decimal)
	}
	err := kv.IteratePrefix(keyPrefix, func(key string, val []byte) error {
		var acct domain.Account
		if err := json.Unmarshal(val, &acct); err != nil {
			return errors.Wrapf(err, "ledger: corrupt record %s", key)
		}
		sh := l.shard(acct.Address)
		sh.balances[acct.Address] = acct.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) shard(addr common.Address) *shard {
	return &l.shards[int(addr[common.AddressLength-1])%shardCount]
}

// GetBalance returns the balance, zero for an unknown address.
func (l *Ledger) GetBalance(addr common.Address) decimal.Decimal {
	sh := l.shard(addr)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if bal, ok := sh.balances[addr]; ok {
		return bal
	}
	return decimal.Zero
}

// Credit increases addr's balance by amount. amount must be positive.
func (l *Ledger) Credit(addr common.Address, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return errors.Wrap(domain.ErrInvalidParameters, "credit amount must be positive")
	}
	sh := l.shard(addr)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	prev := sh.balances[addr]
	next := prev.Add(amount)
	if err := l.persist(addr, next); err != nil {
		return err
	}
	sh.balances[addr] = next
	return nil
}

// Debit decreases addr's balance by amount, failing with
// domain.ErrInsufficientFunds when the balance does not cover it.
func (l *Ledger) Debit(addr common.Address, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return errors.Wrap(domain.ErrInvalidParameters, "debit amount must be positive")
	}
	sh := l.shard(addr)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	prev := sh.balances[addr]
	if prev.LessThan(amount) {
		return errors.Wrapf(domain.ErrInsufficientFunds,
			"balance %s < %s for %s", prev, amount, addr.Hex())
	}
	next := prev.Sub(amount)
	if err := l.persist(addr, next); err != nil {
		return err
	}
	sh.balances[addr] = next
	return nil
}

// persist is called with the shard lock held; memory is only updated
// after the store write succeeds.
func (l *Ledger) persist(addr common.Address, bal decimal.Decimal) error {
	key := fmt.Sprintf("%s%s", keyPrefix, addr.Hex())
	acct := domain.Account{Address: addr, Balance: bal}
	return errors.Wrapf(l.kv.SetJSON(key, acct), "ledger: persist %s", addr.Hex())
}
