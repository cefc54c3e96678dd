// seedfund credits an account by writing to the store directly, for
// bootstrapping local or demo deployments. Stop the server first: the
// server caches balances in memory and will not see external writes.
package main

import (
	"flag"
	"log"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/gridwatt/energytrade/internal/ledger"
	"github.com/gridwatt/energytrade/internal/store"
)

func main() {
	var (
		dir     = flag.String("dir", "data/store", "badger store directory")
		address = flag.String("address", "", "account address (0x...)")
		amount  = flag.String("amount", "", "amount to credit")
	)
	flag.Parse()

	if !common.IsHexAddress(*address) {
		log.Fatalf("invalid -address %q", *address)
	}
	amt, err := decimal.NewFromString(*amount)
	if err != nil {
		log.Fatalf("invalid -amount %q: %v", *amount, err)
	}

	kv, err := store.Open(*dir)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer kv.Close()

	ldg, err := ledger.New(kv)
	if err != nil {
		log.Fatalf("load ledger: %v", err)
	}

	addr := common.HexToAddress(*address)
	if err := ldg.Credit(addr, amt); err != nil {
		log.Fatalf("credit: %v", err)
	}
	log.Printf("credited %s to %s, balance now %s", amt, addr.Hex(), ldg.GetBalance(addr))
}
