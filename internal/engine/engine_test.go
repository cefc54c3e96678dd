package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gridwatt/energytrade/internal/book"
	"github.com/gridwatt/energytrade/internal/domain"
	"github.com/gridwatt/energytrade/internal/events"
	"github.com/gridwatt/energytrade/internal/gateway"
	"github.com/gridwatt/energytrade/internal/history"
	"github.com/gridwatt/energytrade/internal/ledger"
	"github.com/gridwatt/energytrade/internal/store"
)

type fakeGateway struct {
	mu    sync.Mutex
	calls int
	// onSubmit decides the outcome; nil means confirm.
	onSubmit func(s gateway.Settlement) (common.Hash, error)
}

func (g *fakeGateway) SubmitSettlement(_ context.Context, s gateway.Settlement) (common.Hash, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.onSubmit != nil {
		return g.onSubmit(s)
	}
	return common.HexToHash("0x1111"), nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fixture struct {
	engine  *Engine
	ledger  *ledger.Ledger
	book    *book.Book
	history *history.History
	gw      *fakeGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	ldg, err := ledger.New(kv)
	require.NoError(t, err)
	bk, err := book.New(kv)
	require.NoError(t, err)
	hist, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = hist.Close() })

	gw := &fakeGateway{}
	return &fixture{
		engine:  New(ldg, bk, hist, gw, events.NewBus()),
		ledger:  ldg,
		book:    bk,
		history: hist,
		gw:      gw,
	}
}

func addr(b byte) common.Address {
	var a common.Address
	a[common.AddressLength-1] = b
	return a
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var (
	buyer  = addr(0xA)
	seller = addr(0xB)
	other  = addr(0xC)
)

func TestExecuteTrade_Settles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Credit(buyer, dec("500")))
	p, err := f.engine.CreateProposal(seller, dec("100"), dec("2"), 3600)
	require.NoError(t, err)

	record, err := f.engine.ExecuteTrade(ctx, buyer, p.ID)
	require.NoError(t, err)

	// Buyer pays energyAmount * pricePerUnit.
	require.Equal(t, "300", f.ledger.GetBalance(buyer).String())

	// The record runs seller -> buyer with the unit price.
	require.Equal(t, seller, record.From)
	require.Equal(t, buyer, record.To)
	require.Equal(t, "100", record.EnergyAmount.String())
	require.Equal(t, "2", record.Price.String())
	require.NotEqual(t, common.Hash{}, record.TxHash)

	// The proposal left the book and the trade is in both histories.
	require.Empty(t, f.engine.ListActiveProposals())
	for _, who := range []common.Address{buyer, seller} {
		txs, err := f.engine.HistoryFor(ctx, who)
		require.NoError(t, err)
		require.Len(t, txs, 1)
	}
}

// The settlement only debits the executor; the proposer is paid through
// the gateway, not the ledger.
func TestExecuteTrade_DoesNotCreditProposer(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ledger.Credit(buyer, dec("500")))
	p, _ := f.engine.CreateProposal(seller, dec("100"), dec("2"), 3600)

	_, err := f.engine.ExecuteTrade(context.Background(), buyer, p.ID)
	require.NoError(t, err)
	require.True(t, f.ledger.GetBalance(seller).IsZero())
}

func TestExecuteTrade_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Credit(buyer, dec("50")))
	p, _ := f.engine.CreateProposal(seller, dec("100"), dec("2"), 3600)

	_, err := f.engine.ExecuteTrade(ctx, buyer, p.ID)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// No partial effects: balance intact, proposal active, no history,
	// gateway never reached.
	require.Equal(t, "50", f.ledger.GetBalance(buyer).String())
	require.Len(t, f.engine.ListActiveProposals(), 1)
	txs, _ := f.engine.HistoryFor(ctx, buyer)
	require.Empty(t, txs)
	require.Zero(t, f.gw.callCount())
}

func TestExecuteTrade_SelfTradeRejected(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ledger.Credit(seller, dec("1000")))
	p, _ := f.engine.CreateProposal(seller, dec("100"), dec("2"), 3600)

	_, err := f.engine.ExecuteTrade(context.Background(), seller, p.ID)
	require.ErrorIs(t, err, domain.ErrSelfTradeNotAllowed)
	require.Equal(t, "1000", f.ledger.GetBalance(seller).String())
	require.Len(t, f.engine.ListActiveProposals(), 1)
	require.Zero(t, f.gw.callCount())
}

func TestExecuteTrade_UnknownProposal(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.ExecuteTrade(context.Background(), buyer, 404)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecuteTrade_InactiveProposal(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ledger.Credit(buyer, dec("500")))
	p, _ := f.engine.CreateProposal(seller, dec("100"), dec("2"), 3600)
	require.NoError(t, f.engine.CancelProposal(seller, p.ID))

	_, err := f.engine.ExecuteTrade(context.Background(), buyer, p.ID)
	require.ErrorIs(t, err, domain.ErrProposalInactive)
	require.Equal(t, "500", f.ledger.GetBalance(buyer).String())
}

func TestExecuteTrade_GatewayRejectionRefundsDebit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.onSubmit = func(gateway.Settlement) (common.Hash, error) {
		return common.Hash{}, &gateway.RejectedError{Reason: "nonce too low"}
	}

	require.NoError(t, f.ledger.Credit(buyer, dec("500")))
	p, _ := f.engine.CreateProposal(seller, dec("100"), dec("2"), 3600)

	_, err := f.engine.ExecuteTrade(ctx, buyer, p.ID)
	var rejected *gateway.RejectedError
	require.ErrorAs(t, err, &rejected)

	// Compensating credit restored the balance; nothing else moved.
	require.Equal(t, "500", f.ledger.GetBalance(buyer).String())
	require.Len(t, f.engine.ListActiveProposals(), 1)
	txs, _ := f.engine.HistoryFor(ctx, buyer)
	require.Empty(t, txs)
}

func TestExecuteTrade_GatewayTimeoutRefundsDebit(t *testing.T) {
	f := newFixture(t)
	f.gw.onSubmit = func(gateway.Settlement) (common.Hash, error) {
		return common.Hash{}, &gateway.UnavailableError{Err: context.DeadlineExceeded}
	}

	require.NoError(t, f.ledger.Credit(buyer, dec("500")))
	p, _ := f.engine.CreateProposal(seller, dec("100"), dec("2"), 3600)

	_, err := f.engine.ExecuteTrade(context.Background(), buyer, p.ID)
	require.Error(t, err)
	require.Equal(t, "500", f.ledger.GetBalance(buyer).String())
	require.Len(t, f.engine.ListActiveProposals(), 1)
}

// A retire failure after the gateway confirmed is the one case where
// external and local state may diverge; it must surface loudly.
func TestExecuteTrade_PostCommitInconsistency(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ledger.Credit(buyer, dec("500")))
	p, _ := f.engine.CreateProposal(seller, dec("100"), dec("2"), 3600)

	// Simulate an out-of-band retire landing between the gateway
	// confirmation and the engine's own retire.
	f.gw.onSubmit = func(gateway.Settlement) (common.Hash, error) {
		require.NoError(t, f.book.Retire(p.ID))
		return common.HexToHash("0x2222"), nil
	}

	_, err := f.engine.ExecuteTrade(context.Background(), buyer, p.ID)
	require.ErrorIs(t, err, domain.ErrPostCommitInconsistency)
}

func TestExecuteTrade_ConcurrentOnSameProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.onSubmit = func(gateway.Settlement) (common.Hash, error) {
		time.Sleep(10 * time.Millisecond) // hold the settlement open
		return common.HexToHash("0x3333"), nil
	}

	require.NoError(t, f.ledger.Credit(buyer, dec("1000")))
	require.NoError(t, f.ledger.Credit(other, dec("1000")))
	p, _ := f.engine.CreateProposal(seller, dec("100"), dec("2"), 3600)

	type result struct {
		who common.Address
		err error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup
	for _, who := range []common.Address{buyer, other} {
		wg.Add(1)
		go func(who common.Address) {
			defer wg.Done()
			_, err := f.engine.ExecuteTrade(ctx, who, p.ID)
			results <- result{who, err}
		}(who)
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for r := range results {
		if r.err == nil {
			wins++
			require.Equal(t, "800", f.ledger.GetBalance(r.who).String())
		} else {
			losses++
			require.ErrorIs(t, r.err, domain.ErrProposalInactive)
			require.Equal(t, "1000", f.ledger.GetBalance(r.who).String())
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, losses)
	require.Equal(t, 1, f.gw.callCount())

	txs, err := f.engine.HistoryFor(ctx, seller)
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func TestCancelProposal(t *testing.T) {
	f := newFixture(t)
	p, _ := f.engine.CreateProposal(seller, dec("100"), dec("2"), 3600)

	t.Run("only the proposer may cancel", func(t *testing.T) {
		err := f.engine.CancelProposal(buyer, p.ID)
		require.ErrorIs(t, err, domain.ErrNotOwner)
		require.Len(t, f.engine.ListActiveProposals(), 1)
	})

	t.Run("owner cancel retires without ledger effect", func(t *testing.T) {
		require.NoError(t, f.engine.CancelProposal(seller, p.ID))
		require.Empty(t, f.engine.ListActiveProposals())
		require.True(t, f.ledger.GetBalance(seller).IsZero())
	})

	t.Run("second cancel fails", func(t *testing.T) {
		err := f.engine.CancelProposal(seller, p.ID)
		require.ErrorIs(t, err, domain.ErrProposalInactive)
	})

	t.Run("unknown id", func(t *testing.T) {
		err := f.engine.CancelProposal(seller, 404)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestEvents_PublishedOnLifecycle(t *testing.T) {
	kv, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	ldg, err := ledger.New(kv)
	require.NoError(t, err)
	bk, err := book.New(kv)
	require.NoError(t, err)
	hist, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = hist.Close() })

	bus := events.NewBus()
	ch, cancel := bus.Subscribe(8)
	defer cancel()

	eng := New(ldg, bk, hist, &fakeGateway{}, bus)

	require.NoError(t, ldg.Credit(buyer, dec("500")))
	p, err := eng.CreateProposal(seller, dec("100"), dec("2"), 3600)
	require.NoError(t, err)
	_, err = eng.ExecuteTrade(context.Background(), buyer, p.ID)
	require.NoError(t, err)

	ev := <-ch
	require.Equal(t, events.TypeProposalCreated, ev.Type)
	require.NotNil(t, ev.Proposal)

	ev = <-ch
	require.Equal(t, events.TypeTradeSettled, ev.Type)
	require.NotNil(t, ev.Transaction)
	require.Equal(t, buyer, ev.Transaction.To)
}
