package book

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gridwatt/energytrade/internal/domain"
	"github.com/gridwatt/energytrade/internal/store"
)

func newTestBook(t *testing.T) *Book {
	t.Helper()
	kv, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	b, err := New(kv)
	require.NoError(t, err)
	return b
}

func addr(b byte) common.Address {
	var a common.Address
	a[common.AddressLength-1] = b
	return a
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreate_AssignsUniqueMonotonicIDs(t *testing.T) {
	b := newTestBook(t)

	p1, err := b.Create(addr(1), dec("100"), dec("2"), 3600)
	require.NoError(t, err)
	p2, err := b.Create(addr(1), dec("200"), dec("3"), 7200)
	require.NoError(t, err)

	require.NotZero(t, p1.ID)
	require.Greater(t, p2.ID, p1.ID)
	require.True(t, p1.IsActive)
}

func TestCreate_RejectsNonPositiveFields(t *testing.T) {
	b := newTestBook(t)

	cases := []struct {
		name     string
		energy   string
		price    string
		duration int64
	}{
		{"zero energy", "0", "2", 3600},
		{"negative energy", "-1", "2", 3600},
		{"zero price", "100", "0", 3600},
		{"negative price", "100", "-2", 3600},
		{"zero duration", "100", "2", 0},
		{"negative duration", "100", "2", -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.Create(addr(1), dec(tc.energy), dec(tc.price), tc.duration)
			require.ErrorIs(t, err, domain.ErrInvalidParameters)
		})
	}
	require.Empty(t, b.ListActive())
}

func TestGet_NotFound(t *testing.T) {
	b := newTestBook(t)
	_, err := b.Get(42)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListActive_CreationOrderAndSnapshot(t *testing.T) {
	b := newTestBook(t)

	p1, _ := b.Create(addr(1), dec("100"), dec("2"), 3600)
	p2, _ := b.Create(addr(2), dec("200"), dec("3"), 7200)
	p3, _ := b.Create(addr(3), dec("300"), dec("4"), 60)

	list := b.ListActive()
	require.Len(t, list, 3)
	require.Equal(t, []uint64{p1.ID, p2.ID, p3.ID}, []uint64{list[0].ID, list[1].ID, list[2].ID})

	// Reads are idempotent.
	require.Equal(t, list, b.ListActive())

	// The returned slice is a snapshot, not a live view.
	require.NoError(t, b.Retire(p2.ID))
	require.Len(t, list, 3)
	require.Len(t, b.ListActive(), 2)
}

func TestRetire_SecondCallFails(t *testing.T) {
	b := newTestBook(t)
	p, _ := b.Create(addr(1), dec("100"), dec("2"), 3600)

	require.NoError(t, b.Retire(p.ID))

	err := b.Retire(p.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyRetired)

	got, err := b.Get(p.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
}

func TestRetire_UnknownIDFails(t *testing.T) {
	b := newTestBook(t)
	require.ErrorIs(t, b.Retire(999), domain.ErrAlreadyRetired)
}

func TestBook_ReloadKeepsProposalsAndIDsUnique(t *testing.T) {
	kv, err := store.OpenInMemory()
	require.NoError(t, err)
	defer kv.Close()

	b1, err := New(kv)
	require.NoError(t, err)
	p1, err := b1.Create(addr(1), dec("100"), dec("2"), 3600)
	require.NoError(t, err)
	require.NoError(t, b1.Retire(p1.ID))

	b2, err := New(kv)
	require.NoError(t, err)

	got, err := b2.Get(p1.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	// Ids assigned after a reload never collide with old ones.
	p2, err := b2.Create(addr(2), dec("50"), dec("1"), 60)
	require.NoError(t, err)
	require.Greater(t, p2.ID, p1.ID)
}
