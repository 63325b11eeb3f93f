package sqlite_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/catalog"
	"github.com/warp/harvest-engine/finance"
	"github.com/warp/harvest-engine/ledger"
	"github.com/warp/harvest-engine/money"
	"github.com/warp/harvest-engine/procurement"
	"github.com/warp/harvest-engine/sim"
	"github.com/warp/harvest-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// newShop is the keyboards preset with a stocked product and a loan, so
// every table has rows.
func newShop(t *testing.T, id string) *sim.Business {
	t.Helper()
	tpl, err := catalog.Preset("keyboards")
	require.NoError(t, err)
	cfg, err := tpl.Config(id, calendar.MustParse("2025-04-01"))
	require.NoError(t, err)
	b, err := sim.New(cfg)
	require.NoError(t, err)

	_, err = b.PlaceOrder("us-switches", []procurement.LineRequest{{ProductID: "gat-red", Quantity: 2000}})
	require.NoError(t, err)
	_, err = b.TakeLoan(finance.LoanTerms{Principal: money.MustParse("5000"), Installments: 2, IntervalDays: 30})
	require.NoError(t, err)
	_, err = b.AdvanceDays(5)
	require.NoError(t, err)
	return b
}

func snapshotJSON(t *testing.T, b *sim.Business) string {
	t.Helper()
	data, err := json.Marshal(b.Snapshot())
	require.NoError(t, err)
	return string(data)
}

func TestSaveLoad_RoundTripRestoresTheBusiness(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	b := newShop(t, "kb-1")

	// WHEN saved and loaded back
	require.NoError(t, store.Save(ctx, b.Snapshot()))
	snap, err := store.Load(ctx, "kb-1")
	require.NoError(t, err)
	restored, err := sim.Restore(snap)
	require.NoError(t, err)

	// THEN the restored business is indistinguishable
	assert.JSONEq(t, snapshotJSON(t, b), snapshotJSON(t, restored))

	// AND both continue identically
	_, err = b.AdvanceDays(3)
	require.NoError(t, err)
	_, err = restored.AdvanceDays(3)
	require.NoError(t, err)
	assert.JSONEq(t, snapshotJSON(t, b), snapshotJSON(t, restored))
}

func TestSave_AppendsOnlyNewLedgerEntries(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	b := newShop(t, "kb-1")
	require.NoError(t, store.Save(ctx, b.Snapshot()))
	first := len(b.Entries())

	_, err := b.AdvanceDays(2)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, b.Snapshot()))

	all, err := store.LedgerEntries(ctx, "kb-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, len(b.Entries()))

	tail, err := store.LedgerEntries(ctx, "kb-1", int64(first))
	require.NoError(t, err)
	assert.Len(t, tail, len(b.Entries())-first)
	if len(tail) > 0 {
		assert.Equal(t, int64(first+1), tail[0].Sequence)
	}
}

func TestSave_RestartReplacesLedger(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	b := newShop(t, "kb-1")
	require.NoError(t, store.Save(ctx, b.Snapshot()))

	// WHEN the business restarts and is saved again
	require.NoError(t, b.Restart())
	require.NoError(t, store.Save(ctx, b.Snapshot()))

	// THEN only the fresh history remains
	entries, err := store.LedgerEntries(ctx, "kb-1", 0)
	require.NoError(t, err)
	assert.Len(t, entries, len(b.Entries()))

	snap, err := store.Load(ctx, "kb-1")
	require.NoError(t, err)
	assert.Empty(t, snap.Orders)
	assert.Empty(t, snap.Loans)
	restored, err := sim.Restore(snap)
	require.NoError(t, err)
	assert.True(t, restored.Cash().Equal(money.MustParse("15000")))
}

func TestLoad_NotFound(t *testing.T) {
	_, err := newStore(t).Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

func TestLoad_DetectsTamperedSubLedger(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	b := newShop(t, "kb-1")

	// GIVEN a snapshot whose inventory disagrees with the ledger
	snap := b.Snapshot()
	require.NotEmpty(t, snap.Layers)
	snap.Layers[0].Remaining++
	require.NoError(t, store.Save(ctx, snap))

	loaded, err := store.Load(ctx, "kb-1")
	require.NoError(t, err)
	_, err = sim.Restore(loaded)
	assert.ErrorIs(t, err, ledger.ErrCorruptLedger)
}

func TestListExistsDelete(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Save(ctx, newShop(t, "b").Snapshot()))
	require.NoError(t, store.Save(ctx, newShop(t, "a").Snapshot()))

	list, err := store.ListBusinesses(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "keyboards", list[0].Kind)
	assert.Equal(t, "2025-04-06", list[0].CurrentDate.String())

	ok, err := store.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete(ctx, "a"))
	ok, err = store.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	entries, err := store.LedgerEntries(ctx, "a", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.ErrorIs(t, store.Delete(ctx, "a"), sqlite.ErrNotFound)
}

func TestNew_FileDatabasePersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "harvest.db")

	store, err := sqlite.New(path)
	require.NoError(t, err)
	b := newShop(t, "kb-1")
	require.NoError(t, store.Save(ctx, b.Snapshot()))
	require.NoError(t, store.Close())

	store, err = sqlite.New(path)
	require.NoError(t, err)
	defer store.Close()
	snap, err := store.Load(ctx, "kb-1")
	require.NoError(t, err)
	assert.Equal(t, b.CurrentDate().String(), snap.CurrentDate.String())
	assert.Len(t, snap.Entries, len(b.Entries()))
}
