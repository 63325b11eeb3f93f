package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/lock"
	"github.com/warp/harvest-engine/metrics"
	"github.com/warp/harvest-engine/money"
	"github.com/warp/harvest-engine/procurement"
	"github.com/warp/harvest-engine/service"
	"github.com/warp/harvest-engine/sim"
	"github.com/warp/harvest-engine/store/sqlite"
)

var start = calendar.MustParse("2025-04-01")

func newService(t *testing.T) *service.Service {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return service.New(store, lock.NewMemory(), service.WithMetrics(metrics.New()))
}

func createShop(t *testing.T, svc *service.Service, id string) sim.Summary {
	t.Helper()
	s, err := svc.Create(context.Background(), service.CreateRequest{BusinessID: id, Preset: "keyboards", StartDate: start})
	require.NoError(t, err)
	return s
}

func TestCreate_FromPreset(t *testing.T) {
	svc := newService(t)
	s := createShop(t, svc, "kb")

	assert.Equal(t, "kb", s.BusinessID)
	assert.Equal(t, "Clicky Clack Supply", s.Name)
	assert.Equal(t, "2025-04-01", s.CurrentDate.String())
	assert.True(t, s.Cash.Equal(money.MustParse("15000")))

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "kb", list[0].ID)
}

func TestCreate_GeneratesIDAndRejectsDuplicates(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	s, err := svc.Create(ctx, service.CreateRequest{Preset: "farm", StartDate: start, Name: "My Farm"})
	require.NoError(t, err)
	assert.Len(t, s.BusinessID, 36)
	assert.Equal(t, "My Farm", s.Name)

	_, err = svc.Create(ctx, service.CreateRequest{BusinessID: s.BusinessID, Preset: "farm", StartDate: start})
	assert.ErrorIs(t, err, service.ErrAlreadyExists)
	assert.True(t, service.IsConflict(err))

	_, err = svc.Create(ctx, service.CreateRequest{Preset: "bakery", StartDate: start})
	assert.True(t, service.IsNotFound(err))
}

func TestUpdate_PersistsSuccessfulCommands(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	createShop(t, svc, "kb")

	err := svc.Update(ctx, "kb", "place_order", func(b *sim.Business) error {
		_, err := b.PlaceOrder("us-switches", []procurement.LineRequest{{ProductID: "gat-red", Quantity: 1000}})
		return err
	})
	require.NoError(t, err)

	reports, state, err := svc.Advance(ctx, "kb", 4)
	require.NoError(t, err)
	require.Len(t, reports, 4)
	assert.Equal(t, "2025-04-05", state.CurrentDate.String())

	err = svc.View(ctx, "kb", func(b *sim.Business) error {
		assert.Equal(t, "2025-04-05", b.CurrentDate().String())
		assert.Len(t, b.PurchaseOrders(), 1)
		assert.True(t, b.TrialBalance().IsZero())
		return nil
	})
	require.NoError(t, err)
}

func TestUpdate_FailedCommandIsNotSaved(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	createShop(t, svc, "kb")

	// WHEN a command mutates and then fails
	err := svc.Update(ctx, "kb", "advance_then_fail", func(b *sim.Business) error {
		_, err := b.AdvanceDays(3)
		require.NoError(t, err)
		_, err = b.AdvanceDays(99)
		return err
	})
	assert.ErrorIs(t, err, sim.ErrAdvanceLimit)

	// THEN the stored business never moved
	err = svc.View(ctx, "kb", func(b *sim.Business) error {
		assert.Equal(t, "2025-04-01", b.CurrentDate().String())
		return nil
	})
	require.NoError(t, err)
}

func TestUpdate_SerializesConcurrentCommands(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	createShop(t, svc, "kb")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Advance(ctx, "kb", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	err := svc.View(ctx, "kb", func(b *sim.Business) error {
		assert.Equal(t, "2025-04-09", b.CurrentDate().String())
		return nil
	})
	require.NoError(t, err)
}

func TestUpdate_BusyBusiness(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer store.Close()
	locker := lock.NewMemory()
	svc := service.New(store, locker, service.WithLockTimeout(20*time.Millisecond))
	ctx := context.Background()
	createShop(t, svc, "kb")

	release, err := locker.Lock(ctx, "kb")
	require.NoError(t, err)
	defer release(ctx)

	_, _, err = svc.Advance(ctx, "kb", 1)
	assert.ErrorIs(t, err, lock.ErrBusy)
	assert.True(t, service.IsConflict(err))
}

func TestBusyBusiness_EveryEntryPointGivesUp(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer store.Close()
	locker := lock.NewMemory()
	svc := service.New(store, locker, service.WithLockTimeout(20*time.Millisecond))
	ctx := context.Background()
	createShop(t, svc, "kb")

	// GIVEN another holder keeps the lock
	release, err := locker.Lock(ctx, "kb")
	require.NoError(t, err)

	// THEN create, delete and view time out instead of waiting forever
	_, err = svc.Create(ctx, service.CreateRequest{BusinessID: "kb", Preset: "keyboards", StartDate: start})
	assert.ErrorIs(t, err, lock.ErrBusy)
	assert.ErrorIs(t, svc.Delete(ctx, "kb"), lock.ErrBusy)
	assert.ErrorIs(t, svc.View(ctx, "kb", func(*sim.Business) error { return nil }), lock.ErrBusy)

	// WHEN the holder lets go
	require.NoError(t, release(ctx))

	// THEN the business is still there and readable
	assert.NoError(t, svc.View(ctx, "kb", func(*sim.Business) error { return nil }))
}

func TestUnknownBusiness(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, _, err := svc.Advance(ctx, "ghost", 1)
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.True(t, service.IsNotFound(err))

	assert.ErrorIs(t, svc.Delete(ctx, "ghost"), service.ErrNotFound)
}

func TestDelete(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	createShop(t, svc, "kb")

	require.NoError(t, svc.Delete(ctx, "kb"))
	err := svc.View(ctx, "kb", func(*sim.Business) error { return nil })
	assert.ErrorIs(t, err, service.ErrNotFound)
}
