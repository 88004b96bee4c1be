package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/banquet-slot-booking/internal/clock"
	"github.com/hackgods/banquet-slot-booking/internal/hall"
	"github.com/hackgods/banquet-slot-booking/internal/testutil"
)

func TestPgStore(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	store := NewPgStore(pool)

	t.Run("insert, read and swap calendar", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		h := testutil.InsertHall(t, ctx, pool, "Crystal Hall", 1000)

		require.NoError(t, store.InsertCalendar(ctx, NewCalendar(h.ID, testDate)))
		require.ErrorIs(t, store.InsertCalendar(ctx, NewCalendar(h.ID, testDate)), ErrCalendarExists)

		cal, err := store.GetCalendar(ctx, h.ID, testDate)
		require.NoError(t, err)
		assert.Equal(t, int64(0), cal.Version)
		assert.Equal(t, SlotAvailable, cal.Slots[47].Status)

		owner := uuid.New()
		cal.set([]int{3, 4}, SlotHeld, &owner)
		require.NoError(t, store.SwapCalendar(ctx, cal, 0))
		assert.Equal(t, int64(1), cal.Version)

		require.ErrorIs(t, store.SwapCalendar(ctx, cal, 0), ErrVersionMismatch)

		got, err := store.GetCalendar(ctx, h.ID, testDate)
		require.NoError(t, err)
		assert.Equal(t, SlotHeld, got.Slots[3].Status)
		assert.Equal(t, owner, *got.Slots[4].LockedBy)
		assert.Nil(t, got.Slots[5].LockedBy)

		_, err = store.GetCalendar(ctx, h.ID, "2030-01-01")
		assert.ErrorIs(t, err, ErrCalendarNotFound)
	})

	t.Run("hold ledger", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		h := testutil.InsertHall(t, ctx, pool, "Crystal Hall", 1000)
		now := time.Now().UTC().Truncate(time.Microsecond)

		live := Hold{ID: uuid.New(), UserID: uuid.New(), HallID: h.ID, Date: testDate, SlotIndices: []int{1, 2}, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
		stale := Hold{ID: uuid.New(), UserID: uuid.New(), HallID: h.ID, Date: testDate, SlotIndices: []int{9}, ExpiresAt: now.Add(-time.Minute), CreatedAt: now}
		require.NoError(t, store.InsertHold(ctx, live))
		require.NoError(t, store.InsertHold(ctx, stale))

		got, err := store.GetHold(ctx, live.ID)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, got.SlotIndices)
		assert.True(t, live.ExpiresAt.Equal(got.ExpiresAt))

		expired, err := store.ListExpiredHolds(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, stale.ID, expired[0].ID)

		require.NoError(t, store.DeleteHold(ctx, stale.ID))
		assert.ErrorIs(t, store.DeleteHold(ctx, stale.ID), ErrHoldNotFound)
		_, err = store.GetHold(ctx, stale.ID)
		assert.ErrorIs(t, err, ErrHoldNotFound)
	})

	t.Run("failed hold rolls back calendar creation", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		h := testutil.InsertHall(t, ctx, pool, "Crystal Hall", 1000)

		boom := errors.New("boom")
		err := store.WithTx(ctx, func(txCtx context.Context) error {
			require.NoError(t, store.InsertCalendar(txCtx, NewCalendar(h.ID, testDate)))
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = store.GetCalendar(ctx, h.ID, testDate)
		assert.ErrorIs(t, err, ErrCalendarNotFound)
	})

	t.Run("concurrent overlapping holds have one winner", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		h := testutil.InsertHall(t, ctx, pool, "Crystal Hall", 1000)
		halls := hall.NewPgRepository(pool)
		coord := NewCoordinator(store, halls, clock.NewSystem())

		const contenders = 6
		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			errs  = make([]error, contenders)
		)
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, errs[i] = coord.HoldSlots(ctx, HoldInput{
					HallID: h.ID, Date: testDate, SlotIndices: []int{20, 21 + i}, UserID: uuid.New(),
				})
			}(i)
		}
		close(start)
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, ErrSlotConflict)
		}
		assert.Equal(t, 1, wins)

		var holds int
		require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM slot_holds`).Scan(&holds))
		assert.Equal(t, 1, holds)
	})

	t.Run("concurrent disjoint holds all succeed", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		h := testutil.InsertHall(t, ctx, pool, "Crystal Hall", 1000)
		coord := NewCoordinator(store, hall.NewPgRepository(pool), clock.NewSystem())

		const holders = 4
		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			errs  = make([]error, holders)
		)
		for i := 0; i < holders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, errs[i] = coord.HoldSlots(ctx, HoldInput{
					HallID: h.ID, Date: testDate, SlotIndices: []int{2 * i, 2*i + 1}, UserID: uuid.New(),
				})
			}(i)
		}
		close(start)
		wg.Wait()

		for i, err := range errs {
			require.NoError(t, err, "holder %d", i)
		}
		cal, err := store.GetCalendar(ctx, h.ID, testDate)
		require.NoError(t, err)
		for i := 0; i < 2*holders; i++ {
			assert.Equal(t, SlotHeld, cal.Slots[i].Status)
		}
	})
}
