package inventory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCalendar_Invariant(t *testing.T) {
	cal := NewCalendar(uuid.New(), "2025-12-25")

	require.Len(t, cal.Slots, SlotsPerDay)
	for i, s := range cal.Slots {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, SlotAvailable, s.Status)
		assert.Nil(t, s.LockedBy)
	}
	require.NoError(t, cal.Validate())
}

func TestCalendar_ValidateRejectsShuffledIndices(t *testing.T) {
	cal := NewCalendar(uuid.New(), "2025-12-25")
	cal.Slots[3].Index = 4
	require.Error(t, cal.Validate())

	cal = NewCalendar(uuid.New(), "2025-12-25")
	cal.Slots[0].Status = "RESERVED"
	require.Error(t, cal.Validate())
}

func TestNormalizeSlotIndices(t *testing.T) {
	got, err := NormalizeSlotIndices([]int{22, 20, 21})
	require.NoError(t, err)
	assert.Equal(t, []int{20, 21, 22}, got)

	cases := map[string][]int{
		"empty":     {},
		"negative":  {-1},
		"too large": {48},
		"duplicate": {5, 5},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NormalizeSlotIndices(in)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-12-25")
	require.NoError(t, err)
	assert.Equal(t, "2025-12-25", d)

	for _, bad := range []string{"", "25-12-2025", "2025-13-01", "2025-12-25T10:00:00Z"} {
		_, err := ParseDate(bad)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}
}

func TestHold_Expired(t *testing.T) {
	created := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	h := Hold{ExpiresAt: created.Add(DefaultHoldTTL)}

	assert.False(t, h.Expired(created))
	assert.False(t, h.Expired(created.Add(DefaultHoldTTL-time.Second)))
	assert.True(t, h.Expired(created.Add(DefaultHoldTTL)))
}

func TestSlotLabel(t *testing.T) {
	assert.Equal(t, "00:00-00:30", SlotLabel(0))
	assert.Equal(t, "10:00-10:30", SlotLabel(20))
	assert.Equal(t, "23:30-00:00", SlotLabel(47))
}

func TestSlotConflictError(t *testing.T) {
	err := &SlotConflictError{Indices: []int{20, 21}}
	assert.ErrorIs(t, err, ErrSlotConflict)
	assert.Equal(t, "slots 20, 21 are no longer available", err.Error())
}
