package inventory

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// SlotsPerDay is the number of 30 minute slots covering one calendar day.
const SlotsPerDay = 48

// DateLayout is the canonical calendar day format.
const DateLayout = "2006-01-02"

// DefaultHoldTTL is how long a hold stays valid when no override is configured.
const DefaultHoldTTL = 2 * time.Hour

type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotHeld      SlotStatus = "HELD"
	SlotBooked    SlotStatus = "BOOKED"
)

type Slot struct {
	Index    int        `json:"index"`
	Status   SlotStatus `json:"status"`
	LockedBy *uuid.UUID `json:"lockedBy,omitempty"`
}

// Calendar is the availability of one hall for one day. It is the single
// source of truth for slot occupancy.
type Calendar struct {
	HallID    uuid.UUID         `json:"hallId"`
	Date      string            `json:"date"`
	Slots     [SlotsPerDay]Slot `json:"slots"`
	Version   int64             `json:"version"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// NewCalendar returns a calendar with every slot available.
func NewCalendar(hallID uuid.UUID, date string) Calendar {
	c := Calendar{HallID: hallID, Date: date}
	for i := range c.Slots {
		c.Slots[i] = Slot{Index: i, Status: SlotAvailable}
	}
	return c
}

// Validate checks that every slot carries its own index and a known status.
func (c *Calendar) Validate() error {
	for i, s := range c.Slots {
		if s.Index != i {
			return fmt.Errorf("calendar %s/%s: slot %d has index %d", c.HallID, c.Date, i, s.Index)
		}
		switch s.Status {
		case SlotAvailable, SlotHeld, SlotBooked:
		default:
			return fmt.Errorf("calendar %s/%s: slot %d has status %q", c.HallID, c.Date, i, s.Status)
		}
	}
	return nil
}

// Unavailable returns the subset of indices whose slot is not AVAILABLE.
func (c *Calendar) Unavailable(indices []int) []int {
	var out []int
	for _, i := range indices {
		if c.Slots[i].Status != SlotAvailable {
			out = append(out, i)
		}
	}
	return out
}

// set assigns status and owner to the given slots and reports whether
// anything changed.
func (c *Calendar) set(indices []int, status SlotStatus, lockedBy *uuid.UUID) bool {
	changed := false
	for _, i := range indices {
		s := &c.Slots[i]
		if s.Status == status && sameOwner(s.LockedBy, lockedBy) {
			continue
		}
		s.Status = status
		if lockedBy == nil {
			s.LockedBy = nil
		} else {
			owner := *lockedBy
			s.LockedBy = &owner
		}
		changed = true
	}
	return changed
}

// heldBy returns the indices still HELD by owner.
func (c *Calendar) heldBy(indices []int, owner uuid.UUID) []int {
	var out []int
	for _, i := range indices {
		s := c.Slots[i]
		if s.Status == SlotHeld && s.LockedBy != nil && *s.LockedBy == owner {
			out = append(out, i)
		}
	}
	return out
}

func sameOwner(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Hold is a time bounded claim on slots of one calendar.
type Hold struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"userId"`
	HallID      uuid.UUID `json:"hallId"`
	Date        string    `json:"date"`
	SlotIndices []int     `json:"slotIndices"`
	ExpiresAt   time.Time `json:"expiresAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Expired reports whether the hold is void at now.
func (h Hold) Expired(now time.Time) bool {
	return !now.Before(h.ExpiresAt)
}

// ParseDate validates a YYYY-MM-DD calendar day and returns it in canonical form.
func ParseDate(raw string) (string, error) {
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return "", &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	return d.Format(DateLayout), nil
}

// NormalizeSlotIndices checks a requested slot set and returns it sorted.
func NormalizeSlotIndices(indices []int) ([]int, error) {
	if len(indices) == 0 {
		return nil, &ValidationError{Field: "slotIndices", Reason: "must not be empty"}
	}
	if len(indices) > SlotsPerDay {
		return nil, &ValidationError{Field: "slotIndices", Reason: fmt.Sprintf("at most %d slots", SlotsPerDay)}
	}

	out := append([]int(nil), indices...)
	sort.Ints(out)
	for i, idx := range out {
		if idx < 0 || idx >= SlotsPerDay {
			return nil, &ValidationError{Field: "slotIndices", Reason: fmt.Sprintf("index %d outside 0..%d", idx, SlotsPerDay-1)}
		}
		if i > 0 && out[i-1] == idx {
			return nil, &ValidationError{Field: "slotIndices", Reason: fmt.Sprintf("duplicate index %d", idx)}
		}
	}
	return out, nil
}

// SlotLabel renders the wall clock range covered by a slot, e.g. "10:00-10:30".
func SlotLabel(index int) string {
	start := index * 30
	end := start + 30
	return fmt.Sprintf("%02d:%02d-%02d:%02d", start/60, start%60, (end/60)%24, end%60)
}
