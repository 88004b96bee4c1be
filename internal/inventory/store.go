package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CalendarStore persists calendars. SwapCalendar is the only write path for
// slot state and must be a single atomic compare-and-swap on the version.
type CalendarStore interface {
	// InsertCalendar returns ErrCalendarExists when (hall, date) is taken.
	InsertCalendar(ctx context.Context, c Calendar) error
	GetCalendar(ctx context.Context, hallID uuid.UUID, date string) (*Calendar, error)
	// SwapCalendar writes c when the stored version equals expected and bumps
	// c.Version. It returns ErrVersionMismatch otherwise.
	SwapCalendar(ctx context.Context, c *Calendar, expected int64) error
}

// HoldStore is the hold ledger.
type HoldStore interface {
	InsertHold(ctx context.Context, h Hold) error
	// GetHold returns the physical record, expired or not.
	GetHold(ctx context.Context, id uuid.UUID) (*Hold, error)
	// DeleteHold returns ErrHoldNotFound when nothing was removed.
	DeleteHold(ctx context.Context, id uuid.UUID) error
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]Hold, error)
}

type Store interface {
	CalendarStore
	HoldStore
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
