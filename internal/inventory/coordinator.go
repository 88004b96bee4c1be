package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hackgods/banquet-slot-booking/internal/audit"
	"github.com/hackgods/banquet-slot-booking/internal/clock"
	"github.com/hackgods/banquet-slot-booking/internal/hall"
)

const defaultMaxAttempts = 16

var tracer = otel.Tracer("github.com/hackgods/banquet-slot-booking/internal/inventory")

// HallLookup is the part of the hall catalogue the coordinator needs.
type HallLookup interface {
	GetHall(ctx context.Context, id uuid.UUID) (*hall.Hall, error)
}

// Coordinator is the only component that changes slot status. Every write
// is a compare-and-swap of the whole calendar, so a multi-slot hold either
// flips all requested slots or none of them.
type Coordinator struct {
	store       Store
	halls       HallLookup
	clock       clock.Clock
	holdTTL     time.Duration
	maxAttempts int
	events      *audit.Recorder
	log         *zap.Logger
}

type Option func(*Coordinator)

// WithHoldTTL overrides the default hold lifetime.
func WithHoldTTL(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.holdTTL = d
		}
	}
}

// WithMaxAttempts bounds how often a write is retried after losing a
// version race on an unrelated slot of the same calendar.
func WithMaxAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithRecorder(r *audit.Recorder) Option {
	return func(c *Coordinator) { c.events = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

func NewCoordinator(store Store, halls HallLookup, clk clock.Clock, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		halls:       halls,
		clock:       clk,
		holdTTL:     DefaultHoldTTL,
		maxAttempts: defaultMaxAttempts,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HoldTTL returns the configured hold lifetime.
func (c *Coordinator) HoldTTL() time.Duration {
	return c.holdTTL
}

type HoldInput struct {
	HallID      uuid.UUID
	Date        string
	SlotIndices []int
	UserID      uuid.UUID
}

type HoldResult struct {
	Hold     Hold
	Calendar Calendar
}

// EnsureCalendar returns the calendar for (hall, date), creating it with
// every slot available on first access.
func (c *Coordinator) EnsureCalendar(ctx context.Context, hallID uuid.UUID, date string) (*Calendar, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	if _, err := c.halls.GetHall(ctx, hallID); err != nil {
		return nil, err
	}
	return c.ensure(ctx, hallID, day)
}

// ensure relies on the (hall, date) uniqueness constraint: a creator that
// loses the race reads the winner's row.
func (c *Coordinator) ensure(ctx context.Context, hallID uuid.UUID, date string) (*Calendar, error) {
	cal, err := c.store.GetCalendar(ctx, hallID, date)
	if err == nil {
		return cal, nil
	}
	if !errors.Is(err, ErrCalendarNotFound) {
		return nil, fmt.Errorf("load calendar: %w", err)
	}

	if err := c.store.InsertCalendar(ctx, NewCalendar(hallID, date)); err != nil && !errors.Is(err, ErrCalendarExists) {
		return nil, fmt.Errorf("create calendar: %w", err)
	}

	cal, err = c.store.GetCalendar(ctx, hallID, date)
	if err != nil {
		return nil, fmt.Errorf("load calendar after create: %w", err)
	}
	return cal, nil
}

// HoldSlots flips every requested slot from AVAILABLE to HELD in one write
// and records a hold covering exactly those slots. If any slot is not
// AVAILABLE it fails with a *SlotConflictError and nothing changes.
func (c *Coordinator) HoldSlots(ctx context.Context, in HoldInput) (*HoldResult, error) {
	ctx, span := tracer.Start(ctx, "inventory.hold_slots", trace.WithAttributes(
		attribute.String("hall_id", in.HallID.String()),
		attribute.String("date", in.Date),
		attribute.IntSlice("slot_indices", in.SlotIndices),
	))
	defer span.End()

	res, err := c.holdSlots(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

func (c *Coordinator) holdSlots(ctx context.Context, in HoldInput) (*HoldResult, error) {
	day, err := ParseDate(in.Date)
	if err != nil {
		return nil, err
	}
	indices, err := NormalizeSlotIndices(in.SlotIndices)
	if err != nil {
		return nil, err
	}
	if in.UserID == uuid.Nil {
		return nil, &ValidationError{Field: "userId", Reason: "required"}
	}
	if _, err := c.halls.GetHall(ctx, in.HallID); err != nil {
		return nil, err
	}

	var result HoldResult
	err = c.store.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := c.ensure(txCtx, in.HallID, day); err != nil {
			return err
		}

		owner := in.UserID
		cal, err := c.mutate(txCtx, in.HallID, day, func(cal *Calendar) (bool, error) {
			if conflicts := cal.Unavailable(indices); len(conflicts) > 0 {
				return false, &SlotConflictError{Indices: conflicts}
			}
			return cal.set(indices, SlotHeld, &owner), nil
		})
		if err != nil {
			return err
		}

		now := c.clock.Now()
		hold := Hold{
			ID:          uuid.New(),
			UserID:      in.UserID,
			HallID:      in.HallID,
			Date:        day,
			SlotIndices: indices,
			ExpiresAt:   now.Add(c.holdTTL),
			CreatedAt:   now,
		}
		if err := c.store.InsertHold(txCtx, hold); err != nil {
			return fmt.Errorf("create hold: %w", err)
		}

		result = HoldResult{Hold: hold, Calendar: *cal}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSlotConflict) {
			c.log.Info("hold rejected, slots taken",
				zap.Stringer("hall_id", in.HallID),
				zap.String("date", day),
				zap.Error(err),
			)
		}
		return nil, err
	}

	c.events.Record(ctx, result.Hold.ID, audit.EventHoldCreated, map[string]any{
		"user_id":      in.UserID.String(),
		"hall_id":      in.HallID.String(),
		"date":         day,
		"slot_indices": indices,
		"expires_at":   result.Hold.ExpiresAt,
	})
	return &result, nil
}

// ReleaseSlots sets the slots back to AVAILABLE whatever their current
// status. Releasing slots that are already free, or of a calendar that was
// never created, succeeds.
func (c *Coordinator) ReleaseSlots(ctx context.Context, hallID uuid.UUID, date string, slotIndices []int) error {
	ctx, span := tracer.Start(ctx, "inventory.release_slots", trace.WithAttributes(
		attribute.String("hall_id", hallID.String()),
		attribute.String("date", date),
		attribute.IntSlice("slot_indices", slotIndices),
	))
	defer span.End()

	day, err := ParseDate(date)
	if err != nil {
		return err
	}
	indices, err := NormalizeSlotIndices(slotIndices)
	if err != nil {
		return err
	}

	_, err = c.mutate(ctx, hallID, day, func(cal *Calendar) (bool, error) {
		return cal.set(indices, SlotAvailable, nil), nil
	})
	if errors.Is(err, ErrCalendarNotFound) {
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// ConfirmBooking marks the slots BOOKED without checking their current
// status. Callers must only invoke it once a booking has passed its final
// approval.
func (c *Coordinator) ConfirmBooking(ctx context.Context, hallID uuid.UUID, date string, slotIndices []int) error {
	ctx, span := tracer.Start(ctx, "inventory.confirm_booking", trace.WithAttributes(
		attribute.String("hall_id", hallID.String()),
		attribute.String("date", date),
		attribute.IntSlice("slot_indices", slotIndices),
	))
	defer span.End()

	day, err := ParseDate(date)
	if err != nil {
		return err
	}
	indices, err := NormalizeSlotIndices(slotIndices)
	if err != nil {
		return err
	}

	_, err = c.mutate(ctx, hallID, day, func(cal *Calendar) (bool, error) {
		changed := false
		for _, i := range indices {
			if cal.Slots[i].Status != SlotBooked {
				cal.Slots[i].Status = SlotBooked
				changed = true
			}
		}
		return changed, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// GetHold returns a live hold. Holds past their expiry are void and reported
// as not found even before the sweeper removes them.
func (c *Coordinator) GetHold(ctx context.Context, id uuid.UUID) (*Hold, error) {
	h, err := c.store.GetHold(ctx, id)
	if err != nil {
		return nil, err
	}
	if h.Expired(c.clock.Now()) {
		return nil, ErrHoldNotFound
	}
	return h, nil
}

// ConsumeHold removes a live hold owned by userID so it can become a
// booking. The slots stay HELD. Run it inside the transaction that creates
// the booking.
func (c *Coordinator) ConsumeHold(ctx context.Context, holdID, userID uuid.UUID) (*Hold, error) {
	h, err := c.GetHold(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if h.UserID != userID {
		return nil, ErrHoldNotOwned
	}
	if err := c.store.DeleteHold(ctx, holdID); err != nil {
		return nil, err
	}
	return h, nil
}

// ReleaseHold cancels an unconverted hold on behalf of its owner.
func (c *Coordinator) ReleaseHold(ctx context.Context, holdID, userID uuid.UUID) error {
	var released []int
	err := c.store.WithTx(ctx, func(txCtx context.Context) error {
		h, err := c.ConsumeHold(txCtx, holdID, userID)
		if err != nil {
			return err
		}
		released, err = c.releaseOrRestore(txCtx, h)
		return err
	})
	if err != nil {
		return err
	}

	c.events.Record(ctx, holdID, audit.EventHoldReleased, map[string]any{
		"released": released,
	})
	return nil
}

// ReleaseSlotsHeldBy frees the given slots that are still HELD by owner.
// Slots that were freed, re-held by someone else or booked in the meantime
// are left alone, so repeating the call is safe.
func (c *Coordinator) ReleaseSlotsHeldBy(ctx context.Context, hallID uuid.UUID, date string, slotIndices []int, owner uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "inventory.release_slots_held_by", trace.WithAttributes(
		attribute.String("hall_id", hallID.String()),
		attribute.String("date", date),
		attribute.IntSlice("slot_indices", slotIndices),
	))
	defer span.End()

	day, err := ParseDate(date)
	if err != nil {
		return err
	}
	indices, err := NormalizeSlotIndices(slotIndices)
	if err != nil {
		return err
	}

	if _, err := c.releaseOwned(ctx, hallID, day, indices, owner); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// releaseHeldBy frees the hold's slots that are still HELD by its owner and
// leaves everything else alone.
func (c *Coordinator) releaseHeldBy(ctx context.Context, h *Hold) ([]int, error) {
	return c.releaseOwned(ctx, h.HallID, h.Date, h.SlotIndices, h.UserID)
}

func (c *Coordinator) releaseOwned(ctx context.Context, hallID uuid.UUID, date string, indices []int, owner uuid.UUID) ([]int, error) {
	var released []int
	_, err := c.mutate(ctx, hallID, date, func(cal *Calendar) (bool, error) {
		released = cal.heldBy(indices, owner)
		return cal.set(released, SlotAvailable, nil), nil
	})
	if errors.Is(err, ErrCalendarNotFound) {
		return nil, nil
	}
	return released, err
}

// releaseOrRestore frees the slots of a hold whose record was just deleted.
// When the release fails the record is put back so the slots stay reachable
// for a retry or a later sweep.
func (c *Coordinator) releaseOrRestore(ctx context.Context, h *Hold) ([]int, error) {
	released, err := c.releaseHeldBy(ctx, h)
	if err == nil {
		return released, nil
	}
	if insErr := c.store.InsertHold(ctx, *h); insErr != nil {
		c.log.Warn("restore hold after failed release",
			zap.Stringer("hold_id", h.ID),
			zap.Error(insErr),
		)
	}
	return nil, err
}

// mutate loads the calendar, applies fn and writes it back with a version
// compare-and-swap. A lost race re-reads and re-runs fn, so preconditions are
// always evaluated against the state the write is based on. fn returns false
// when there is nothing to write.
func (c *Coordinator) mutate(ctx context.Context, hallID uuid.UUID, date string, fn func(cal *Calendar) (bool, error)) (*Calendar, error) {
	cal, err := c.store.GetCalendar(ctx, hallID, date)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		next := *cal
		changed, err := fn(&next)
		if err != nil {
			return nil, err
		}
		if !changed {
			return cal, nil
		}

		err = c.store.SwapCalendar(ctx, &next, cal.Version)
		if err == nil {
			return &next, nil
		}
		if !errors.Is(err, ErrVersionMismatch) {
			return nil, err
		}

		c.log.Debug("calendar version race, retrying",
			zap.Stringer("hall_id", hallID),
			zap.String("date", date),
			zap.Int("attempt", attempt),
		)
		cal, err = c.store.GetCalendar(ctx, hallID, date)
		if err != nil {
			return nil, err
		}
	}
	return nil, ErrCalendarBusy
}
