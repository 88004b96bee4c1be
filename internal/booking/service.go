package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hackgods/banquet-slot-booking/internal/audit"
	"github.com/hackgods/banquet-slot-booking/internal/auth"
	"github.com/hackgods/banquet-slot-booking/internal/clock"
	"github.com/hackgods/banquet-slot-booking/internal/db"
	"github.com/hackgods/banquet-slot-booking/internal/hall"
	"github.com/hackgods/banquet-slot-booking/internal/inventory"
)

const (
	DefaultInvoiceBasePath = "/invoices"
	DefaultFinalizeGrace   = 2 * time.Minute

	defaultPageSize = 20
	maxPageSize     = 100
)

var tracer = otel.Tracer("github.com/hackgods/banquet-slot-booking/internal/booking")

// Inventory is what the approval pipeline needs from the slot coordinator.
type Inventory interface {
	ConsumeHold(ctx context.Context, holdID, userID uuid.UUID) (*inventory.Hold, error)
	ConfirmBooking(ctx context.Context, hallID uuid.UUID, date string, slotIndices []int) error
	ReleaseSlots(ctx context.Context, hallID uuid.UUID, date string, slotIndices []int) error
	ReleaseSlotsHeldBy(ctx context.Context, hallID uuid.UUID, date string, slotIndices []int, owner uuid.UUID) error
}

type HallLookup interface {
	GetHall(ctx context.Context, id uuid.UUID) (*hall.Hall, error)
}

type Service struct {
	repo          Repository
	inv           Inventory
	halls         HallLookup
	tx            db.TxRunner
	clock         clock.Clock
	events        *audit.Recorder
	log           *zap.Logger
	invoiceBase   string
	finalizeGrace time.Duration
}

type Option func(*Service)

func WithRecorder(r *audit.Recorder) Option {
	return func(s *Service) { s.events = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithInvoiceBasePath(p string) Option {
	return func(s *Service) {
		if p != "" {
			s.invoiceBase = strings.TrimRight(p, "/")
		}
	}
}

// WithFinalizeGrace sets how long a FINALIZING booking is left to its
// original request before the reconciler takes over.
func WithFinalizeGrace(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.finalizeGrace = d
		}
	}
}

func NewService(repo Repository, inv Inventory, halls HallLookup, tx db.TxRunner, clk clock.Clock, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		inv:           inv,
		halls:         halls,
		tx:            tx,
		clock:         clk,
		log:           zap.NewNop(),
		invoiceBase:   DefaultInvoiceBasePath,
		finalizeGrace: DefaultFinalizeGrace,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SubmitInput struct {
	HoldID      uuid.UUID
	DocumentRef string
	EventTime   string
	Notes       string
}

// Submit turns the caller's live hold into a SUBMITTED booking. The hold
// record is consumed in the same transaction; its slots stay HELD.
func (s *Service) Submit(ctx context.Context, actor auth.Actor, in SubmitInput) (*Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.submit", trace.WithAttributes(
		attribute.String("hold_id", in.HoldID.String()),
	))
	defer span.End()

	if !actor.Can(auth.ActionSubmit) {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(in.DocumentRef) == "" {
		return nil, &inventory.ValidationError{Field: "documentRef", Reason: "required"}
	}

	var created *Booking
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		h, err := s.inv.ConsumeHold(txCtx, in.HoldID, actor.UserID)
		if err != nil {
			return err
		}
		hl, err := s.halls.GetHall(txCtx, h.HallID)
		if err != nil {
			return fmt.Errorf("load hall: %w", err)
		}

		now := s.clock.Now()
		b := &Booking{
			ID:            uuid.New(),
			CustomerID:    actor.UserID,
			HallID:        h.HallID,
			Date:          h.Date,
			SlotIndices:   h.SlotIndices,
			EventTime:     in.EventTime,
			DocumentRef:   in.DocumentRef,
			CustomerNotes: in.Notes,
			Status:        StatusSubmitted,
			TotalAmount:   hl.SlotPrice * int64(len(h.SlotIndices)),
			PaymentStatus: PaymentPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.Create(txCtx, b); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.events.Record(ctx, created.ID, audit.EventBookingSubmitted, map[string]any{
		"hold_id":      in.HoldID.String(),
		"customer_id":  created.CustomerID.String(),
		"hall_id":      created.HallID.String(),
		"date":         created.Date,
		"slot_indices": created.SlotIndices,
		"total_amount": created.TotalAmount,
	})
	s.log.Info("booking submitted",
		zap.Stringer("booking_id", created.ID),
		zap.Stringer("hall_id", created.HallID),
		zap.String("date", created.Date),
	)
	return created, nil
}

// ApproveDocuments is gate 1: SUBMITTED to PENDING_ADMIN2.
func (s *Service) ApproveDocuments(ctx context.Context, actor auth.Actor, id uuid.UUID, notes string) (*Booking, error) {
	b, err := s.transition(ctx, actor, auth.ActionGate1, id, StatusSubmitted, StatusPendingAdmin2, func(b *Booking, now time.Time) {
		b.DocumentsGate = &DocumentsApproval{ApprovedBy: actor.UserID, ApprovedAt: now, Notes: notes}
	})
	if err != nil {
		return nil, err
	}
	s.events.Record(ctx, b.ID, audit.EventDocumentsApproved, map[string]any{
		"approved_by": actor.UserID.String(),
	})
	return b, nil
}

// RequestPayment is gate 2: PENDING_ADMIN2 to PAYMENT_REQUESTED.
func (s *Service) RequestPayment(ctx context.Context, actor auth.Actor, id uuid.UUID, notes string) (*Booking, error) {
	b, err := s.transition(ctx, actor, auth.ActionGate2, id, StatusPendingAdmin2, StatusPaymentRequested, func(b *Booking, now time.Time) {
		b.PaymentGate = &PaymentApproval{ApprovedBy: actor.UserID, ApprovedAt: now, Notes: notes}
	})
	if err != nil {
		return nil, err
	}
	s.events.Record(ctx, b.ID, audit.EventPaymentRequested, map[string]any{
		"approved_by":  actor.UserID.String(),
		"total_amount": b.TotalAmount,
	})
	return b, nil
}

// Pay records the owner's payment and moves the booking through
// PAYMENT_VERIFIED on to PENDING_ADMIN3.
func (s *Service) Pay(ctx context.Context, actor auth.Actor, id uuid.UUID, transactionID string) (*Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.pay", trace.WithAttributes(
		attribute.String("booking_id", id.String()),
	))
	defer span.End()

	if !actor.Can(auth.ActionPay) {
		return nil, ErrForbidden
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, &inventory.ValidationError{Field: "transactionId", Reason: "required"}
	}

	var paid *Booking
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		b, err := s.repo.Get(txCtx, id)
		if err != nil {
			return err
		}
		if b.CustomerID != actor.UserID {
			return ErrNotOwner
		}
		if b.Status != StatusPaymentRequested {
			return &TransitionError{Actual: b.Status, Required: []Status{StatusPaymentRequested}}
		}

		now := s.clock.Now()
		b.Status = StatusPaymentVerified
		b.PaymentStatus = PaymentPaid
		b.TransactionID = &transactionID
		if b.PaymentGate == nil {
			b.PaymentGate = &PaymentApproval{}
		}
		b.PaymentGate.PaymentVerified = true
		b.UpdatedAt = now
		if err := s.update(txCtx, b, StatusPaymentRequested); err != nil {
			return err
		}

		b.Status = StatusPendingAdmin3
		if err := s.update(txCtx, b, StatusPaymentVerified); err != nil {
			return err
		}
		paid = b
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.events.Record(ctx, paid.ID, audit.EventPaymentReceived, map[string]any{
		"transaction_id": transactionID,
		"amount":         paid.TotalAmount,
	})
	return paid, nil
}

// FinalApprove is gate 3. The approval is recorded by moving to FINALIZING,
// the slots are confirmed, and only then the booking becomes APPROVED with
// its invoice. If confirmation fails the booking stays FINALIZING and
// ErrFinalizePending is returned.
func (s *Service) FinalApprove(ctx context.Context, actor auth.Actor, id uuid.UUID, notes string) (*Booking, error) {
	b, err := s.transition(ctx, actor, auth.ActionGate3, id, StatusPendingAdmin3, StatusFinalizing, func(b *Booking, now time.Time) {
		b.FinalGate = &FinalApproval{ApprovedBy: actor.UserID, ApprovedAt: now, Notes: notes}
	})
	if err != nil {
		return nil, err
	}
	s.events.Record(ctx, b.ID, audit.EventFinalizationStarted, map[string]any{
		"approved_by": actor.UserID.String(),
	})

	return s.finalize(ctx, b)
}

func (s *Service) finalize(ctx context.Context, b *Booking) (*Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.finalize", trace.WithAttributes(
		attribute.String("booking_id", b.ID.String()),
	))
	defer span.End()

	if err := s.inv.ConfirmBooking(ctx, b.HallID, b.Date, b.SlotIndices); err != nil {
		s.log.Warn("confirm slots for final approval",
			zap.Stringer("booking_id", b.ID),
			zap.Stringer("hall_id", b.HallID),
			zap.String("date", b.Date),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrFinalizePending, err)
	}

	b.Status = StatusApproved
	if b.FinalGate != nil {
		b.FinalGate.Finalized = true
	}
	b.InvoiceGenerated = true
	b.InvoiceURL = fmt.Sprintf("%s/booking-%s.pdf", s.invoiceBase, b.ID)
	b.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, b, StatusFinalizing); err != nil {
		if errors.Is(err, ErrStatusChanged) {
			// Another finalizer got there first.
			current, getErr := s.repo.Get(ctx, b.ID)
			if getErr == nil && current.Status == StatusApproved {
				return current, nil
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrFinalizePending, err)
	}

	s.events.Record(ctx, b.ID, audit.EventBookingApproved, map[string]any{
		"invoice_url": b.InvoiceURL,
	})
	s.log.Info("booking approved",
		zap.Stringer("booking_id", b.ID),
		zap.Stringer("hall_id", b.HallID),
		zap.String("date", b.Date),
	)
	return b, nil
}

// Reject moves any rejectable booking to REJECTED and releases its slots.
// The booking is rejected even if the release fails; the reconciler retries
// releases still marked pending.
func (s *Service) Reject(ctx context.Context, actor auth.Actor, id uuid.UUID, notes string) (*Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.reject", trace.WithAttributes(
		attribute.String("booking_id", id.String()),
	))
	defer span.End()

	if !actor.Can(auth.ActionReject) {
		return nil, ErrForbidden
	}

	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.Status.Rejectable() {
		return nil, &TransitionError{Actual: b.Status, Required: rejectableStatuses()}
	}

	previous := b.Status
	now := s.clock.Now()
	b.Status = StatusRejected
	b.SlotsReleased = false
	b.Rejection = &Rejection{RejectedBy: actor.UserID, RejectedAt: now, Notes: notes, PreviousStatus: previous}
	b.UpdatedAt = now
	if err := s.update(ctx, b, previous); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.events.Record(ctx, b.ID, audit.EventBookingRejected, map[string]any{
		"rejected_by":     actor.UserID.String(),
		"previous_status": previous,
	})

	if err := s.releaseSlots(ctx, b, false); err != nil {
		s.log.Warn("release slots of rejected booking",
			zap.Stringer("booking_id", b.ID),
			zap.Stringer("hall_id", b.HallID),
			zap.String("date", b.Date),
			zap.Error(err),
		)
	}
	return b, nil
}

// releaseSlots frees the booking's slots and marks them released. The
// first attempt releases unconditionally. A retry only frees slots still
// HELD by the customer: an earlier attempt may have freed them already and
// another customer may hold them now.
func (s *Service) releaseSlots(ctx context.Context, b *Booking, retry bool) error {
	var err error
	if retry {
		err = s.inv.ReleaseSlotsHeldBy(ctx, b.HallID, b.Date, b.SlotIndices, b.CustomerID)
	} else {
		err = s.inv.ReleaseSlots(ctx, b.HallID, b.Date, b.SlotIndices)
	}
	if err != nil {
		return err
	}

	b.SlotsReleased = true
	b.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, b, StatusRejected); err != nil {
		b.SlotsReleased = false
		return fmt.Errorf("mark slots released: %w", err)
	}

	s.events.Record(ctx, b.ID, audit.EventSlotsReleased, map[string]any{
		"hall_id":      b.HallID.String(),
		"date":         b.Date,
		"slot_indices": b.SlotIndices,
	})
	return nil
}

// transition applies a gate: it checks the role, requires the exact
// predecessor status and writes the new status conditionally on it.
func (s *Service) transition(ctx context.Context, actor auth.Actor, action auth.Action, id uuid.UUID, from, to Status, apply func(b *Booking, now time.Time)) (*Booking, error) {
	ctx, span := tracer.Start(ctx, "booking."+string(action), trace.WithAttributes(
		attribute.String("booking_id", id.String()),
		attribute.String("to", string(to)),
	))
	defer span.End()

	if !actor.Can(action) {
		return nil, ErrForbidden
	}

	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != from {
		return nil, &TransitionError{Actual: b.Status, Required: []Status{from}}
	}

	now := s.clock.Now()
	apply(b, now)
	b.Status = to
	b.UpdatedAt = now
	if err := s.update(ctx, b, from); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.log.Info("booking transition",
		zap.Stringer("booking_id", b.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Stringer("actor", actor.UserID),
	)
	return b, nil
}

// update writes b conditionally on from. Losing the race is reported as a
// TransitionError carrying the status that won.
func (s *Service) update(ctx context.Context, b *Booking, from Status) error {
	err := s.repo.Update(ctx, b, from)
	if !errors.Is(err, ErrStatusChanged) {
		return err
	}
	current, getErr := s.repo.Get(ctx, b.ID)
	if getErr != nil {
		return getErr
	}
	return &TransitionError{Actual: current.Status, Required: []Status{from}}
}

// Get returns a booking to its owner or to any admin.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsAdmin() && b.CustomerID != actor.UserID {
		return nil, ErrNotOwner
	}
	return b, nil
}

func (s *Service) ListMine(ctx context.Context, actor auth.Actor, limit, offset int) ([]Booking, error) {
	limit, offset = page(limit, offset)
	bookings, err := s.repo.ListByCustomer(ctx, actor.UserID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list bookings by customer: %w", err)
	}
	return bookings, nil
}

// ListByStatus is the admin dashboard. An empty status or "ALL" lists
// everything.
func (s *Service) ListByStatus(ctx context.Context, actor auth.Actor, status string, limit, offset int) ([]Booking, error) {
	if !actor.Role.IsAdmin() {
		return nil, ErrForbidden
	}

	var filter Status
	if status != "" && status != "ALL" {
		st, ok := ParseStatus(status)
		if !ok {
			return nil, &inventory.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
		}
		filter = st
	}

	limit, offset = page(limit, offset)
	bookings, err := s.repo.ListByStatus(ctx, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list bookings by status: %w", err)
	}
	return bookings, nil
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ResumeFinalizations completes FINALIZING bookings whose original request
// did not finish within the grace period. It returns how many became APPROVED.
func (s *Service) ResumeFinalizations(ctx context.Context, limit int) (int, error) {
	stale, err := s.repo.ListStale(ctx, StatusFinalizing, s.clock.Now().Add(-s.finalizeGrace), batch(limit))
	if err != nil {
		return 0, fmt.Errorf("list stale finalizations: %w", err)
	}

	done := 0
	for i := range stale {
		if _, err := s.finalize(ctx, &stale[i]); err != nil {
			continue
		}
		done++
	}
	return done, nil
}

// ReleaseRejected retries slot releases for rejected bookings.
func (s *Service) ReleaseRejected(ctx context.Context, limit int) (int, error) {
	pending, err := s.repo.ListUnreleased(ctx, batch(limit))
	if err != nil {
		return 0, fmt.Errorf("list unreleased rejections: %w", err)
	}

	done := 0
	for i := range pending {
		b := &pending[i]
		if err := s.releaseSlots(ctx, b, true); err != nil {
			s.log.Warn("retry slot release",
				zap.Stringer("booking_id", b.ID),
				zap.Error(err),
			)
			continue
		}
		done++
	}
	return done, nil
}

func batch(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
