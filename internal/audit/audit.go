// Package audit records domain events for holds and bookings.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventHoldCreated         = "HOLD_CREATED"
	EventHoldReleased        = "HOLD_RELEASED"
	EventHoldExpired         = "HOLD_EXPIRED"
	EventBookingSubmitted    = "BOOKING_SUBMITTED"
	EventDocumentsApproved   = "DOCUMENTS_APPROVED"
	EventPaymentRequested    = "PAYMENT_REQUESTED"
	EventPaymentReceived     = "PAYMENT_RECEIVED"
	EventFinalizationStarted = "FINALIZATION_STARTED"
	EventBookingApproved     = "BOOKING_APPROVED"
	EventBookingRejected     = "BOOKING_REJECTED"
	EventSlotsReleased       = "SLOTS_RELEASED"
)

type Event struct {
	ID        int64
	EventType string
	SubjectID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

// Sink persists events.
type Sink interface {
	InsertEvent(ctx context.Context, ev Event) error
}

// Recorder writes events and swallows failures; an audit gap must never
// fail the operation that produced it.
type Recorder struct {
	sink Sink
	log  *zap.Logger
}

func NewRecorder(sink Sink, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{sink: sink, log: log}
}

func (r *Recorder) Record(ctx context.Context, subjectID uuid.UUID, eventType string, payload map[string]any) {
	if r == nil || r.sink == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Warn("marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	id := subjectID
	ev := Event{
		EventType: eventType,
		SubjectID: &id,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}

	if err := r.sink.InsertEvent(ctx, ev); err != nil {
		r.log.Warn("insert event",
			zap.String("event", eventType),
			zap.Stringer("subject_id", subjectID),
			zap.Error(err),
		)
	}
}

// MemorySink keeps events in process. Used by the memory storage driver and tests.
type MemorySink struct {
	mu     sync.Mutex
	nextID int64
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) InsertEvent(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ev.ID = m.nextID
	m.events = append(m.events, ev)
	return nil
}

// Types returns the recorded event types for subjectID in insertion order.
func (m *MemorySink) Types(subjectID uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for _, ev := range m.events {
		if ev.SubjectID != nil && *ev.SubjectID == subjectID {
			out = append(out, ev.EventType)
		}
	}
	return out
}
