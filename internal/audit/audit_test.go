package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type failingSink struct{}

func (failingSink) InsertEvent(context.Context, Event) error {
	return errors.New("db down")
}

func TestRecorder_Record(t *testing.T) {
	sink := NewMemorySink()
	rec := NewRecorder(sink, nil)
	id := uuid.New()

	rec.Record(context.Background(), id, EventHoldCreated, map[string]any{"slots": []int{1, 2}})
	rec.Record(context.Background(), id, EventHoldReleased, nil)
	rec.Record(context.Background(), uuid.New(), EventHoldExpired, nil)

	assert.Equal(t, []string{EventHoldCreated, EventHoldReleased}, sink.Types(id))
}

func TestRecorder_SinkFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rec := NewRecorder(failingSink{}, zap.New(core))

	assert.NotPanics(t, func() {
		rec.Record(context.Background(), uuid.New(), EventBookingApproved, map[string]any{})
	})
	assert.Equal(t, 1, logs.FilterMessage("insert event").Len())
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var rec *Recorder
	assert.NotPanics(t, func() {
		rec.Record(context.Background(), uuid.New(), EventHoldCreated, nil)
	})
}
