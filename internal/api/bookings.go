package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/banquet-slot-booking/internal/auth"
	"github.com/hackgods/banquet-slot-booking/internal/booking"
)

// BookingService is the booking lifecycle as used by the HTTP layer.
type BookingService interface {
	Submit(ctx context.Context, actor auth.Actor, in booking.SubmitInput) (*booking.Booking, error)
	ApproveDocuments(ctx context.Context, actor auth.Actor, id uuid.UUID, notes string) (*booking.Booking, error)
	RequestPayment(ctx context.Context, actor auth.Actor, id uuid.UUID, notes string) (*booking.Booking, error)
	Pay(ctx context.Context, actor auth.Actor, id uuid.UUID, transactionID string) (*booking.Booking, error)
	FinalApprove(ctx context.Context, actor auth.Actor, id uuid.UUID, notes string) (*booking.Booking, error)
	Reject(ctx context.Context, actor auth.Actor, id uuid.UUID, notes string) (*booking.Booking, error)
	Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*booking.Booking, error)
	ListMine(ctx context.Context, actor auth.Actor, limit, offset int) ([]booking.Booking, error)
	ListByStatus(ctx context.Context, actor auth.Actor, status string, limit, offset int) ([]booking.Booking, error)
}

type gateFunc func(ctx context.Context, actor auth.Actor, id uuid.UUID, notes string) (*booking.Booking, error)

func submitBookingHandler(svc BookingService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitBookingRequest
		if !decodeBody(w, r, &req, false) {
			return
		}
		holdID, err := uuid.Parse(req.HoldID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "holdId must be a valid UUID")
			return
		}

		b, err := svc.Submit(r.Context(), actorFrom(r), booking.SubmitInput{
			HoldID:      holdID,
			DocumentRef: req.DocumentRef,
			EventTime:   req.EventTime,
			Notes:       req.Notes,
		})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, b)
	}
}

func payBookingHandler(svc BookingService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req PayRequest
		if !decodeBody(w, r, &req, false) {
			return
		}

		b, err := svc.Pay(r.Context(), actorFrom(r), id, req.TransactionID)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

func getBookingHandler(svc BookingService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		b, err := svc.Get(r.Context(), actorFrom(r), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

func listMyBookingsHandler(svc BookingService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset, ok := pageParams(w, r)
		if !ok {
			return
		}

		list, err := svc.ListMine(r.Context(), actorFrom(r), limit, offset)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		if list == nil {
			list = []booking.Booking{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func listBookingsHandler(svc BookingService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset, ok := pageParams(w, r)
		if !ok {
			return
		}

		list, err := svc.ListByStatus(r.Context(), actorFrom(r), r.URL.Query().Get("status"), limit, offset)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		if list == nil {
			list = []booking.Booking{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// gateHandler serves the admin PATCH endpoints, which all take {notes}.
func gateHandler(gate gateFunc, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req GateRequest
		if !decodeBody(w, r, &req, true) {
			return
		}

		b, err := gate(r.Context(), actorFrom(r), id, req.Notes)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}
