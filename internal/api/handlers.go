package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/banquet-slot-booking/internal/auth"
	"github.com/hackgods/banquet-slot-booking/internal/hall"
	"github.com/hackgods/banquet-slot-booking/internal/inventory"
)

// HallCatalog is the read side of the hall catalogue.
type HallCatalog interface {
	GetHall(ctx context.Context, id uuid.UUID) (*hall.Hall, error)
	ListHalls(ctx context.Context) ([]hall.Hall, error)
}

// SlotInventory is the slot coordinator as seen by the HTTP layer.
type SlotInventory interface {
	EnsureCalendar(ctx context.Context, hallID uuid.UUID, date string) (*inventory.Calendar, error)
	HoldSlots(ctx context.Context, in inventory.HoldInput) (*inventory.HoldResult, error)
	ReleaseHold(ctx context.Context, holdID, userID uuid.UUID) error
}

func listHallsHandler(halls HallCatalog, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := halls.ListHalls(r.Context())
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		if list == nil {
			list = []hall.Hall{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func getHallHandler(halls HallCatalog, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		h, err := halls.GetHall(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, h)
	}
}

func hallInventoryHandler(inv SlotInventory, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		date := r.URL.Query().Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, "validation_failed", "date query parameter is required")
			return
		}

		cal, err := inv.EnsureCalendar(r.Context(), id, date)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, newInventoryResponse(cal))
	}
}

func holdSlotsHandler(inv SlotInventory, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := actorFrom(r)
		if !actor.Can(auth.ActionHold) {
			writeError(w, http.StatusForbidden, "forbidden", "role "+string(actor.Role)+" cannot hold slots")
			return
		}

		var req HoldRequest
		if !decodeBody(w, r, &req, false) {
			return
		}
		hallID, err := uuid.Parse(req.HallID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "hallId must be a valid UUID")
			return
		}

		res, err := inv.HoldSlots(r.Context(), inventory.HoldInput{
			HallID:      hallID,
			Date:        req.Date,
			SlotIndices: req.SlotIndices,
			UserID:      actor.UserID,
		})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, HoldResponse{
			HoldID:    res.Hold.ID,
			ExpiresAt: res.Hold.ExpiresAt,
			Inventory: newInventoryResponse(&res.Calendar),
		})
	}
}

func releaseHoldHandler(inv SlotInventory, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		if err := inv.ReleaseHold(r.Context(), id, actorFrom(r).UserID); err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
