package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/banquet-slot-booking/internal/inventory"
)

type HoldRequest struct {
	HallID      string `json:"hallId"`
	Date        string `json:"date"`
	SlotIndices []int  `json:"slotIndices"`
}

type HoldResponse struct {
	HoldID    uuid.UUID         `json:"holdId"`
	ExpiresAt time.Time         `json:"expiresAt"`
	Inventory InventoryResponse `json:"inventory"`
}

type SubmitBookingRequest struct {
	HoldID      string `json:"holdId"`
	DocumentRef string `json:"documentRef"`
	EventTime   string `json:"eventTime,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type GateRequest struct {
	Notes string `json:"notes"`
}

type PayRequest struct {
	TransactionID string `json:"transactionId"`
}

type SlotView struct {
	Index  int                  `json:"index"`
	Label  string               `json:"label"`
	Status inventory.SlotStatus `json:"status"`
}

// InventoryResponse is the public view of a calendar. Slot owners are not
// exposed.
type InventoryResponse struct {
	HallID  uuid.UUID  `json:"hallId"`
	Date    string     `json:"date"`
	Version int64      `json:"version"`
	Slots   []SlotView `json:"slots"`
}

func newInventoryResponse(c *inventory.Calendar) InventoryResponse {
	resp := InventoryResponse{HallID: c.HallID, Date: c.Date, Version: c.Version, Slots: make([]SlotView, len(c.Slots))}
	for i, s := range c.Slots {
		resp.Slots[i] = SlotView{Index: s.Index, Label: inventory.SlotLabel(s.Index), Status: s.Status}
	}
	return resp
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
