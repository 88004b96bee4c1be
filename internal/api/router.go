package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/banquet-slot-booking/internal/idempotency"
)

// RouterConfig wires the handlers. Halls, Inventory, Bookings and Tokens are
// required; Idempotency, Checks and Logger may be nil.
type RouterConfig struct {
	Halls       HallCatalog
	Inventory   SlotInventory
	Bookings    BookingService
	Tokens      TokenVerifier
	Idempotency idempotency.Store
	Checks      []HealthCheck
	Logger      *zap.Logger
	Env         string
	Version     string
}

// NewRouter panics when a required dependency is missing.
func NewRouter(cfg RouterConfig) http.Handler {
	switch {
	case cfg.Halls == nil:
		panic("api: RouterConfig.Halls is required")
	case cfg.Inventory == nil:
		panic("api: RouterConfig.Inventory is required")
	case cfg.Bookings == nil:
		panic("api: RouterConfig.Bookings is required")
	case cfg.Tokens == nil:
		panic("api: RouterConfig.Tokens is required")
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))

	// Health endpoints
	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Catalogue and availability are public
	r.Get("/halls", listHallsHandler(cfg.Halls, log))
	r.Get("/halls/{id}", getHallHandler(cfg.Halls, log))
	r.Get("/halls/{id}/inventory", hallInventoryHandler(cfg.Inventory, log))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens))

		r.With(IdempotencyMiddleware(cfg.Idempotency, log)).
			Post("/bookings/hold", holdSlotsHandler(cfg.Inventory, log))
		r.Delete("/bookings/hold/{id}", releaseHoldHandler(cfg.Inventory, log))

		r.Post("/bookings", submitBookingHandler(cfg.Bookings, log))
		r.Get("/bookings/mine", listMyBookingsHandler(cfg.Bookings, log))
		r.Get("/bookings/{id}", getBookingHandler(cfg.Bookings, log))
		r.Post("/bookings/{id}/pay", payBookingHandler(cfg.Bookings, log))

		r.Get("/admin/bookings", listBookingsHandler(cfg.Bookings, log))
		r.Patch("/admin/{id}/gate-1", gateHandler(cfg.Bookings.ApproveDocuments, log))
		r.Patch("/admin/{id}/gate-2", gateHandler(cfg.Bookings.RequestPayment, log))
		r.Patch("/admin/{id}/gate-3", gateHandler(cfg.Bookings.FinalApprove, log))
		r.Patch("/admin/{id}/reject", gateHandler(cfg.Bookings.Reject, log))
	})

	return r
}
