package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/banquet-slot-booking/internal/auth"
	"github.com/hackgods/banquet-slot-booking/internal/booking"
	"github.com/hackgods/banquet-slot-booking/internal/clock"
	"github.com/hackgods/banquet-slot-booking/internal/db"
	"github.com/hackgods/banquet-slot-booking/internal/hall"
	"github.com/hackgods/banquet-slot-booking/internal/idempotency"
	"github.com/hackgods/banquet-slot-booking/internal/inventory"
)

const eventDate = "2025-12-25"

type server struct {
	handler http.Handler
	hall    hall.Hall
	tokens  *auth.Tokens
	coord   *inventory.Coordinator
}

func newServer(t *testing.T, checks ...HealthCheck) *server {
	t.Helper()

	h := hall.Hall{ID: uuid.New(), Name: "Crystal Hall", Tier: hall.TierDiamond, Capacity: 400, SlotPrice: 7500}
	halls := hall.NewMemoryRepository(h)
	clk := clock.NewManual(time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC))

	coord := inventory.NewCoordinator(inventory.NewMemoryStore(), halls, clk)
	svc := booking.NewService(booking.NewMemoryRepository(), coord, halls, db.NoTx{}, clk)
	tokens := auth.NewTokens("test-secret", time.Hour)

	handler := NewRouter(RouterConfig{
		Halls:       halls,
		Inventory:   coord,
		Bookings:    svc,
		Tokens:      tokens,
		Idempotency: idempotency.NewMemoryStore(time.Hour),
		Checks:      checks,
		Env:         "test",
		Version:     "v-test",
	})
	return &server{handler: handler, hall: h, tokens: tokens, coord: coord}
}

func (s *server) token(t *testing.T, role auth.Role) (uuid.UUID, string) {
	t.Helper()
	id := uuid.New()
	tok, err := s.tokens.Issue(auth.Actor{UserID: id, Role: role})
	require.NoError(t, err)
	return id, tok
}

func (s *server) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *server) holdBody(slots ...int) HoldRequest {
	return HoldRequest{HallID: s.hall.ID.String(), Date: eventDate, SlotIndices: slots}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *server) holdAndSubmit(t *testing.T, token string, slots ...int) booking.Booking {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/bookings/hold", token, s.holdBody(slots...))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	hold := decode[HoldResponse](t, rec)

	rec = s.do(t, http.MethodPost, "/bookings", token, SubmitBookingRequest{HoldID: hold.HoldID.String(), DocumentRef: "docs/id.pdf"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[booking.Booking](t, rec)
}

func TestHealth(t *testing.T) {
	t.Run("no dependencies", func(t *testing.T) {
		s := newServer(t)

		rec := s.do(t, http.MethodGet, "/health/live", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "v-test", decode[LivenessResponse](t, rec).Version)

		rec = s.do(t, http.MethodGet, "/health/ready", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", decode[ReadinessResponse](t, rec).Status)
	})

	down := func(context.Context) error { return errors.New("down") }
	up := func(context.Context) error { return nil }

	t.Run("non critical failure degrades", func(t *testing.T) {
		s := newServer(t,
			HealthCheck{Name: "postgres", Critical: true, Ping: up},
			HealthCheck{Name: "redis", Ping: down},
		)

		rec := s.do(t, http.MethodGet, "/health/ready", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		resp := decode[ReadinessResponse](t, rec)
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, map[string]string{"postgres": "ok", "redis": "down"}, resp.Dependencies)
	})

	t.Run("critical failure is unready", func(t *testing.T) {
		s := newServer(t,
			HealthCheck{Name: "postgres", Critical: true, Ping: down},
			HealthCheck{Name: "redis", Ping: up},
		)

		rec := s.do(t, http.MethodGet, "/health/ready", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "error", decode[ReadinessResponse](t, rec).Status)
	})
}

func TestHalls(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/halls", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	halls := decode[[]hall.Hall](t, rec)
	require.Len(t, halls, 1)
	assert.Equal(t, s.hall.ID, halls[0].ID)

	rec = s.do(t, http.MethodGet, "/halls/"+s.hall.ID.String(), "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/halls/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodGet, "/halls/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInventory(t *testing.T) {
	s := newServer(t)
	path := "/halls/" + s.hall.ID.String() + "/inventory"

	rec := s.do(t, http.MethodGet, path+"?date="+eventDate, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inv := decode[InventoryResponse](t, rec)
	require.Len(t, inv.Slots, inventory.SlotsPerDay)
	assert.Equal(t, "10:00-10:30", inv.Slots[20].Label)
	assert.Equal(t, inventory.SlotAvailable, inv.Slots[20].Status)

	rec = s.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, path+"?date=25-12-2025", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decode[ErrorResponse](t, rec).Error)
}

func TestAuthRequired(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/bookings/hold", "", s.holdBody(1))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/bookings/hold", "garbage", s.holdBody(1))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decode[ErrorResponse](t, rec).Error)
}

func TestHold_SecondUserGetsConflict(t *testing.T) {
	s := newServer(t)
	_, u1 := s.token(t, auth.RoleCustomer)
	_, u2 := s.token(t, auth.RoleCustomer)

	rec := s.do(t, http.MethodPost, "/bookings/hold", u1, s.holdBody(20, 21, 22))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	hold := decode[HoldResponse](t, rec)
	assert.NotEqual(t, uuid.Nil, hold.HoldID)
	assert.Equal(t, inventory.SlotHeld, hold.Inventory.Slots[21].Status)

	rec = s.do(t, http.MethodPost, "/bookings/hold", u2, s.holdBody(20, 21, 22))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_conflict", decode[ErrorResponse](t, rec).Error)
}

func TestHold_ConcurrentRequestsOneWinner(t *testing.T) {
	s := newServer(t)

	const contenders = 16
	codes := make([]int, contenders)
	tokens := make([]string, contenders)
	for i := range tokens {
		_, tokens[i] = s.token(t, auth.RoleCustomer)
	}

	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = s.do(t, http.MethodPost, "/bookings/hold", tokens[i], s.holdBody(30, 31)).Code
		}(i)
	}
	wg.Wait()

	ok, conflict := 0, 0
	for _, c := range codes {
		switch c {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
			conflict++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, contenders-1, conflict)
}

func TestHold_Validation(t *testing.T) {
	s := newServer(t)
	_, tok := s.token(t, auth.RoleCustomer)

	rec := s.do(t, http.MethodPost, "/bookings/hold", tok, s.holdBody(48))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/bookings/hold", tok, HoldRequest{HallID: "x", Date: eventDate, SlotIndices: []int{1}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/bookings/hold", tok, HoldRequest{HallID: uuid.NewString(), Date: eventDate, SlotIndices: []int{1}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHold_AdminsCannotHold(t *testing.T) {
	s := newServer(t)
	_, tok := s.token(t, auth.RoleAdmin1)

	rec := s.do(t, http.MethodPost, "/bookings/hold", tok, s.holdBody(5))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode[ErrorResponse](t, rec).Error)
}

func TestHold_IdempotencyKey(t *testing.T) {
	s := newServer(t)
	_, tok := s.token(t, auth.RoleCustomer)

	first := s.do(t, http.MethodPost, "/bookings/hold", tok, s.holdBody(8, 9), IdempotencyKeyHeader, "k-1")
	require.Equal(t, http.StatusOK, first.Code)

	replay := s.do(t, http.MethodPost, "/bookings/hold", tok, s.holdBody(8, 9), IdempotencyKeyHeader, "k-1")
	assert.Equal(t, http.StatusOK, replay.Code)
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, decode[HoldResponse](t, first).HoldID, decode[HoldResponse](t, replay).HoldID)

	rec := s.do(t, http.MethodPost, "/bookings/hold", tok, s.holdBody(10), IdempotencyKeyHeader, "k-1")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "idempotency_key_reused", decode[ErrorResponse](t, rec).Error)

	// Without the header the same request is a fresh attempt.
	rec = s.do(t, http.MethodPost, "/bookings/hold", tok, s.holdBody(8, 9))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReleaseHold(t *testing.T) {
	s := newServer(t)
	_, owner := s.token(t, auth.RoleCustomer)
	_, other := s.token(t, auth.RoleCustomer)

	rec := s.do(t, http.MethodPost, "/bookings/hold", owner, s.holdBody(12, 13))
	require.Equal(t, http.StatusOK, rec.Code)
	holdID := decode[HoldResponse](t, rec).HoldID.String()

	rec = s.do(t, http.MethodDelete, "/bookings/hold/"+holdID, other, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_owner", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodDelete, "/bookings/hold/"+holdID, owner, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/bookings/hold/"+holdID, owner, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/bookings/hold", other, s.holdBody(12, 13))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBookingLifecycle(t *testing.T) {
	s := newServer(t)
	_, customer := s.token(t, auth.RoleCustomer)
	_, admin1 := s.token(t, auth.RoleAdmin1)
	_, admin2 := s.token(t, auth.RoleAdmin2)
	_, super := s.token(t, auth.RoleSuperAdmin)

	b := s.holdAndSubmit(t, customer, 20, 21, 22)
	assert.Equal(t, booking.StatusSubmitted, b.Status)
	assert.Equal(t, int64(3*7500), b.TotalAmount)
	base := "/admin/" + b.ID.String()

	rec := s.do(t, http.MethodPatch, base+"/gate-2", admin2, GateRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_state_transition", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPatch, base+"/gate-1", admin2, GateRequest{})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPatch, base+"/gate-1", admin1, GateRequest{Notes: "documents ok"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, booking.StatusPendingAdmin2, decode[booking.Booking](t, rec).Status)

	rec = s.do(t, http.MethodPatch, base+"/gate-2", admin2, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, booking.StatusPaymentRequested, decode[booking.Booking](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/bookings/"+b.ID.String()+"/pay", customer, PayRequest{TransactionID: "txn-42"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decode[booking.Booking](t, rec)
	assert.Equal(t, booking.StatusPendingAdmin3, paid.Status)
	assert.Equal(t, booking.PaymentPaid, paid.PaymentStatus)

	rec = s.do(t, http.MethodPatch, base+"/gate-3", super, GateRequest{Notes: "final"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[booking.Booking](t, rec)
	assert.Equal(t, booking.StatusApproved, approved.Status)
	assert.True(t, approved.InvoiceGenerated)
	assert.Equal(t, "/invoices/booking-"+b.ID.String()+".pdf", approved.InvoiceURL)

	rec = s.do(t, http.MethodGet, "/halls/"+s.hall.ID.String()+"/inventory?date="+eventDate, "", nil)
	inv := decode[InventoryResponse](t, rec)
	for _, i := range []int{20, 21, 22} {
		assert.Equal(t, inventory.SlotBooked, inv.Slots[i].Status)
	}

	rec = s.do(t, http.MethodPatch, base+"/reject", admin1, GateRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPay_NotOwner(t *testing.T) {
	s := newServer(t)
	_, customer := s.token(t, auth.RoleCustomer)
	_, stranger := s.token(t, auth.RoleCustomer)

	b := s.holdAndSubmit(t, customer, 2)

	rec := s.do(t, http.MethodPost, "/bookings/"+b.ID.String()+"/pay", stranger, PayRequest{TransactionID: "t"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_owner", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/bookings/"+b.ID.String()+"/pay", customer, PayRequest{TransactionID: "t"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_state_transition", decode[ErrorResponse](t, rec).Error)
}

func TestReject_ReleasesSlots(t *testing.T) {
	s := newServer(t)
	_, customer := s.token(t, auth.RoleCustomer)
	_, admin2 := s.token(t, auth.RoleAdmin2)

	b := s.holdAndSubmit(t, customer, 40, 41)

	rec := s.do(t, http.MethodPatch, "/admin/"+b.ID.String()+"/reject", admin2, GateRequest{Notes: "incomplete"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rejected := decode[booking.Booking](t, rec)
	assert.Equal(t, booking.StatusRejected, rejected.Status)
	assert.True(t, rejected.SlotsReleased)

	rec = s.do(t, http.MethodPatch, "/admin/"+uuid.NewString()+"/reject", admin2, GateRequest{})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, next := s.token(t, auth.RoleCustomer)
	rec = s.do(t, http.MethodPost, "/bookings/hold", next, s.holdBody(40, 41))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBookingReads(t *testing.T) {
	s := newServer(t)
	_, customer := s.token(t, auth.RoleCustomer)
	_, stranger := s.token(t, auth.RoleCustomer)
	_, admin := s.token(t, auth.RoleAdmin1)

	first := s.holdAndSubmit(t, customer, 1)
	second := s.holdAndSubmit(t, customer, 2)

	rec := s.do(t, http.MethodGet, "/bookings/mine", customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[[]booking.Booking](t, rec)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)

	rec = s.do(t, http.MethodGet, "/bookings/mine", stranger, nil)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = s.do(t, http.MethodGet, "/bookings/"+first.ID.String(), stranger, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, http.MethodGet, "/bookings/"+first.ID.String(), admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/admin/bookings?status=SUBMITTED&limit=1", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]booking.Booking](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/admin/bookings?status=ALL", admin, nil)
	assert.Len(t, decode[[]booking.Booking](t, rec), 2)

	rec = s.do(t, http.MethodGet, "/admin/bookings?status=NOPE", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/admin/bookings?limit=-1", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/admin/bookings", customer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestNewRouter_RequiresDependencies(t *testing.T) {
	halls := hall.NewMemoryRepository()
	coord := inventory.NewCoordinator(inventory.NewMemoryStore(), halls, clock.NewSystem())
	svc := booking.NewService(booking.NewMemoryRepository(), coord, halls, db.NoTx{}, clock.NewSystem())
	tokens := auth.NewTokens("test-secret", time.Hour)

	assert.PanicsWithValue(t, "api: RouterConfig.Bookings is required", func() {
		NewRouter(RouterConfig{Halls: halls, Inventory: coord, Tokens: tokens})
	})
	assert.PanicsWithValue(t, "api: RouterConfig.Tokens is required", func() {
		NewRouter(RouterConfig{Halls: halls, Inventory: coord, Bookings: svc})
	})
	assert.NotPanics(t, func() {
		NewRouter(RouterConfig{Halls: halls, Inventory: coord, Bookings: svc, Tokens: tokens})
	})
}
