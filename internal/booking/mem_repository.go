package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memEntry struct {
	seq int64
	b   *Booking
}

// MemoryRepository keeps bookings in process. Used by the memory storage
// driver and tests.
type MemoryRepository struct {
	mu       sync.Mutex
	seq      int64
	bookings map[uuid.UUID]memEntry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{bookings: make(map[uuid.UUID]memEntry)}
}

func (m *MemoryRepository) Create(_ context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.bookings[b.ID] = memEntry{seq: m.seq, b: b.clone()}
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return e.b.clone(), nil
}

func (m *MemoryRepository) Update(_ context.Context, b *Booking, from Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.bookings[b.ID]
	if !ok {
		return ErrBookingNotFound
	}
	if e.b.Status != from {
		return ErrStatusChanged
	}
	e.b = b.clone()
	m.bookings[b.ID] = e
	return nil
}

func (m *MemoryRepository) ListByCustomer(_ context.Context, customerID uuid.UUID, limit, offset int) ([]Booking, error) {
	return m.list(func(b *Booking) bool { return b.CustomerID == customerID }, limit, offset), nil
}

func (m *MemoryRepository) ListByStatus(_ context.Context, status Status, limit, offset int) ([]Booking, error) {
	return m.list(func(b *Booking) bool { return status == "" || b.Status == status }, limit, offset), nil
}

func (m *MemoryRepository) ListStale(_ context.Context, status Status, updatedBefore time.Time, limit int) ([]Booking, error) {
	return m.list(func(b *Booking) bool {
		return b.Status == status && !b.UpdatedAt.After(updatedBefore)
	}, limit, 0), nil
}

func (m *MemoryRepository) ListUnreleased(_ context.Context, limit int) ([]Booking, error) {
	return m.list(func(b *Booking) bool { return b.Status == StatusRejected && !b.SlotsReleased }, limit, 0), nil
}

// list returns matches newest first.
func (m *MemoryRepository) list(match func(*Booking) bool, limit, offset int) []Booking {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []memEntry
	for _, e := range m.bookings {
		if match(e.b) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq > entries[j].seq })

	if offset >= len(entries) {
		return nil
	}
	entries = entries[offset:]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]Booking, len(entries))
	for i, e := range entries {
		out[i] = *e.b.clone()
	}
	return out
}
