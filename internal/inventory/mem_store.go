package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type calendarKey struct {
	hallID uuid.UUID
	date   string
}

// MemoryStore is an in-process Store. The mutex makes every SwapCalendar a
// single indivisible version check plus write, which gives the same
// exclusivity as the row level compare-and-swap in PgStore.
type MemoryStore struct {
	mu        sync.Mutex
	calendars map[calendarKey]Calendar
	holds     map[uuid.UUID]Hold
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calendars: make(map[calendarKey]Calendar),
		holds:     make(map[uuid.UUID]Hold),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *MemoryStore) InsertCalendar(_ context.Context, c Calendar) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := calendarKey{c.HallID, c.Date}
	if _, ok := m.calendars[key]; ok {
		return ErrCalendarExists
	}
	now := m.now()
	c.CreatedAt, c.UpdatedAt = now, now
	m.calendars[key] = c
	return nil
}

func (m *MemoryStore) GetCalendar(_ context.Context, hallID uuid.UUID, date string) (*Calendar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.calendars[calendarKey{hallID, date}]
	if !ok {
		return nil, ErrCalendarNotFound
	}
	return &c, nil
}

func (m *MemoryStore) SwapCalendar(_ context.Context, c *Calendar, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := calendarKey{c.HallID, c.Date}
	current, ok := m.calendars[key]
	if !ok {
		return ErrCalendarNotFound
	}
	if current.Version != expected {
		return ErrVersionMismatch
	}

	next := *c
	next.Version = expected + 1
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = m.now()
	m.calendars[key] = next

	c.Version = next.Version
	c.UpdatedAt = next.UpdatedAt
	return nil
}

func (m *MemoryStore) InsertHold(_ context.Context, h Hold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h.SlotIndices = append([]int(nil), h.SlotIndices...)
	m.holds[h.ID] = h
	return nil
}

func (m *MemoryStore) GetHold(_ context.Context, id uuid.UUID) (*Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[id]
	if !ok {
		return nil, ErrHoldNotFound
	}
	return &h, nil
}

func (m *MemoryStore) DeleteHold(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.holds[id]; !ok {
		return ErrHoldNotFound
	}
	delete(m.holds, id)
	return nil
}

func (m *MemoryStore) ListExpiredHolds(_ context.Context, now time.Time, limit int) ([]Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Hold
	for _, h := range m.holds {
		if h.Expired(now) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// HoldCount returns the number of physical hold records, expired ones included.
func (m *MemoryStore) HoldCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.holds)
}
