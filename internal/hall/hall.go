package hall

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Tier string

const (
	TierSilver  Tier = "SILVER"
	TierGold    Tier = "GOLD"
	TierDiamond Tier = "DIAMOND"
)

var ErrHallNotFound = errors.New("hall not found")

type Hall struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Tier        Tier      `json:"tier"`
	Capacity    int       `json:"capacity"`
	SlotPrice   int64     `json:"slotPrice"` // minor units per 30 minute slot
	PanoramaURL string    `json:"panoramaUrl"`
	Amenities   []string  `json:"amenities"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Repository interface {
	GetHall(ctx context.Context, id uuid.UUID) (*Hall, error)
	ListHalls(ctx context.Context) ([]Hall, error)
}

// MemoryRepository is a fixed in-process catalogue.
type MemoryRepository struct {
	mu    sync.RWMutex
	halls map[uuid.UUID]Hall
}

func NewMemoryRepository(halls ...Hall) *MemoryRepository {
	m := &MemoryRepository{halls: make(map[uuid.UUID]Hall, len(halls))}
	for _, h := range halls {
		m.Put(h)
	}
	return m
}

func (m *MemoryRepository) Put(h Hall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halls[h.ID] = h
}

func (m *MemoryRepository) GetHall(_ context.Context, id uuid.UUID) (*Hall, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.halls[id]
	if !ok {
		return nil, ErrHallNotFound
	}
	return &h, nil
}

func (m *MemoryRepository) ListHalls(_ context.Context) ([]Hall, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Hall, 0, len(m.halls))
	for _, h := range m.halls {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
