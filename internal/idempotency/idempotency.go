// Package idempotency stores the outcome of client requests carrying an
// Idempotency-Key so retries replay the first response.
package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a completed response is replayable.
	DefaultTTL = 24 * time.Hour
	// DefaultProcessingTTL bounds how long an unfinished request blocks its key.
	DefaultProcessingTTL = time.Minute
)

var ErrNotFound = errors.New("idempotency record not found")

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

type Record struct {
	Key          string    `json:"key"`
	Status       Status    `json:"status"`
	RequestHash  string    `json:"requestHash"`
	ResponseCode int       `json:"responseCode,omitempty"`
	ResponseBody []byte    `json:"responseBody,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store keeps records keyed by client key.
type Store interface {
	// Begin claims key for a request. When another record already holds the
	// key it returns that record and false.
	Begin(ctx context.Context, key, requestHash string) (*Record, bool, error)
	// Complete stores the final response for a claimed key.
	Complete(ctx context.Context, key string, code int, body []byte) error
	// Abort drops a claim so the client can retry, used when the request failed
	// before producing a replayable response.
	Abort(ctx context.Context, key string) error
}

// MemoryStore is an in-process Store for the memory driver and tests.
type MemoryStore struct {
	mu            sync.Mutex
	records       map[string]memoryEntry
	ttl           time.Duration
	processingTTL time.Duration
	now           func() time.Time
}

type memoryEntry struct {
	rec     Record
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		records:       make(map[string]memoryEntry),
		ttl:           ttl,
		processingTTL: DefaultProcessingTTL,
		now:           time.Now,
	}
}

func (m *MemoryStore) Begin(_ context.Context, key, requestHash string) (*Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.records[key]; ok && now.Before(e.expires) {
		rec := e.rec
		return &rec, false, nil
	}

	rec := Record{Key: key, Status: StatusProcessing, RequestHash: requestHash, CreatedAt: now}
	m.records[key] = memoryEntry{rec: rec, expires: now.Add(m.processingTTL)}
	return &rec, true, nil
}

func (m *MemoryStore) Complete(_ context.Context, key string, code int, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.records[key]
	if !ok {
		return ErrNotFound
	}
	e.rec.Status = StatusCompleted
	e.rec.ResponseCode = code
	e.rec.ResponseBody = append([]byte(nil), body...)
	e.expires = m.now().Add(m.ttl)
	m.records[key] = e
	return nil
}

func (m *MemoryStore) Abort(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}
