package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists bookings. Every status change goes through Update,
// which only writes when the stored status still equals from.
type Repository interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id uuid.UUID) (*Booking, error)
	// Update returns ErrStatusChanged when the stored status is not from.
	Update(ctx context.Context, b *Booking, from Status) error

	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]Booking, error)
	// ListByStatus lists all bookings when status is empty. Newest first.
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Booking, error)

	// Reconciler queries.
	ListStale(ctx context.Context, status Status, updatedBefore time.Time, limit int) ([]Booking, error)
	ListUnreleased(ctx context.Context, limit int) ([]Booking, error)
}
