package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/banquet-slot-booking/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const bookingColumns = `id, customer_id, hall_id, day, slot_indices, event_time, document_ref, customer_notes,
	status, total_amount, payment_status, transaction_id,
	documents_gate, payment_gate, final_gate, rejection,
	slots_released, invoice_generated, invoice_url, created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var (
		b                                  Booking
		documents, payment, final, rejects []byte
	)
	err := row.Scan(
		&b.ID,
		&b.CustomerID,
		&b.HallID,
		&b.Date,
		&b.SlotIndices,
		&b.EventTime,
		&b.DocumentRef,
		&b.CustomerNotes,
		&b.Status,
		&b.TotalAmount,
		&b.PaymentStatus,
		&b.TransactionID,
		&documents,
		&payment,
		&final,
		&rejects,
		&b.SlotsReleased,
		&b.InvoiceGenerated,
		&b.InvoiceURL,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	if err := decodeGate(documents, &b.DocumentsGate); err != nil {
		return nil, err
	}
	if err := decodeGate(payment, &b.PaymentGate); err != nil {
		return nil, err
	}
	if err := decodeGate(final, &b.FinalGate); err != nil {
		return nil, err
	}
	if err := decodeGate(rejects, &b.Rejection); err != nil {
		return nil, err
	}
	return &b, nil
}

func decodeGate[T any](raw []byte, dst **T) error {
	if len(raw) == 0 {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode approval record: %w", err)
	}
	*dst = &v
	return nil
}

// encodeGate returns nil for a nil record so the column is stored as NULL.
func encodeGate[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

type gateColumns struct {
	documents, payment, final, rejection []byte
}

func encodeGates(b *Booking) (gateColumns, error) {
	var (
		g   gateColumns
		err error
	)
	if g.documents, err = encodeGate(b.DocumentsGate); err != nil {
		return g, err
	}
	if g.payment, err = encodeGate(b.PaymentGate); err != nil {
		return g, err
	}
	if g.final, err = encodeGate(b.FinalGate); err != nil {
		return g, err
	}
	if g.rejection, err = encodeGate(b.Rejection); err != nil {
		return g, err
	}
	return g, nil
}

func (r *PgRepository) Create(ctx context.Context, b *Booking) error {
	g, err := encodeGates(b)
	if err != nil {
		return err
	}

	_, err = db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`,
		b.ID, b.CustomerID, b.HallID, b.Date, b.SlotIndices, b.EventTime, b.DocumentRef, b.CustomerNotes,
		b.Status, b.TotalAmount, b.PaymentStatus, b.TransactionID,
		g.documents, g.payment, g.final, g.rejection,
		b.SlotsReleased, b.InvoiceGenerated, b.InvoiceURL, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

func (r *PgRepository) Update(ctx context.Context, b *Booking, from Status) error {
	g, err := encodeGates(b)
	if err != nil {
		return err
	}

	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE bookings
		SET status = $3,
		    payment_status = $4,
		    transaction_id = $5,
		    documents_gate = $6,
		    payment_gate = $7,
		    final_gate = $8,
		    rejection = $9,
		    slots_released = $10,
		    invoice_generated = $11,
		    invoice_url = $12,
		    updated_at = $13
		WHERE id = $1
		  AND status = $2
	`, b.ID, from, b.Status, b.PaymentStatus, b.TransactionID,
		g.documents, g.payment, g.final, g.rejection,
		b.SlotsReleased, b.InvoiceGenerated, b.InvoiceURL, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, b.ID); err != nil {
			return err
		}
		return ErrStatusChanged
	}
	return nil
}

func (r *PgRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]Booking, error) {
	return r.query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE customer_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, customerID, limit, offset)
}

func (r *PgRepository) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Booking, error) {
	return r.query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, string(status), limit, offset)
}

func (r *PgRepository) ListStale(ctx context.Context, status Status, updatedBefore time.Time, limit int) ([]Booking, error) {
	return r.query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = $1
		  AND updated_at <= $2
		ORDER BY updated_at
		LIMIT $3
	`, status, updatedBefore, limit)
}

func (r *PgRepository) ListUnreleased(ctx context.Context, limit int) ([]Booking, error) {
	return r.query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'REJECTED'
		  AND NOT slots_released
		ORDER BY updated_at
		LIMIT $1
	`, limit)
}

func (r *PgRepository) query(ctx context.Context, sql string, args ...any) ([]Booking, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
