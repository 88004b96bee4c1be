package inventory

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

// PgStore keeps one slot_calendars row per (hall, day) with the 48 slots in a
// JSONB column, and the hold ledger in slot_holds.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, s.pool, fn)
}

func scanCalendar(row pgx.Row) (*Calendar, error) {
	var (
		c   Calendar
		raw []byte
	)
	err := row.Scan(&c.HallID, &c.Date, &raw, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCalendarNotFound
		}
		return nil, err
	}

	var slots []Slot
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	if len(slots) != SlotsPerDay {
		return nil, fmt.Errorf("calendar %s/%s has %d slots", c.HallID, c.Date, len(slots))
	}
	copy(c.Slots[:], slots)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func encodeSlots(c *Calendar) ([]byte, error) {
	data, err := json.Marshal(c.Slots[:])
	if err != nil {
		return nil, fmt.Errorf("encode slots: %w", err)
	}
	return data, nil
}

func (s *PgStore) InsertCalendar(ctx context.Context, c Calendar) error {
	slots, err := encodeSlots(&c)
	if err != nil {
		return err
	}

	// ON CONFLICT keeps a losing creator from aborting its surrounding transaction.
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO slot_calendars (hall_id, day, slots, version, created_at, updated_at)
		VALUES ($1, $2, $3, 0, now(), now())
		ON CONFLICT (hall_id, day) DO NOTHING
	`, c.HallID, c.Date, slots)
	if err != nil {
		return fmt.Errorf("insert calendar: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCalendarExists
	}
	return nil
}

func (s *PgStore) GetCalendar(ctx context.Context, hallID uuid.UUID, date string) (*Calendar, error) {
	row := db.Conn(ctx, s.pool).QueryRow(ctx, `
		SELECT hall_id, day, slots, version, created_at, updated_at
		FROM slot_calendars
		WHERE hall_id = $1 AND day = $2
	`, hallID, date)
	return scanCalendar(row)
}

func (s *PgStore) SwapCalendar(ctx context.Context, c *Calendar, expected int64) error {
	slots, err := encodeSlots(c)
	if err != nil {
		return err
	}

	var (
		version   int64
		updatedAt time.Time
	)
	err = db.Conn(ctx, s.pool).QueryRow(ctx, `
		UPDATE slot_calendars
		SET slots = $3,
		    version = version + 1,
		    updated_at = now()
		WHERE hall_id = $1
		  AND day = $2
		  AND version = $4
		RETURNING version, updated_at
	`, c.HallID, c.Date, slots, expected).Scan(&version, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionMismatch
		}
		return fmt.Errorf("swap calendar: %w", err)
	}

	c.Version = version
	c.UpdatedAt = updatedAt
	return nil
}

func scanHold(row pgx.Row) (*Hold, error) {
	var h Hold
	err := row.Scan(&h.ID, &h.UserID, &h.HallID, &h.Date, &h.SlotIndices, &h.ExpiresAt, &h.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHoldNotFound
		}
		return nil, err
	}
	return &h, nil
}

func (s *PgStore) InsertHold(ctx context.Context, h Hold) error {
	_, err := db.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO slot_holds (id, user_id, hall_id, day, slot_indices, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, h.ID, h.UserID, h.HallID, h.Date, h.SlotIndices, h.ExpiresAt, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert hold: %w", err)
	}
	return nil
}

func (s *PgStore) GetHold(ctx context.Context, id uuid.UUID) (*Hold, error) {
	row := db.Conn(ctx, s.pool).QueryRow(ctx, `
		SELECT id, user_id, hall_id, day, slot_indices, expires_at, created_at
		FROM slot_holds
		WHERE id = $1
	`, id)
	return scanHold(row)
}

func (s *PgStore) DeleteHold(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `DELETE FROM slot_holds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete hold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrHoldNotFound
	}
	return nil
}

func (s *PgStore) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]Hold, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT id, user_id, hall_id, day, slot_indices, expires_at, created_at
		FROM slot_holds
		WHERE expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired holds: %w", err)
	}
	defer rows.Close()

	var result []Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
