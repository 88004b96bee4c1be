package hall

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const hallColumns = `id, name, tier, capacity, slot_price, panorama_url, amenities, created_at, updated_at`

func scanHall(row pgx.Row) (*Hall, error) {
	var h Hall
	err := row.Scan(
		&h.ID,
		&h.Name,
		&h.Tier,
		&h.Capacity,
		&h.SlotPrice,
		&h.PanoramaURL,
		&h.Amenities,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHallNotFound
		}
		return nil, err
	}
	return &h, nil
}

func (r *PgRepository) GetHall(ctx context.Context, id uuid.UUID) (*Hall, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+hallColumns+` FROM halls WHERE id = $1`, id)
	return scanHall(row)
}

func (r *PgRepository) ListHalls(ctx context.Context) ([]Hall, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+hallColumns+` FROM halls ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list halls: %w", err)
	}
	defer rows.Close()

	var result []Hall
	for rows.Next() {
		h, err := scanHall(rows)
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

// InsertHall is used by the seed tool and integration tests.
func (r *PgRepository) InsertHall(ctx context.Context, h Hall) error {
	amenities := h.Amenities
	if amenities == nil {
		amenities = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO halls (id, name, tier, capacity, slot_price, panorama_url, amenities, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`, h.ID, h.Name, h.Tier, h.Capacity, h.SlotPrice, h.PanoramaURL, amenities)
	if err != nil {
		return fmt.Errorf("insert hall: %w", err)
	}
	return nil
}
