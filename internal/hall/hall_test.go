package hall

import (
	"context"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	gold := Hall{ID: uuid.New(), Name: "Orchid", Tier: TierGold, Capacity: 300, SlotPrice: 12000}
	silver := Hall{ID: uuid.New(), Name: "Jasmine", Tier: TierSilver, Capacity: 120, SlotPrice: 6000}
	repo := NewMemoryRepository(gold, silver)

	got, err := repo.GetHall(ctx, gold.ID)
	require.NoError(t, err)
	assert.Equal(t, "Orchid", got.Name)

	_, err = repo.GetHall(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrHallNotFound)

	all, err := repo.ListHalls(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Jasmine", all[0].Name)
}

func TestGenerate(t *testing.T) {
	halls := Generate(gofakeit.New(42), 25)
	require.Len(t, halls, 25)

	ids := make(map[uuid.UUID]bool)
	for _, h := range halls {
		assert.False(t, ids[h.ID], "duplicate id")
		ids[h.ID] = true

		bounds, ok := tierPricing[h.Tier]
		require.True(t, ok, "unknown tier %q", h.Tier)
		assert.GreaterOrEqual(t, h.SlotPrice, int64(bounds[0]))
		assert.LessOrEqual(t, h.SlotPrice, int64(bounds[1]))
		assert.GreaterOrEqual(t, len(h.Amenities), 2)
		assert.LessOrEqual(t, len(h.Amenities), 4)
		assert.NotEmpty(t, h.Name)
	}
}
