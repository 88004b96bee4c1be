package hall

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

var amenityPool = []string{
	"Valet Parking",
	"Bridal Suite",
	"Stage Lighting",
	"Sound System",
	"In-house Catering",
	"Dance Floor",
	"Projector",
	"Air Conditioning",
	"Garden Access",
	"Generator Backup",
}

var tierPricing = map[Tier][2]int{
	TierSilver:  {2000, 4000},
	TierGold:    {4000, 8000},
	TierDiamond: {8000, 15000},
}

// Generate builds n demo halls for local runs and seeding.
func Generate(f *gofakeit.Faker, n int) []Hall {
	tiers := []string{string(TierSilver), string(TierGold), string(TierDiamond)}
	now := time.Now().UTC()

	halls := make([]Hall, 0, n)
	for i := 0; i < n; i++ {
		tier := Tier(f.RandomString(tiers))
		price := tierPricing[tier]

		want := f.Number(2, 4)
		amenities := make([]string, 0, want)
		seen := make(map[string]bool)
		for len(amenities) < want {
			a := f.RandomString(amenityPool)
			if !seen[a] {
				seen[a] = true
				amenities = append(amenities, a)
			}
		}

		halls = append(halls, Hall{
			ID:          uuid.New(),
			Name:        fmt.Sprintf("%s %s Hall", f.City(), f.RandomString([]string{"Grand", "Royal", "Crystal", "Imperial", "Lotus"})),
			Tier:        tier,
			Capacity:    f.Number(50, 100) * 5,
			SlotPrice:   int64(f.Number(price[0], price[1])),
			PanoramaURL: f.URL(),
			Amenities:   amenities,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return halls
}
