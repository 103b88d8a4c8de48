package extract

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/lookup"
	"github.com/FACorreiaa/loci-chatmap/internal/app/models"
)

func newTestTextExtractor() *TextExtractor {
	return NewTextExtractor(
		lookup.Default(),
		lookup.NewTemplateImageResolver(""),
		WithRandom(NewRandom(7)),
		WithClock(clockwork.NewFakeClockAt(testEpoch)),
	)
}

func TestTextExtractor_Louvre(t *testing.T) {
	x := newTestTextExtractor()

	locs := x.Extract(context.Background(), "1. Louvre Museum - world-famous art museum.")
	require.Len(t, locs, 1)

	loc := locs[0]
	assert.Equal(t, "Louvre Museum", loc.Name)
	assert.Equal(t, "world-famous art museum", loc.Description)
	assert.Equal(t, models.Position{Lat: 48.8606, Lng: 2.3376}, loc.Position)
	assert.Equal(t, "Paris", loc.City)
	assert.Equal(t, "France", loc.Country)
	assert.False(t, loc.Unresolved)
	assert.NotEmpty(t, loc.ImageURL)
	assert.GreaterOrEqual(t, loc.Rating, 4.5)
	assert.LessOrEqual(t, loc.Rating, 5.0)
	assert.GreaterOrEqual(t, loc.Reviews, models.MinFallbackReviews)
	assert.Less(t, loc.Reviews, models.MaxFallbackReviews)
}

func TestTextExtractor_ListVariants(t *testing.T) {
	x := newTestTextExtractor()
	text := `Here is a short list:

1. **Eiffel Tower** - the iron lady. Go at dusk.
2. Musee d'Orsay: impressionists galore
3. Le Petit Zinc - a bistro we love.
4. eiffel tower - again
5. X - too short
10. Sacre-Coeur — views from Montmartre

Not a list line 6. Colosseum - nope`

	locs := x.Extract(context.Background(), text)
	require.Len(t, locs, 4)

	assert.Equal(t, "Eiffel Tower", locs[0].Name)
	assert.Equal(t, "the iron lady", locs[0].Description)

	assert.Equal(t, "Musee d'Orsay", locs[1].Name)
	assert.Equal(t, "impressionists galore", locs[1].Description)

	unknown := locs[2]
	assert.Equal(t, "Le Petit Zinc", unknown.Name)
	assert.True(t, unknown.Unresolved)
	assert.False(t, unknown.Mappable())
	assert.Equal(t, models.Position{}, unknown.Position)

	assert.Equal(t, "Sacre-Coeur", locs[3].Name)
	assert.Equal(t, "views from Montmartre", locs[3].Description)

	ids := map[string]bool{}
	for _, l := range locs {
		ids[l.ID] = true
	}
	assert.Len(t, ids, len(locs))
}

func TestTextExtractor_DescriptionFallbacks(t *testing.T) {
	x := newTestTextExtractor()

	locs := x.Extract(context.Background(), "1. Big Ben\n2. Cafe Nowhere")
	require.Len(t, locs, 2)
	assert.Equal(t, lookup.Default().Description("Big Ben"), locs[0].Description)
	assert.Equal(t, "Visit Cafe Nowhere", locs[1].Description)
}

func TestTextExtractor_NoList(t *testing.T) {
	x := newTestTextExtractor()
	assert.Empty(t, x.Extract(context.Background(), "Paris is wonderful. The Eiffel Tower is a must."))
	assert.Empty(t, x.Extract(context.Background(), ""))
}
