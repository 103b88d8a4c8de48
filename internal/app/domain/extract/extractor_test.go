package extract

import (
	"context"
	"fmt"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/lookup"
	"github.com/FACorreiaa/loci-chatmap/internal/app/models"
)

func newTestExtractor() *Extractor {
	return NewExtractor(
		lookup.Default(),
		lookup.NewTemplateImageResolver(""),
		WithRandom(NewRandom(42)),
		WithClock(clockwork.NewFakeClockAt(testEpoch)),
	)
}

func TestExtractor_Extract(t *testing.T) {
	e := newTestExtractor()
	ctx := context.Background()

	t.Run("JSON batch", func(t *testing.T) {
		res := e.Extract(ctx, "Two classics for you.\n"+
			`{"locations":[{"name":"Eiffel Tower","coordinates":[48.8584,2.2945]},{"name":"Louvre Museum","coordinates":[48.8606,2.3376]}]}`)
		assert.Equal(t, models.SourceJSON, res.Source)
		assert.Equal(t, "Two classics for you.", res.Text)
		require.Len(t, res.Locations, 2)
		assert.Equal(t, "Paris", res.City)
		assert.Equal(t, "France", res.Country)
	})

	t.Run("mid JSON keeps prose and an empty batch", func(t *testing.T) {
		res := e.Extract(ctx, `Here are some places... {"locations": [{"name": "X"`)
		assert.Equal(t, "Here are some places...", res.Text)
		assert.NotNil(t, res.Locations)
		assert.Empty(t, res.Locations)
		assert.Equal(t, models.SourceNone, res.Source)
	})

	t.Run("list prose without JSON", func(t *testing.T) {
		res := e.Extract(ctx, "Rome highlights:\n1. Colosseum - ancient arena.\n2. Trevi Fountain - toss a coin.")
		assert.Equal(t, models.SourceText, res.Source)
		require.Len(t, res.Locations, 2)
		assert.Equal(t, "Rome", res.City)
	})

	t.Run("malformed JSON falls back to list prose", func(t *testing.T) {
		res := e.Extract(ctx, "Picks:\n1. Big Ben - bells.\n"+`{"locations":[{"name":'oops'}]}`)
		assert.Equal(t, models.SourceText, res.Source)
		require.Len(t, res.Locations, 1)
		assert.Equal(t, "Big Ben", res.Locations[0].Name)
	})

	t.Run("all records invalid falls back to list prose", func(t *testing.T) {
		res := e.Extract(ctx, "1. Sagrada Familia - Gaudi.\n"+`{"locations":[{"name":"Bad","coordinates":[200,0]}]}`)
		assert.Equal(t, models.SourceText, res.Source)
		require.Len(t, res.Locations, 1)
		assert.Equal(t, "Barcelona", res.City)
	})

	t.Run("weather query", func(t *testing.T) {
		res := e.Extract(ctx, "Good idea! Let me check the weather in Tokyo.")
		assert.Equal(t, models.SourceWeather, res.Source)
		assert.Equal(t, "Tokyo", res.WeatherLocation)
		assert.Empty(t, res.Locations)
		assert.Empty(t, res.City)
	})

	t.Run("city inferred from mentions", func(t *testing.T) {
		res := e.Extract(ctx, "Lisbon is hilly, bring good shoes.")
		assert.Equal(t, models.SourceNone, res.Source)
		assert.Equal(t, "Lisbon", res.City)
		assert.Equal(t, "Portugal", res.Country)
	})
}

func TestExtractor_ExtractOverGrowingStream(t *testing.T) {
	e := newTestExtractor()
	reply := "Paris picks:\n```json\n" +
		`{"locations":[{"name":"Eiffel Tower","coordinates":[48.8584,2.2945]}]}` +
		"\n```"

	var last models.ExtractionResult
	for size := 1; size <= len(reply); size += 7 {
		last = e.Extract(context.Background(), reply[:size])
		assert.NotContains(t, last.Text, "{")
	}
	last = e.Extract(context.Background(), reply)
	assert.Equal(t, models.SourceJSON, last.Source)
	require.Len(t, last.Locations, 1)
	assert.Equal(t, "Paris picks:", last.Text)
}

func TestExtractor_ExtractStrict(t *testing.T) {
	e := newTestExtractor()
	ctx := context.Background()

	locs, err := e.ExtractStrict(ctx, `{"locations":[{"name":"Eiffel Tower","coordinates":[48.8584,2.2945]}]}`)
	require.NoError(t, err)
	require.Len(t, locs, 1)

	_, err = e.ExtractStrict(ctx, `{"locations":[{"name":"Bad","coordinates":[200,0]}]}`)
	var coordErr *models.InvalidCoordinatesError
	assert.ErrorAs(t, err, &coordErr)
	assert.True(t, IsClientError(err))

	locs, err = e.ExtractStrict(ctx, "1. Louvre Museum - world-famous art museum.")
	require.NoError(t, err)
	require.Len(t, locs, 1)

	_, err = e.ExtractStrict(ctx, "No places today.")
	assert.ErrorIs(t, err, models.ErrNoLocationsFound)

	assert.False(t, IsClientError(fmt.Errorf("upstream down")))
}
