package extract

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/lookup"
	"github.com/FACorreiaa/loci-chatmap/internal/app/models"
	"github.com/FACorreiaa/loci-chatmap/internal/app/observability/metrics"
)

// Extractor runs the full pipeline over accumulated reply text:
// split, then JSON normalization, then the numbered-list fallback.
type Extractor struct {
	places     PlaceLookup
	normalizer *Normalizer
	text       *TextExtractor
	logger     *zap.Logger
}

// NewExtractor wires a Normalizer and a TextExtractor that share the same options.
func NewExtractor(places PlaceLookup, images lookup.ImageResolver, opts ...Option) *Extractor {
	d := newDeps(opts)
	shared := []Option{WithRandom(d.random), WithClock(d.clock), WithLogger(d.logger)}
	return &Extractor{
		places:     places,
		normalizer: NewNormalizer(places, images, shared...),
		text:       NewTextExtractor(places, images, shared...),
		logger:     d.logger,
	}
}

// Normalizer exposes the underlying normalizer for callers holding pre-parsed data.
func (e *Extractor) Normalizer() *Normalizer { return e.normalizer }

// Extract is the permissive path used on every streamed chunk. It never fails:
// malformed JSON falls back to list prose, and a failure leaves the prose intact
// with an empty batch.
func (e *Extractor) Extract(ctx context.Context, accumulated string) models.ExtractionResult {
	ctx, span := otel.Tracer("Extractor").Start(ctx, "Extract")
	defer span.End()
	start := time.Now()

	l := e.logger.With(zap.String("method", "Extract"))

	parsed := Split(accumulated)
	res := models.ExtractionResult{
		Text:      parsed.TextContent,
		Locations: []models.Location{},
		Source:    models.SourceNone,
	}

	switch {
	case parsed.IsWeather():
		res.WeatherLocation = parsed.WeatherLocation
		res.Source = models.SourceWeather

	case parsed.HasJSON():
		payload, err := decodeJSON(parsed.JSONContent)
		if err != nil {
			metrics.Get().MalformedJSONTotal.Add(ctx, 1)
			l.Warn("Locations block did not decode, falling back to list prose", zap.Error(err))
			span.RecordError(err)
		} else {
			locs, _ := e.normalizer.Normalize(ctx, payload, ModePermissive)
			if len(locs) > 0 {
				res.Locations, res.Source = locs, models.SourceJSON
			}
		}
		if res.Source == models.SourceNone {
			e.fromText(ctx, &res)
		}

	default:
		e.fromText(ctx, &res)
	}

	res.City, res.Country = e.inferCity(res)

	m := metrics.Get()
	m.ExtractionRunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(res.Source))))
	m.LocationsExtractedTotal.Add(ctx, int64(len(res.Locations)))
	m.ExtractionDuration.Record(ctx, time.Since(start).Seconds())

	span.SetAttributes(
		attribute.String("extraction.source", string(res.Source)),
		attribute.Int("locations.count", len(res.Locations)),
	)
	span.SetStatus(codes.Ok, "extraction complete")
	return res
}

// ExtractStrict is the one-shot path for a finished reply. A JSON block is
// normalized in strict mode; without one the numbered-list prose is used, and
// models.ErrNoLocationsFound is returned when neither yields anything.
func (e *Extractor) ExtractStrict(ctx context.Context, text string) ([]models.Location, error) {
	ctx, span := otel.Tracer("Extractor").Start(ctx, "ExtractStrict")
	defer span.End()

	parsed := Split(text)
	if parsed.HasJSON() {
		payload, err := decodeJSON(parsed.JSONContent)
		if err != nil {
			metrics.Get().MalformedJSONTotal.Add(ctx, 1)
			span.RecordError(err)
			span.SetStatus(codes.Error, "malformed JSON")
			return nil, err
		}
		locs, err := e.normalizer.Normalize(ctx, payload, ModeStrict)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "strict normalization failed")
			return nil, err
		}
		return locs, nil
	}

	locs := e.text.Extract(ctx, parsed.TextContent)
	if len(locs) == 0 {
		span.SetStatus(codes.Error, "no locations")
		return nil, models.ErrNoLocationsFound
	}
	return locs, nil
}

func (e *Extractor) fromText(ctx context.Context, res *models.ExtractionResult) {
	if locs := e.text.Extract(ctx, res.Text); len(locs) > 0 {
		res.Locations, res.Source = locs, models.SourceText
	}
}

// inferCity picks the city the batch is about: an explicit city on a location,
// then the lookup city of the first known location, then the first known place
// mentioned in the prose.
func (e *Extractor) inferCity(res models.ExtractionResult) (string, string) {
	for _, loc := range res.Locations {
		if loc.City != "" {
			return loc.City, loc.Country
		}
	}
	if e.places == nil {
		return "", ""
	}
	for _, loc := range res.Locations {
		if p, ok := e.places.Find(loc.Name); ok && p.CityName() != "" {
			return p.CityName(), p.Country
		}
	}
	if res.Source == models.SourceWeather {
		return "", ""
	}
	for _, p := range e.places.Mentions(res.Text) {
		if p.CityName() != "" {
			return p.CityName(), p.Country
		}
	}
	return "", ""
}

// IsClientError reports whether err comes from bad model output rather than
// from the service itself.
func IsClientError(err error) bool {
	var malformed *models.MalformedJSONError
	return errors.As(err, &malformed) ||
		errors.Is(err, models.ErrValidation) ||
		errors.Is(err, models.ErrNoLocationsFound) ||
		errors.Is(err, models.ErrMissingJSON)
}
