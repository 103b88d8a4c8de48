package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/lookup"
	"github.com/FACorreiaa/loci-chatmap/internal/app/models"
	"github.com/FACorreiaa/loci-chatmap/internal/app/observability/metrics"
)

// Mode selects how the normalizer treats an invalid record.
type Mode int

const (
	// ModePermissive drops invalid records and keeps going.
	ModePermissive Mode = iota
	// ModeStrict rejects the whole batch on the first invalid record.
	ModeStrict
)

func (m Mode) String() string {
	if m == ModeStrict {
		return "strict"
	}
	return "permissive"
}

// ParseMode maps "strict" / "permissive" (or "") to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "permissive":
		return ModePermissive, nil
	case "strict":
		return ModeStrict, nil
	default:
		return ModePermissive, fmt.Errorf("unknown normalization mode %q", s)
	}
}

var errNotAnObject = errors.New("record is not an object")

// Normalizer converts loosely typed location records into models.Location.
type Normalizer struct {
	places PlaceLookup
	images lookup.ImageResolver
	deps
}

// NewNormalizer builds a Normalizer.
func NewNormalizer(places PlaceLookup, images lookup.ImageResolver, opts ...Option) *Normalizer {
	return &Normalizer{
		places: places,
		images: images,
		deps:   newDeps(opts),
	}
}

// NormalizeStrict fails the whole batch on the first invalid record.
func (n *Normalizer) NormalizeStrict(ctx context.Context, payload any) ([]models.Location, error) {
	return n.Normalize(ctx, payload, ModeStrict)
}

// NormalizePermissive filters out invalid records and never fails.
func (n *Normalizer) NormalizePermissive(ctx context.Context, payload any) []models.Location {
	locs, _ := n.Normalize(ctx, payload, ModePermissive)
	return locs
}

// Normalize accepts an already decoded payload: {"locations": [...]}, a single
// record object, or a bare array of records. Output order follows input order.
//
// In strict mode the first invalid record returns a *models.LocationValidationError
// and an empty batch returns models.ErrNoLocationsFound. In permissive mode the
// error is always nil and the result may be empty.
func (n *Normalizer) Normalize(ctx context.Context, payload any, mode Mode) ([]models.Location, error) {
	_, span := otel.Tracer("Normalizer").Start(ctx, "Normalize")
	defer span.End()
	span.SetAttributes(attribute.String("mode", mode.String()))

	l := n.logger.With(zap.String("method", "Normalize"), zap.Stringer("mode", mode))

	records, err := rawRecords(payload)
	if err != nil {
		if mode == ModeStrict {
			span.RecordError(err)
			span.SetStatus(codes.Error, "unexpected payload shape")
			return nil, err
		}
		l.Warn("Ignoring payload with unexpected shape", zap.Error(err))
		return []models.Location{}, nil
	}

	stamp := n.clock.Now().UnixMilli()
	out := make([]models.Location, 0, len(records))
	for i, rec := range records {
		loc, err := n.normalizeRecord(rec, i, stamp)
		if err != nil {
			metrics.Get().ValidationFailuresTotal.Add(ctx, 1, metric.WithAttributes(
				attribute.String("mode", mode.String()),
				attribute.String("reason", failureReason(err)),
			))
			if mode == ModeStrict {
				l.Warn("Rejecting location batch", zap.Int("index", i), zap.Error(err))
				span.RecordError(err)
				span.SetStatus(codes.Error, "invalid location")
				return nil, err
			}
			l.Warn("Skipping invalid location",
				zap.Int("index", i),
				zap.Error(err),
				zap.String("snippet", recordSnippet(rec)))
			continue
		}
		out = append(out, loc)
	}

	if len(out) == 0 && mode == ModeStrict {
		span.SetStatus(codes.Error, "no locations")
		return nil, models.ErrNoLocationsFound
	}

	span.SetAttributes(attribute.Int("locations.count", len(out)))
	span.SetStatus(codes.Ok, "locations normalized")
	return out, nil
}

// ParseJSONLocations finds the first JSON object in text (code fences and
// surrounding prose allowed), decodes it and normalizes it.
// In strict mode a block that does not decode yields *models.MalformedJSONError
// and text without any object yields models.ErrMissingJSON. Permissive mode logs
// both and returns an empty batch.
func (n *Normalizer) ParseJSONLocations(ctx context.Context, text string, mode Mode) ([]models.Location, error) {
	block, ok := firstJSONObject(text)
	if !ok {
		trimmed := strings.TrimSpace(text)
		if strings.HasPrefix(trimmed, "[") && json.Valid([]byte(trimmed)) {
			block = trimmed
		} else if mode == ModeStrict {
			return nil, models.ErrMissingJSON
		} else {
			return []models.Location{}, nil
		}
	}

	payload, err := decodeJSON(block)
	if err != nil {
		metrics.Get().MalformedJSONTotal.Add(ctx, 1)
		if mode == ModeStrict {
			return nil, err
		}
		n.logger.Warn("Ignoring malformed locations JSON",
			zap.String("method", "ParseJSONLocations"),
			zap.Error(err))
		return []models.Location{}, nil
	}
	return n.Normalize(ctx, payload, mode)
}

func decodeJSON(block string) (any, error) {
	var payload any
	if err := json.Unmarshal([]byte(block), &payload); err != nil {
		return nil, &models.MalformedJSONError{Snippet: models.Snippet(block, 120), Err: err}
	}
	return payload, nil
}

func rawRecords(payload any) ([]any, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case []any:
		return p, nil
	case []models.RawLocation:
		out := make([]any, len(p))
		for i := range p {
			out[i] = map[string]any(p[i])
		}
		return out, nil
	case []map[string]any:
		out := make([]any, len(p))
		for i := range p {
			out[i] = p[i]
		}
		return out, nil
	case models.RawLocation:
		return rawRecords(map[string]any(p))
	case map[string]any:
		if v, ok := p["locations"]; ok {
			switch locs := v.(type) {
			case nil:
				return nil, nil
			case []any:
				return locs, nil
			default:
				return nil, fmt.Errorf("%w: \"locations\" is %T, want an array", models.ErrValidation, v)
			}
		}
		if _, ok := p["name"]; ok {
			return []any{p}, nil
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unsupported payload type %T", models.ErrValidation, payload)
	}
}

func (n *Normalizer) normalizeRecord(rec any, index int, stamp int64) (models.Location, error) {
	raw, ok := asObject(rec)
	if !ok {
		return models.Location{}, &models.LocationValidationError{Index: index, Err: errNotAnObject}
	}

	name := raw.Name()
	if name == "" {
		return models.Location{}, &models.LocationValidationError{Index: index, Err: models.ErrMissingName}
	}

	pos, err := rawPosition(raw, name)
	if err != nil {
		return models.Location{}, &models.LocationValidationError{Name: name, Index: index, Err: err}
	}

	loc := models.Location{
		ID:       locationID(stamp, index),
		Name:     name,
		Position: pos,
		Rating:   models.DefaultRating,
		City:     stringField(raw, "city"),
		Country:  stringField(raw, "country"),
	}

	if r, ok := coerceFloat(raw["rating"]); ok {
		loc.Rating = r
	}

	if r, ok := coerceFloat(raw["reviews"]); ok && r >= 0 && r <= math.MaxInt32 {
		loc.Reviews = int(math.Round(r))
	} else {
		loc.Reviews = fallbackReviews(n.random)
	}

	if d, ok := raw["description"].(string); ok && strings.TrimSpace(d) != "" {
		loc.Description = d
	} else if n.places != nil {
		loc.Description = n.places.Description(name)
	}

	loc.ImageURL = firstString(raw, "imageUrl", "image_url", "image")
	if loc.ImageURL == "" && n.images != nil {
		loc.ImageURL = n.images.URLFor(name)
	}

	return loc, nil
}

// rawPosition reads "coordinates" as a [lat, lng] pair; latitude/longitude style
// fields are accepted when "coordinates" is absent.
func rawPosition(raw models.RawLocation, name string) (models.Position, error) {
	invalid := func(v any) error {
		return &models.InvalidCoordinatesError{Name: name, Coordinates: v}
	}

	v, present := raw["coordinates"]
	if !present {
		for _, keys := range [][2]string{{"latitude", "longitude"}, {"lat", "lng"}, {"lat", "lon"}} {
			lat, okLat := raw[keys[0]]
			lng, okLng := raw[keys[1]]
			if okLat || okLng {
				v = []any{lat, lng}
				present = true
				break
			}
		}
	}
	if !present {
		return models.Position{}, invalid(nil)
	}

	var pair []any
	switch c := v.(type) {
	case []any:
		pair = c
	case []float64:
		pair = []any{}
		for _, f := range c {
			pair = append(pair, f)
		}
	case map[string]any:
		pair = []any{c["lat"], c["lng"]}
		if c["lng"] == nil {
			pair[1] = c["lon"]
		}
	default:
		return models.Position{}, invalid(v)
	}
	if len(pair) != 2 {
		return models.Position{}, invalid(v)
	}

	lat, okLat := toFloat(pair[0])
	lng, okLng := toFloat(pair[1])
	if !okLat || !okLng || !models.ValidCoordinates(lat, lng) {
		return models.Position{}, invalid(v)
	}
	return models.Position{Lat: lat, Lng: lng}, nil
}

func asObject(rec any) (models.RawLocation, bool) {
	switch r := rec.(type) {
	case map[string]any:
		return models.RawLocation(r), true
	case models.RawLocation:
		return r, true
	default:
		return nil, false
	}
}

// toFloat only accepts real numbers; coordinates given as strings are rejected.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// coerceFloat also parses numeric strings such as "4.7" or "12,345".
func coerceFloat(v any) (float64, bool) {
	if f, ok := toFloat(v); ok {
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func stringField(raw models.RawLocation, key string) string {
	s, _ := raw[key].(string)
	return strings.TrimSpace(s)
}

func firstString(raw models.RawLocation, keys ...string) string {
	for _, k := range keys {
		if s := stringField(raw, k); s != "" {
			return s
		}
	}
	return ""
}

func locationID(stamp int64, index int) string {
	return fmt.Sprintf("loc-%d-%d", stamp, index)
}

func failureReason(err error) string {
	var coordErr *models.InvalidCoordinatesError
	switch {
	case errors.As(err, &coordErr):
		return "coordinates"
	case errors.Is(err, models.ErrMissingName):
		return "name"
	default:
		return "shape"
	}
}

func recordSnippet(rec any) string {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Sprintf("%v", rec)
	}
	return models.Snippet(string(b), 160)
}
