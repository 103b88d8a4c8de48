// Package geocode resolves coordinates to the city they belong to.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/lookup"
	"github.com/FACorreiaa/loci-chatmap/internal/app/models"
)

// ErrNotFound is returned when no known city lies close enough to the coordinates.
var ErrNotFound = errors.New("no city near coordinates")

// DefaultMaxKm is the search radius used when none is configured.
const DefaultMaxKm = 75.0

// Geocoder resolves a coordinate pair to a city entry.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (lookup.Place, error)
}

// CityFinder is the part of the lookup table the table geocoder needs.
type CityFinder interface {
	NearestCity(pos models.Position, maxKm float64) (lookup.Place, bool)
}

// TableGeocoder answers from the static lookup table.
type TableGeocoder struct {
	cities CityFinder
	maxKm  float64
}

// NewTableGeocoder builds a geocoder over cities. A non-positive maxKm uses DefaultMaxKm.
func NewTableGeocoder(cities CityFinder, maxKm float64) *TableGeocoder {
	if maxKm <= 0 {
		maxKm = DefaultMaxKm
	}
	return &TableGeocoder{cities: cities, maxKm: maxKm}
}

func (g *TableGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (lookup.Place, error) {
	if err := ctx.Err(); err != nil {
		return lookup.Place{}, err
	}
	pos, err := models.NewPosition(lat, lng)
	if err != nil {
		return lookup.Place{}, err
	}
	city, ok := g.cities.NearestCity(pos, g.maxKm)
	if !ok {
		return lookup.Place{}, fmt.Errorf("%w: %.4f,%.4f", ErrNotFound, lat, lng)
	}
	return city, nil
}

// CachedGeocoder wraps a Geocoder with a TTL cache. Concurrent lookups of the
// same key share one call to the inner geocoder.
type CachedGeocoder struct {
	inner  Geocoder
	cache  *cache.Cache
	group  singleflight.Group
	logger *zap.Logger
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner Geocoder, ttl time.Duration, logger *zap.Logger) *CachedGeocoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedGeocoder{
		inner:  inner,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger,
	}
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (lookup.Place, error) {
	ctx, span := otel.Tracer("Geocoder").Start(ctx, "ReverseGeocode")
	defer span.End()

	key := fmt.Sprintf("rev:%.5f,%.5f", lat, lng)
	if v, ok := c.cache.Get(key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return v.(lookup.Place), nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	v, err, shared := c.group.Do(key, func() (any, error) {
		place, err := c.inner.ReverseGeocode(ctx, lat, lng)
		if err != nil {
			return lookup.Place{}, err
		}
		// Misses are not cached so a later table reload can answer them.
		c.cache.SetDefault(key, place)
		return place, nil
	})
	if err != nil {
		c.logger.Debug("Reverse geocode failed", zap.String("key", key), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "reverse geocode failed")
		return lookup.Place{}, err
	}

	span.SetAttributes(attribute.Bool("singleflight.shared", shared))
	return v.(lookup.Place), nil
}
