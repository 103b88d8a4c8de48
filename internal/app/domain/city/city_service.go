package city

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/geocode"
	"github.com/FACorreiaa/loci-chatmap/internal/app/models"
)

// deicticTargets are weather targets that refer back to the current city.
var deicticTargets = map[string]bool{
	"there": true, "here": true, "this city": true, "the city": true, "that city": true,
}

type Service interface {
	Current(ctx context.Context) string
	SetCurrent(ctx context.Context, name string) (string, error)
	Select(ctx context.Context, loc models.SelectedLocation) (string, error)
	ObserveBatch(ctx context.Context, res models.ExtractionResult) string
	ResolveWeatherTarget(ctx context.Context, name string) string
}

type ServiceImpl struct {
	logger   *zap.Logger
	register *Register
	geocoder geocode.Geocoder
}

func NewCityService(register *Register, geocoder geocode.Geocoder, logger *zap.Logger) *ServiceImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServiceImpl{
		logger:   logger,
		register: register,
		geocoder: geocoder,
	}
}

// Current returns the city weather queries default to.
func (s *ServiceImpl) Current(ctx context.Context) string {
	_, span := otel.Tracer("CityService").Start(ctx, "Current")
	defer span.End()

	city := s.register.Get()
	span.SetAttributes(attribute.String("city.current", city))
	return city
}

// SetCurrent overwrites the current city.
func (s *ServiceImpl) SetCurrent(ctx context.Context, name string) (string, error) {
	_, span := otel.Tracer("CityService").Start(ctx, "SetCurrent")
	defer span.End()

	if strings.TrimSpace(name) == "" {
		err := fmt.Errorf("%w: city name is empty", models.ErrValidation)
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty city")
		return s.register.Get(), err
	}

	city := s.register.Set(name)
	s.logger.Info("Current city set", zap.String("method", "SetCurrent"), zap.String("city", city))
	span.SetStatus(codes.Ok, "city set")
	return city, nil
}

// Select records a location the user picked on the map. When the location carries
// no city the coordinates are reverse geocoded; on failure the register is left as is.
func (s *ServiceImpl) Select(ctx context.Context, loc models.SelectedLocation) (string, error) {
	ctx, span := otel.Tracer("CityService").Start(ctx, "Select")
	defer span.End()

	l := s.logger.With(zap.String("method", "Select"), zap.String("location", loc.Name))

	if loc.City != "" {
		city := s.register.Set(loc.City)
		l.Info("City updated from selected location", zap.String("city", city))
		span.SetAttributes(attribute.String("city.current", city), attribute.Bool("geocoded", false))
		span.SetStatus(codes.Ok, "city selected")
		return city, nil
	}

	if s.geocoder == nil {
		err := fmt.Errorf("%w: selected location has no city", models.ErrValidation)
		span.SetStatus(codes.Error, "no city and no geocoder")
		return s.register.Get(), err
	}

	place, err := s.geocoder.ReverseGeocode(ctx, loc.Lat, loc.Lng)
	if err != nil {
		l.Warn("Reverse geocoding failed, keeping current city", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "reverse geocode failed")
		return s.register.Get(), fmt.Errorf("failed to resolve city for %q: %w", loc.Name, err)
	}

	city := s.register.Set(place.Name)
	l.Info("City updated from reverse geocode", zap.String("city", city))
	span.SetAttributes(attribute.String("city.current", city), attribute.Bool("geocoded", true))
	span.SetStatus(codes.Ok, "city selected")
	return city, nil
}

// ObserveBatch updates the register from a non-empty extracted batch that names a city.
// It returns the current city after the update.
func (s *ServiceImpl) ObserveBatch(ctx context.Context, res models.ExtractionResult) string {
	_, span := otel.Tracer("CityService").Start(ctx, "ObserveBatch")
	defer span.End()

	if len(res.Locations) == 0 || res.City == "" {
		return s.register.Get()
	}
	city := s.register.Set(res.City)
	span.SetAttributes(attribute.String("city.current", city))
	return city
}

// ResolveWeatherTarget maps a weather target to a concrete city name. Empty and
// deictic targets ("there", "this city") resolve to the current city.
func (s *ServiceImpl) ResolveWeatherTarget(ctx context.Context, name string) string {
	_, span := otel.Tracer("CityService").Start(ctx, "ResolveWeatherTarget")
	defer span.End()

	target := strings.ToLower(strings.Join(strings.Fields(name), " "))
	if target == "" || deicticTargets[target] {
		city := s.register.Get()
		span.SetAttributes(attribute.Bool("deictic", true), attribute.String("city.target", city))
		return city
	}
	city := normalizeCity(name)
	span.SetAttributes(attribute.Bool("deictic", false), attribute.String("city.target", city))
	return city
}
