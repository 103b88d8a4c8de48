package models

import (
	"math"
)

// DefaultRating is used when the source record carries no usable rating.
const DefaultRating = 4.5

// Review count bounds for generated fallbacks, [min, max).
const (
	MinFallbackReviews = 10000
	MaxFallbackReviews = 50000
)

// Position is a (latitude, longitude) pair in decimal degrees.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NewPosition validates lat/lng and returns a Position.
// Latitude must be within [-90, 90], longitude within [-180, 180], both finite.
func NewPosition(lat, lng float64) (Position, error) {
	if !ValidCoordinates(lat, lng) {
		return Position{}, &InvalidCoordinatesError{Coordinates: []float64{lat, lng}}
	}
	return Position{Lat: lat, Lng: lng}, nil
}

// ValidCoordinates reports whether lat/lng are finite and in range.
func ValidCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Location is a validated place recommendation ready for the map view.
// Unresolved locations came from prose with a name the lookup table does not know;
// their Position is the zero value and must not be plotted.
type Location struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Position    Position `json:"position"`
	Rating      float64  `json:"rating"`
	Reviews     int      `json:"reviews"`
	Description string   `json:"description"`
	ImageURL    string   `json:"image_url"`
	City        string   `json:"city,omitempty"`
	Country     string   `json:"country,omitempty"`
	Unresolved  bool     `json:"unresolved,omitempty"`
}

// Mappable reports whether the location can be placed on the map.
func (l Location) Mappable() bool {
	return !l.Unresolved
}

// RawLocation is an untrusted, loosely typed location record as emitted by the model.
type RawLocation map[string]any

// Name returns the trimmed name field, or "" when it is missing or not a string.
func (r RawLocation) Name() string {
	s, _ := r["name"].(string)
	return trimSpace(s)
}

// SelectedLocation is what the UI posts when a user clicks a location card or marker.
type SelectedLocation struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	City    string  `json:"city,omitempty"`
	Country string  `json:"country,omitempty"`
}
