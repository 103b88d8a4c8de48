package models

import (
	"errors"
	"fmt"
	"strings"
)

// Domain specific errors for location extraction.
var (
	ErrNoLocationsFound  = errors.New("no locations found")
	ErrMissingName       = errors.New("location name is missing or empty")
	ErrMissingJSON       = errors.New("no JSON block found")
	ErrValidation        = errors.New("validation failed")
	ErrSessionSuperseded = errors.New("stream session superseded by a newer message")
)

// InvalidCoordinatesError reports a location whose coordinates are not a pair of
// finite, in-range numbers.
type InvalidCoordinatesError struct {
	Name        string
	Coordinates any
}

func (e *InvalidCoordinatesError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("invalid coordinates %v", e.Coordinates)
	}
	return fmt.Sprintf("invalid coordinates %v for location %q", e.Coordinates, e.Name)
}

// LocationValidationError aborts a strict batch. It names the offending record
// and wraps the reason (an *InvalidCoordinatesError or ErrMissingName).
type LocationValidationError struct {
	Name  string
	Index int
	Err   error
}

func (e *LocationValidationError) Error() string {
	name := e.Name
	if name == "" {
		name = "<unnamed>"
	}
	return fmt.Sprintf("location %d (%s) rejected: %v", e.Index, name, e.Err)
}

func (e *LocationValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}

// MalformedJSONError means a JSON-looking block was found but could not be decoded.
type MalformedJSONError struct {
	Snippet string
	Err     error
}

func (e *MalformedJSONError) Error() string {
	return fmt.Sprintf("malformed locations JSON near %q: %v", e.Snippet, e.Err)
}

func (e *MalformedJSONError) Unwrap() error { return e.Err }

// Snippet shortens s for log output.
func Snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func trimSpace(s string) string {
	return strings.TrimSpace(s)
}
