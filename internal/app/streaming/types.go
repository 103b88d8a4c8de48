package streaming

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/loci-chatmap/internal/app/models"
)

// Event types sent to the chat UI.
const (
	EventTypeText      = "text"
	EventTypeLocations = "locations"
	EventTypeWeather   = "weather"
	EventTypeComplete  = "complete"
	EventTypeError     = "error"
)

// StreamEvent is one server-sent event of a chat stream.
type StreamEvent struct {
	Type           string    `json:"type"`
	SessionID      string    `json:"session_id"`
	ConversationID string    `json:"conversation_id"`
	Seq            uint64    `json:"seq"`
	Timestamp      time.Time `json:"timestamp"`
	EventID        string    `json:"event_id"`
	IsFinal        bool      `json:"is_final,omitempty"`

	Text            string            `json:"text,omitempty"`
	Locations       []models.Location `json:"locations,omitempty"`
	Source          string            `json:"source,omitempty"`
	WeatherLocation string            `json:"weather_location,omitempty"`
	City            string            `json:"city,omitempty"`

	// Error is a message safe to show to the user, never raw error text.
	Error string `json:"error,omitempty"`
}

func (s *Session) newEvent(eventType string, seq uint64) StreamEvent {
	return StreamEvent{
		Type:           eventType,
		SessionID:      s.ID,
		ConversationID: s.ConversationID,
		Seq:            seq,
		Timestamp:      s.clock.Now(),
		EventID:        uuid.New().String(),
	}
}

// NewTextEvent carries the prose extracted so far.
func NewTextEvent(s *Session, u Update) StreamEvent {
	ev := s.newEvent(EventTypeText, u.Seq)
	ev.Text = u.Result.Text
	return ev
}

// NewLocationsEvent carries the full replacement batch. An absent list means empty.
func NewLocationsEvent(s *Session, u Update) StreamEvent {
	ev := s.newEvent(EventTypeLocations, u.Seq)
	ev.Locations = u.Result.Locations
	ev.Source = string(u.Result.Source)
	ev.City = u.Result.City
	return ev
}

// NewWeatherEvent reports a weather-intent query resolved to a city.
func NewWeatherEvent(s *Session, u Update, city string) StreamEvent {
	ev := s.newEvent(EventTypeWeather, u.Seq)
	ev.WeatherLocation = u.Result.WeatherLocation
	ev.City = city
	return ev
}

// NewCompleteEvent closes a stream that finished normally.
func NewCompleteEvent(s *Session, u Update, city string) StreamEvent {
	ev := s.newEvent(EventTypeComplete, u.Seq)
	ev.Text = u.Result.Text
	ev.City = city
	ev.IsFinal = true
	return ev
}

// NewErrorEvent closes a stream that failed. message is shown to the user as is.
func NewErrorEvent(s *Session, seq uint64, message string) StreamEvent {
	ev := s.newEvent(EventTypeError, seq)
	ev.Error = message
	ev.IsFinal = true
	return ev
}

// SendEventSafe sends event unless the timeout expires or ctx is done first.
func SendEventSafe(ctx context.Context, ch chan<- StreamEvent, event StreamEvent, timeout time.Duration) bool {
	select {
	case ch <- event:
		return true
	case <-time.After(timeout):
		return false
	case <-ctx.Done():
		return false
	}
}
