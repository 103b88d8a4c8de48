package models

// StreamParseResult is the splitter's view of an accumulated reply.
// Empty JSONContent or WeatherLocation means absent; at most one of them is set.
type StreamParseResult struct {
	TextContent     string `json:"text_content"`
	JSONContent     string `json:"json_content,omitempty"`
	WeatherLocation string `json:"weather_location,omitempty"`
}

// HasJSON reports whether a balanced JSON block was found.
func (r StreamParseResult) HasJSON() bool { return r.JSONContent != "" }

// IsWeather reports whether the reply is a weather-intent query.
func (r StreamParseResult) IsWeather() bool { return r.WeatherLocation != "" }

// ExtractionSource records which path produced a batch.
type ExtractionSource string

const (
	SourceNone    ExtractionSource = "none"
	SourceJSON    ExtractionSource = "json"
	SourceText    ExtractionSource = "text"
	SourceWeather ExtractionSource = "weather"
)

// ExtractionResult is the outcome of one extraction pass over accumulated text.
// Locations is a fresh slice per pass and replaces whatever the UI showed before.
type ExtractionResult struct {
	Text            string           `json:"text"`
	Locations       []Location       `json:"locations"`
	WeatherLocation string           `json:"weather_location,omitempty"`
	Source          ExtractionSource `json:"source"`
	City            string           `json:"city,omitempty"`
	Country         string           `json:"country,omitempty"`
}

// ChatRequest is the body of a chat stream request.
type ChatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message" binding:"required"`
	CityName       string `json:"city_name,omitempty"`
}
