package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	ExtractionRunsTotal      metric.Int64Counter
	ExtractionDuration       metric.Float64Histogram
	LocationsExtractedTotal  metric.Int64Counter
	ValidationFailuresTotal  metric.Int64Counter
	MalformedJSONTotal       metric.Int64Counter
	StreamChunksTotal        metric.Int64Counter
	StreamSessionsSuperseded metric.Int64Counter
	ActiveStreamsGauge       metric.Int64UpDownCounter

	LLMTokensTotal     metric.Int64Counter
	LLMRequestDuration metric.Float64Histogram
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments ONLY ONCE.
// It gets the Meter from the globally configured MeterProvider, so it must run
// after the providers are installed to export anything.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("loci-chatmap")
		var err error
		m := &AppMetrics{}

		m.HTTPRequestsTotal, err = meter.Int64Counter(
			"http_requests_total",
			metric.WithDescription("Total number of HTTP requests completed"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create http_requests_total: %v", err)
		}

		m.HTTPRequestDuration, err = meter.Float64Histogram(
			"http_request_duration_seconds",
			metric.WithDescription("Duration of HTTP requests in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create http_request_duration_seconds: %v", err)
		}

		m.ExtractionRunsTotal, err = meter.Int64Counter(
			"extraction_runs_total",
			metric.WithDescription("Extraction passes over streamed replies, by source"),
			metric.WithUnit("{run}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create extraction_runs_total: %v", err)
		}

		m.ExtractionDuration, err = meter.Float64Histogram(
			"extraction_duration_seconds",
			metric.WithDescription("Duration of a single extraction pass in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create extraction_duration_seconds: %v", err)
		}

		m.LocationsExtractedTotal, err = meter.Int64Counter(
			"locations_extracted_total",
			metric.WithDescription("Locations produced by extraction passes"),
			metric.WithUnit("{location}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create locations_extracted_total: %v", err)
		}

		m.ValidationFailuresTotal, err = meter.Int64Counter(
			"location_validation_failures_total",
			metric.WithDescription("Location records rejected by the normalizer"),
			metric.WithUnit("{record}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create location_validation_failures_total: %v", err)
		}

		m.MalformedJSONTotal, err = meter.Int64Counter(
			"malformed_json_total",
			metric.WithDescription("JSON blocks that failed to decode"),
			metric.WithUnit("{block}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create malformed_json_total: %v", err)
		}

		m.StreamChunksTotal, err = meter.Int64Counter(
			"stream_chunks_total",
			metric.WithDescription("Delta chunks received from the model stream"),
			metric.WithUnit("{chunk}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create stream_chunks_total: %v", err)
		}

		m.StreamSessionsSuperseded, err = meter.Int64Counter(
			"stream_sessions_superseded_total",
			metric.WithDescription("Stream sessions cancelled because a newer message started"),
			metric.WithUnit("{session}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create stream_sessions_superseded_total: %v", err)
		}

		m.ActiveStreamsGauge, err = meter.Int64UpDownCounter(
			"active_streams_current",
			metric.WithDescription("Chat streams currently in flight"),
			metric.WithUnit("{stream}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create active_streams_current: %v", err)
		}

		m.LLMTokensTotal, err = meter.Int64Counter(
			"llm_tokens_total",
			metric.WithDescription("Tokens reported by the model, by kind"),
			metric.WithUnit("{token}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create llm_tokens_total: %v", err)
		}

		m.LLMRequestDuration, err = meter.Float64Histogram(
			"llm_request_duration_seconds",
			metric.WithDescription("Duration of a streamed model reply, by status"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create llm_request_duration_seconds: %v", err)
		}

		appMetrics = m
	})
}

// Get returns the global AppMetrics, initializing it against the current
// MeterProvider (a no-op one in tests) on first use.
func Get() *AppMetrics {
	InitAppMetrics()
	return appMetrics
}
