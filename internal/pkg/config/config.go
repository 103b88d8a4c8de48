package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

type LLMConfig struct {
	APIKey string
	// Model overrides the SDK default model when set.
	Model string
}

type ObservabilityConfig struct {
	ServiceName  string
	MetricsAddr  string
	PprofAddr    string
	OTLPEndpoint string
}

type ExtractionConfig struct {
	// RandomSeed seeds fallback ratings and review counts. Zero means random.
	RandomSeed       uint64
	SeedCities       []string
	ImageURLTemplate string
	GeocodeMaxKm     float64
	GeocodeCacheTTL  time.Duration
	StreamMaxAge     time.Duration
}

// RateLimitConfig bounds chat requests per client. Requests <= 0 disables it.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type Config struct {
	ServerPort    string
	LogLevel      zapcore.Level
	LLM           LLMConfig
	Observability ObservabilityConfig
	Extraction    ExtractionConfig
	RateLimit     RateLimitConfig
}

func Load() (*Config, error) {
	seed, err := strconv.ParseUint(getEnvOrDefault("RANDOM_SEED", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RANDOM_SEED: %w", err)
	}

	maxKm, err := strconv.ParseFloat(getEnvOrDefault("GEOCODE_MAX_KM", "75"), 64)
	if err != nil || maxKm <= 0 {
		return nil, fmt.Errorf("invalid GEOCODE_MAX_KM %q", os.Getenv("GEOCODE_MAX_KM"))
	}

	cacheTTL, err := time.ParseDuration(getEnvOrDefault("GEOCODE_CACHE_TTL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid GEOCODE_CACHE_TTL: %w", err)
	}

	streamMaxAge, err := time.ParseDuration(getEnvOrDefault("STREAM_MAX_AGE", "30m"))
	if err != nil {
		return nil, fmt.Errorf("invalid STREAM_MAX_AGE: %w", err)
	}

	rateRequests, err := strconv.Atoi(getEnvOrDefault("CHAT_RATE_LIMIT", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid CHAT_RATE_LIMIT: %w", err)
	}

	rateWindow, err := time.ParseDuration(getEnvOrDefault("CHAT_RATE_WINDOW", "1m"))
	if err != nil || rateWindow <= 0 {
		return nil, fmt.Errorf("invalid CHAT_RATE_WINDOW %q", os.Getenv("CHAT_RATE_WINDOW"))
	}

	level, err := zapcore.ParseLevel(getEnvOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		ServerPort: getEnvOrDefault("SERVER_PORT", "8091"),
		LogLevel:   level,
		LLM: LLMConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  os.Getenv("LLM_MODEL"),
		},
		Observability: ObservabilityConfig{
			ServiceName:  getEnvOrDefault("SERVICE_NAME", "loci-chatmap"),
			MetricsAddr:  getEnvOrDefault("METRICS_ADDR", ":9092"),
			PprofAddr:    getEnvOrDefault("PPROF_ADDR", ":6060"),
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_ENDPOINT"),
		},
		Extraction: ExtractionConfig{
			RandomSeed:       seed,
			SeedCities:       splitList(os.Getenv("SEED_CITIES")),
			ImageURLTemplate: os.Getenv("IMAGE_URL_TEMPLATE"),
			GeocodeMaxKm:     maxKm,
			GeocodeCacheTTL:  cacheTTL,
			StreamMaxAge:     streamMaxAge,
		},
		RateLimit: RateLimitConfig{
			Requests: rateRequests,
			Window:   rateWindow,
		},
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
