package llmchat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"iter"
	"strings"
	"time"

	generativeAI "github.com/FACorreiaa/go-genai-sdk/lib"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/FACorreiaa/loci-chatmap/internal/app/observability/metrics"
)

// Interaction outcomes.
const (
	StatusCompleted    = "completed"
	StatusSuperseded   = "superseded"
	StatusDisconnected = "disconnected"
	StatusFailed       = "failed"
)

// Interaction describes one streamed model reply.
type Interaction struct {
	SessionID      string
	ConversationID string
	Model          string
	City           string
	Prompt         string

	ResponseChars    int
	Chunks           int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int

	Latency time.Duration
	Status  string
	Err     error
}

// LLMLogger records model interactions as structured logs, span events and metrics.
// Prompts are logged as a hash only.
type LLMLogger struct {
	logger *zap.Logger
}

func NewLLMLogger(logger *zap.Logger) *LLMLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMLogger{logger: logger}
}

// Pricing for Gemini models in USD per million tokens.
var geminiPricing = map[string]struct {
	InputPer1M  float64
	OutputPer1M float64
}{
	"gemini-1.5-pro":   {InputPer1M: 3.50, OutputPer1M: 10.50},
	"gemini-1.5-flash": {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-2.0-flash": {InputPer1M: 0.10, OutputPer1M: 0.40},
	"gemini-2.5-flash": {InputPer1M: 0.30, OutputPer1M: 2.50},
	"gemini-2.5-pro":   {InputPer1M: 1.25, OutputPer1M: 10.00},
}

// CalculateCost estimates the cost in USD of an interaction. Unknown models cost 0.
func CalculateCost(modelName string, promptTokens, completionTokens int) float64 {
	normalized := strings.ToLower(modelName)
	best := ""
	for key := range geminiPricing {
		if strings.Contains(normalized, key) && len(key) > len(best) {
			best = key
		}
	}
	if best == "" {
		return 0
	}
	p := geminiPricing[best]
	return float64(promptTokens)/1_000_000*p.InputPer1M + float64(completionTokens)/1_000_000*p.OutputPer1M
}

// HashPrompt creates a SHA256 hash of the prompt for anonymized tracking
func HashPrompt(prompt string) string {
	hash := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(hash[:])
}

// LogInteraction writes one log line for in and records its metrics.
func (l *LLMLogger) LogInteraction(ctx context.Context, in Interaction) {
	_, span := otel.Tracer("LLMLogger").Start(ctx, "LogInteraction")
	defer span.End()

	cost := CalculateCost(in.Model, in.PromptTokens, in.CompletionTokens)
	span.SetAttributes(
		attribute.String("model", in.Model),
		attribute.String("status", in.Status),
		attribute.Int("tokens.prompt", in.PromptTokens),
		attribute.Int("tokens.completion", in.CompletionTokens),
		attribute.Int64("latency_ms", in.Latency.Milliseconds()),
	)

	m := metrics.Get()
	m.LLMRequestDuration.Record(ctx, in.Latency.Seconds(),
		metric.WithAttributes(attribute.String("status", in.Status)))
	if in.PromptTokens > 0 {
		m.LLMTokensTotal.Add(ctx, int64(in.PromptTokens), metric.WithAttributes(attribute.String("kind", "prompt")))
	}
	if in.CompletionTokens > 0 {
		m.LLMTokensTotal.Add(ctx, int64(in.CompletionTokens), metric.WithAttributes(attribute.String("kind", "completion")))
	}

	fields := []zap.Field{
		zap.String("session_id", in.SessionID),
		zap.String("conversation_id", in.ConversationID),
		zap.String("model", in.Model),
		zap.String("city", in.City),
		zap.String("prompt_hash", HashPrompt(in.Prompt)),
		zap.Int("response_chars", in.ResponseChars),
		zap.Int("chunks", in.Chunks),
		zap.Int("prompt_tokens", in.PromptTokens),
		zap.Int("completion_tokens", in.CompletionTokens),
		zap.Int("total_tokens", in.TotalTokens),
		zap.Float64("cost_usd", cost),
		zap.Duration("latency", in.Latency),
		zap.String("status", in.Status),
	}
	if in.Status == StatusFailed {
		l.logger.Warn("LLM interaction failed", append(fields, zap.Error(in.Err))...)
		return
	}
	l.logger.Info("LLM interaction", fields...)
}

// recordUsage passes responses through and copies the latest usage metadata into in.
// The API reports cumulative counts, so the last report wins.
func recordUsage(responses iter.Seq2[*genai.GenerateContentResponse, error], in *Interaction) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for resp, err := range responses {
			if resp != nil && resp.UsageMetadata != nil {
				u := resp.UsageMetadata
				in.PromptTokens = int(u.PromptTokenCount)
				in.CompletionTokens = int(u.CandidatesTokenCount)
				in.TotalTokens = int(u.TotalTokenCount)
			}
			if !yield(resp, err) {
				return
			}
		}
	}
}

// modelName reports the model behind client for logging.
func modelName(client ChatClient) string {
	switch c := client.(type) {
	case *GeminiClient:
		return c.model
	case *generativeAI.LLMChatClient:
		return c.ModelName
	default:
		return "unknown"
	}
}
