package llmchat

import (
	"context"
	"errors"
	"iter"

	generativeAI "github.com/FACorreiaa/go-genai-sdk/lib"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/FACorreiaa/loci-chatmap/internal/pkg/config"
)

// ErrChatUnavailable means no model client is configured.
var ErrChatUnavailable = errors.New("chat model is not configured")

// ChatClient streams a model reply for a prompt.
type ChatClient interface {
	GenerateContentStream(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (iter.Seq2[*genai.GenerateContentResponse, error], error)
}

var _ ChatClient = (*generativeAI.LLMChatClient)(nil)

// GeminiClient talks to the Gemini API directly so the model can be chosen per deployment.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a client for model.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	ctx, span := otel.Tracer("GeminiClient").Start(ctx, "NewGeminiClient")
	defer span.End()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create Gemini client")
		return nil, err
	}
	span.SetStatus(codes.Ok, "Gemini client created")
	return &GeminiClient{client: client, model: model}, nil
}

func (g *GeminiClient) GenerateContentStream(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (iter.Seq2[*genai.GenerateContentResponse, error], error) {
	_, span := otel.Tracer("GeminiClient").Start(ctx, "GenerateContentStream")
	defer span.End()
	span.SetAttributes(attribute.String("model", g.model))

	return g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(prompt), config), nil
}

// NewChatClient picks the client for cfg. Without an API key it returns
// ErrChatUnavailable so the service can still serve extraction endpoints.
func NewChatClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (ChatClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrChatUnavailable
	}
	if cfg.Model == "" {
		logger.Info("Using default generative AI client")
		client, err := generativeAI.NewLLMChatClient(ctx, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	logger.Info("Using Gemini client", zap.String("model", cfg.Model))
	client, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		return nil, err
	}
	return client, nil
}
