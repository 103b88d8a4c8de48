package llmchat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/city"
	"github.com/FACorreiaa/loci-chatmap/internal/app/models"
	"github.com/FACorreiaa/loci-chatmap/internal/app/streaming"
)

// GenericErrorMessage is the only error text users ever see.
const GenericErrorMessage = "Something went wrong while finding places. Showing the assistant's reply only."

// EmitFunc delivers one event to the client. A non-nil error stops the stream.
type EmitFunc func(streaming.StreamEvent) error

type ChatService interface {
	Available() bool
	StreamChat(ctx context.Context, req models.ChatRequest, emit EmitFunc) error
}

type ChatServiceImpl struct {
	client    ChatClient
	streams   *streaming.Manager
	cities    city.Service
	processor *StreamProcessor
	genConfig *genai.GenerateContentConfig
	llmLogger *LLMLogger
	model     string
	logger    *zap.Logger
}

// NewChatService wires the chat flow. client may be nil, in which case
// StreamChat fails with ErrChatUnavailable.
func NewChatService(client ChatClient, streams *streaming.Manager, cities city.Service, logger *zap.Logger) *ChatServiceImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatServiceImpl{
		client:    client,
		streams:   streams,
		cities:    cities,
		processor: NewStreamProcessor(logger),
		genConfig: defaultGenerateConfig(),
		llmLogger: NewLLMLogger(logger),
		model:     modelName(client),
		logger:    logger,
	}
}

func (s *ChatServiceImpl) Available() bool { return s.client != nil }

// StreamChat asks the model and streams text, location and weather events as the
// reply grows. It ends with a complete event, or with an error event carrying
// GenericErrorMessage. A stream superseded by a newer message in the same
// conversation ends silently with models.ErrSessionSuperseded.
func (s *ChatServiceImpl) StreamChat(ctx context.Context, req models.ChatRequest, emit EmitFunc) error {
	ctx, span := otel.Tracer("LlmChatService").Start(ctx, "StreamChat")
	defer span.End()

	l := s.logger.With(zap.String("method", "StreamChat"), zap.String("conversation_id", req.ConversationID))

	if s.client == nil {
		span.SetStatus(codes.Error, "chat unavailable")
		return ErrChatUnavailable
	}

	cityName := strings.TrimSpace(req.CityName)
	if cityName != "" {
		if set, err := s.cities.SetCurrent(ctx, cityName); err == nil {
			cityName = set
		}
	} else {
		cityName = s.cities.Current(ctx)
	}

	session := s.streams.Begin(ctx, req.ConversationID)
	defer s.streams.End(session)
	span.SetAttributes(
		attribute.String("session.id", session.ID),
		attribute.String("conversation.id", session.ConversationID),
		attribute.String("city", cityName),
	)
	l = l.With(zap.String("session_id", session.ID))
	sctx := session.Context()

	prompt := BuildPrompt(req.Message, cityName)
	interaction := Interaction{
		SessionID:      session.ID,
		ConversationID: session.ConversationID,
		Model:          s.model,
		City:           cityName,
		Prompt:         prompt,
		Status:         StatusCompleted,
	}
	start := time.Now()
	defer func() {
		interaction.Latency = time.Since(start)
		interaction.ResponseChars = len(session.Accumulated())
		s.llmLogger.LogInteraction(context.WithoutCancel(ctx), interaction)
	}()

	responses, err := s.client.GenerateContentStream(sctx, prompt, s.genConfig)
	if err != nil {
		interaction.Status, interaction.Err = StatusFailed, err
		return s.fail(span, l, session, 0, emit, fmt.Errorf("failed to start model stream: %w", err))
	}

	var (
		last    streaming.Update
		tracker emitTracker
	)
	chunks := s.processor.TextPartIterator(sctx, recordUsage(responses, &interaction), "chat response")
	err = s.processor.StreamWithCallback(sctx, chunks, func(delta string) error {
		interaction.Chunks++
		u, err := session.Feed(delta)
		if errors.Is(err, streaming.ErrStaleUpdate) {
			return nil
		}
		if err != nil {
			return err
		}
		last = u
		return s.emitUpdate(sctx, session, u, &tracker, emit)
	})

	switch {
	case err == nil:
	case ctx.Err() != nil:
		interaction.Status = StatusDisconnected
		l.Info("Client went away during stream", zap.Error(ctx.Err()))
		return ctx.Err()
	case errors.Is(err, models.ErrSessionSuperseded), errors.Is(err, context.Canceled):
		interaction.Status = StatusSuperseded
		l.Info("Stream superseded by a newer message")
		span.SetStatus(codes.Ok, "superseded")
		return models.ErrSessionSuperseded
	default:
		interaction.Status, interaction.Err = StatusFailed, err
		return s.fail(span, l, session, last.Seq, emit, err)
	}

	current := s.cities.Current(sctx)
	if err := emit(streaming.NewCompleteEvent(session, last, current)); err != nil {
		interaction.Status = StatusDisconnected
		return err
	}

	l.Info("Stream completed",
		zap.Uint64("chunks", last.Seq),
		zap.String("source", string(last.Result.Source)),
		zap.Int("locations", len(last.Result.Locations)))
	span.SetAttributes(attribute.Int("locations.count", len(last.Result.Locations)))
	span.SetStatus(codes.Ok, "stream completed")
	return nil
}

func (s *ChatServiceImpl) fail(span trace.Span, l *zap.Logger, session *streaming.Session, seq uint64, emit EmitFunc, err error) error {
	l.Error("Chat stream failed", zap.Error(err))
	span.RecordError(err)
	span.SetStatus(codes.Error, "chat stream failed")
	if emitErr := emit(streaming.NewErrorEvent(session, seq, GenericErrorMessage)); emitErr != nil {
		l.Debug("Could not deliver error event", zap.Error(emitErr))
	}
	return err
}

// emitTracker remembers what the client already has so only changes are sent.
type emitTracker struct {
	text    string
	batch   string
	weather string
}

func (s *ChatServiceImpl) emitUpdate(ctx context.Context, session *streaming.Session, u streaming.Update, t *emitTracker, emit EmitFunc) error {
	res := u.Result

	if res.Text != t.text {
		t.text = res.Text
		if err := emit(streaming.NewTextEvent(session, u)); err != nil {
			return err
		}
	}

	if key := batchKey(res); key != t.batch {
		t.batch = key
		if len(res.Locations) > 0 {
			s.cities.ObserveBatch(ctx, res)
		}
		if err := emit(streaming.NewLocationsEvent(session, u)); err != nil {
			return err
		}
	}

	if res.WeatherLocation != "" && res.WeatherLocation != t.weather {
		t.weather = res.WeatherLocation
		target := s.cities.ResolveWeatherTarget(ctx, res.WeatherLocation)
		if err := emit(streaming.NewWeatherEvent(session, u, target)); err != nil {
			return err
		}
	}
	return nil
}

// batchKey identifies a batch by content. Ids change on every pass, so they are left out.
func batchKey(res models.ExtractionResult) string {
	if len(res.Locations) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(res.Source))
	for _, loc := range res.Locations {
		fmt.Fprintf(&b, "|%s@%.6f,%.6f", loc.Name, loc.Position.Lat, loc.Position.Lng)
	}
	return b.String()
}
