package llmchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/city"
	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/extract"
	"github.com/FACorreiaa/loci-chatmap/internal/app/models"
	"github.com/FACorreiaa/loci-chatmap/internal/app/streaming"
)

const sendTimeout = 5 * time.Second

var errSlowClient = errors.New("client is not reading events")

// Extractor is the one-shot extraction used by the extract endpoint.
type Extractor interface {
	Extract(ctx context.Context, text string) models.ExtractionResult
	ExtractStrict(ctx context.Context, text string) ([]models.Location, error)
	Normalizer() *extract.Normalizer
}

type ChatHandlers struct {
	chatService ChatService
	extractor   Extractor
	cities      city.Service
	streams     *streaming.Manager
	logger      *zap.Logger
}

func NewChatHandlers(chatService ChatService, extractor Extractor, cities city.Service, streams *streaming.Manager, logger *zap.Logger) *ChatHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandlers{
		chatService: chatService,
		extractor:   extractor,
		cities:      cities,
		streams:     streams,
		logger:      logger,
	}
}

// HandleChatStream streams the assistant reply as server-sent events.
func (h *ChatHandlers) HandleChatStream(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if !h.chatService.Available() {
		h.logger.Warn("Chat stream requested but no model is configured")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": GenericErrorMessage})
		return
	}

	h.logger.Info("Chat stream request received",
		zap.String("ip", c.ClientIP()),
		zap.String("conversation_id", req.ConversationID))

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		h.logger.Error("Response writer does not support flushing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": GenericErrorMessage})
		return
	}

	ctx := c.Request.Context()
	eventCh := make(chan streaming.StreamEvent, 64)

	go func() {
		defer close(eventCh)
		err := h.chatService.StreamChat(ctx, req, func(ev streaming.StreamEvent) error {
			if streaming.SendEventSafe(ctx, eventCh, ev, sendTimeout) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errSlowClient
		})
		if err != nil && !errors.Is(err, models.ErrSessionSuperseded) && !errors.Is(err, context.Canceled) {
			h.logger.Warn("Chat stream ended with error", zap.Error(err))
		}
	}()

	for {
		select {
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if err := writeSSE(c.Writer, event); err != nil {
				h.logger.Error("Failed to write event", zap.Error(err))
				return
			}
			flusher.Flush()
			if event.IsFinal {
				return
			}
		case <-ctx.Done():
			h.logger.Info("Client disconnected")
			return
		}
	}
}

func writeSSE(w io.Writer, event streaming.StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.EventID, event.Type, data)
	return err
}

type extractRequest struct {
	Text string `json:"text"`
	// Locations is an already decoded payload: an array of records, a single
	// record or {"locations": [...]}. It takes precedence over Text.
	Locations any `json:"locations"`
}

// HandleExtract runs extraction over a finished reply. The body is plain text,
// {"text": "..."} or {"locations": ...}; ?mode=strict rejects the batch on the
// first invalid record.
func (h *ChatHandlers) HandleExtract(c *gin.Context) {
	l := h.logger.With(zap.String("method", "HandleExtract"))

	mode, err := extract.ParseMode(c.Query("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be strict or permissive"})
		return
	}

	req, err := readExtractRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text or locations is required"})
		return
	}

	ctx := c.Request.Context()
	if req.Locations != nil {
		normalizer := h.extractor.Normalizer()
		if mode == extract.ModePermissive {
			locs := normalizer.NormalizePermissive(ctx, req.Locations)
			res := models.ExtractionResult{Locations: locs, Source: models.SourceNone}
			if len(locs) > 0 {
				res.Source = models.SourceJSON
			}
			res.City = h.cities.ObserveBatch(ctx, withBatchCity(res))
			c.JSON(http.StatusOK, res)
			return
		}
		locs, err := normalizer.NormalizeStrict(ctx, req.Locations)
		h.respondStrict(c, l, locs, err)
		return
	}

	if mode == extract.ModePermissive {
		res := h.extractor.Extract(ctx, req.Text)
		res.City = h.cities.ObserveBatch(ctx, res)
		c.JSON(http.StatusOK, res)
		return
	}

	locs, err := h.extractor.ExtractStrict(ctx, req.Text)
	h.respondStrict(c, l, locs, err)
}

func (h *ChatHandlers) respondStrict(c *gin.Context, l *zap.Logger, locs []models.Location, err error) {
	if err != nil {
		code := errorCode(err)
		if extract.IsClientError(err) {
			l.Warn("Strict extraction rejected reply", zap.String("code", code), zap.Error(err))
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": GenericErrorMessage, "code": code})
			return
		}
		l.Error("Strict extraction failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": GenericErrorMessage, "code": code})
		return
	}

	res := withBatchCity(models.ExtractionResult{Locations: locs, Source: models.SourceJSON})
	c.JSON(http.StatusOK, gin.H{
		"locations": locs,
		"count":     len(locs),
		"city":      h.cities.ObserveBatch(c.Request.Context(), res),
	})
}

// withBatchCity copies the first city named by a location onto res.
func withBatchCity(res models.ExtractionResult) models.ExtractionResult {
	for _, loc := range res.Locations {
		if loc.City != "" {
			res.City, res.Country = loc.City, loc.Country
			break
		}
	}
	return res
}

func readExtractRequest(c *gin.Context) (extractRequest, error) {
	var req extractRequest
	body, err := c.GetRawData()
	if err != nil {
		return req, err
	}
	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := json.Unmarshal(body, &req); err != nil {
			return req, err
		}
	} else {
		req.Text = string(body)
	}
	if req.Locations == nil && strings.TrimSpace(req.Text) == "" {
		return req, errors.New("empty request")
	}
	return req, nil
}

// errorCode maps an extraction error to a stable code for clients.
func errorCode(err error) string {
	var malformed *models.MalformedJSONError
	var coords *models.InvalidCoordinatesError
	switch {
	case errors.As(err, &malformed):
		return "malformed_json"
	case errors.As(err, &coords):
		return "invalid_coordinates"
	case errors.Is(err, models.ErrMissingName):
		return "missing_name"
	case errors.Is(err, models.ErrNoLocationsFound):
		return "no_locations"
	case errors.Is(err, models.ErrMissingJSON):
		return "missing_json"
	case errors.Is(err, models.ErrValidation):
		return "invalid_payload"
	default:
		return "internal"
	}
}

// HandleGetCity returns the current city.
func (h *ChatHandlers) HandleGetCity(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"city": h.cities.Current(c.Request.Context())})
}

type setCityRequest struct {
	City string `json:"city" binding:"required"`
}

// HandleSetCity overwrites the current city.
func (h *ChatHandlers) HandleSetCity(c *gin.Context) {
	var req setCityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "city is required"})
		return
	}
	cityName, err := h.cities.SetCurrent(c.Request.Context(), req.City)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "city is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"city": cityName})
}

// HandleSelectLocation records a location the user picked on the map.
func (h *ChatHandlers) HandleSelectLocation(c *gin.Context) {
	var loc models.SelectedLocation
	if err := c.ShouldBindJSON(&loc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location"})
		return
	}

	cityName, err := h.cities.Select(c.Request.Context(), loc)
	if err != nil {
		h.logger.Warn("Location selection did not resolve a city",
			zap.String("location", loc.Name), zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "We couldn't work out which city this place is in.",
			"city":  cityName,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"city": cityName})
}

// HandleHealth reports liveness and whether chat is available.
func (h *ChatHandlers) HandleHealth(c *gin.Context) {
	active := 0
	if h.streams != nil {
		active = h.streams.Active()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"chat_available": h.chatService.Available(),
		"active_streams": active,
	})
}
