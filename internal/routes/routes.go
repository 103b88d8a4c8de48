package routes

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-chatmap/internal/app/middleware"
	llmchat "github.com/FACorreiaa/loci-chatmap/internal/app/domain/chat_prompt"
	cityPkg "github.com/FACorreiaa/loci-chatmap/internal/app/domain/city"
	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/extract"
	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/geocode"
	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/lookup"
	"github.com/FACorreiaa/loci-chatmap/internal/app/streaming"
	"github.com/FACorreiaa/loci-chatmap/internal/pkg/config"
)

const cleanupInterval = time.Minute

type AppHandlers struct {
	Chat *llmchat.ChatHandlers
}

// Dependencies are the long-lived collaborators behind the handlers.
type Dependencies struct {
	Extractor *extract.Extractor
	Cities    *cityPkg.ServiceImpl
	Streams   *streaming.Manager
	Chat      *llmchat.ChatServiceImpl
	Clock     clockwork.Clock
}

// Setup wires dependencies and routes. Background work stops when ctx is done.
func Setup(ctx context.Context, r *gin.Engine, cfg *config.Config, log *zap.Logger) error {
	deps, err := NewDependencies(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	go runCleanup(ctx, deps.Streams, deps.Clock, cfg.Extraction.StreamMaxAge, log)

	handlers := &AppHandlers{
		Chat: llmchat.NewChatHandlers(deps.Chat, deps.Extractor, deps.Cities, deps.Streams, log),
	}
	var chatLimit gin.HandlerFunc
	if cfg.RateLimit.Requests > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, deps.Clock, log)
		chatLimit = middleware.RateLimitMiddleware(limiter)
	}
	setupRouter(r, handlers, chatLimit)
	return nil
}

// NewDependencies builds the extraction pipeline, the city context and the chat
// service. client overrides the model client built from cfg when non-nil.
func NewDependencies(ctx context.Context, cfg *config.Config, client llmchat.ChatClient, log *zap.Logger) (*Dependencies, error) {
	clock := clockwork.NewRealClock()
	random := extract.NewRandom(cfg.Extraction.RandomSeed)

	places := lookup.Default()
	extractor := extract.NewExtractor(
		places,
		lookup.NewTemplateImageResolver(cfg.Extraction.ImageURLTemplate),
		extract.WithRandom(random),
		extract.WithClock(clock),
		extract.WithLogger(log),
	)

	geocoder := geocode.NewCachedGeocoder(
		geocode.NewTableGeocoder(places, cfg.Extraction.GeocodeMaxKm),
		cfg.Extraction.GeocodeCacheTTL,
		log,
	)
	seeds := cfg.Extraction.SeedCities
	if len(seeds) == 0 {
		seeds = places.Cities()
	}
	register := cityPkg.NewRegister(seeds, random)
	cities := cityPkg.NewCityService(register, geocoder, log)
	log.Info("City context initialized", zap.String("city", register.Get()))

	streams := streaming.NewManager(extractor, clock, log)

	if client == nil {
		c, err := llmchat.NewChatClient(ctx, cfg.LLM, log)
		switch {
		case errors.Is(err, llmchat.ErrChatUnavailable):
			log.Warn("GEMINI_API_KEY not set, chat streaming is disabled")
		case err != nil:
			return nil, err
		default:
			client = c
		}
	}

	return &Dependencies{
		Extractor: extractor,
		Cities:    cities,
		Streams:   streams,
		Chat:      llmchat.NewChatService(client, streams, cities, log),
		Clock:     clock,
	}, nil
}

func runCleanup(ctx context.Context, streams *streaming.Manager, clock clockwork.Clock, maxAge time.Duration, log *zap.Logger) {
	ticker := clock.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := streams.CleanupExpired(maxAge); n > 0 {
				log.Info("Dropped expired stream sessions", zap.Int("count", n))
			}
		}
	}
}

func setupRouter(r *gin.Engine, h *AppHandlers, chatLimit gin.HandlerFunc) {
	chat := []gin.HandlerFunc{h.Chat.HandleChatStream}
	if chatLimit != nil {
		chat = append([]gin.HandlerFunc{chatLimit}, chat...)
	}

	r.GET("/healthz", h.Chat.HandleHealth)

	api := r.Group("/api")
	{
		api.POST("/chat/stream", chat...)
		api.POST("/extract", h.Chat.HandleExtract)
		api.GET("/city", h.Chat.HandleGetCity)
		api.PUT("/city", h.Chat.HandleSetCity)
		api.POST("/locations/select", h.Chat.HandleSelectLocation)
	}
}
