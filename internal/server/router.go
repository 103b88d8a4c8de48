package server

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-chatmap/internal/app/middleware"
	"github.com/FACorreiaa/loci-chatmap/internal/pkg/config"
	"github.com/FACorreiaa/loci-chatmap/internal/routes"
)

// SetupRouter configures and returns the Gin router with all middleware and routes
func SetupRouter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.OTELGinMiddleware(cfg.Observability.ServiceName))
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.ObservabilityMiddleware())
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.SecurityMiddleware())

	if err := routes.Setup(ctx, r, cfg, logger); err != nil {
		return nil, err
	}
	return r, nil
}
