package server

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// GracefulShutdown waits for SIGINT or SIGTERM, then shuts down srv and any
// side servers, giving in-flight requests shutdownTimeout to finish.
func GracefulShutdown(srv *http.Server, logger *zap.Logger, done chan<- bool, side ...*http.Server) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info("Shutting down gracefully, press Ctrl+C again to force")

	stop() // Allow Ctrl+C to force shutdown

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	for _, s := range side {
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Side server forced to shutdown", zap.String("addr", s.Addr), zap.Error(err))
		}
	}

	logger.Info("Server exiting")
	done <- true
}
