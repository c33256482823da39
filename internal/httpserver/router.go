package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"hunyuan-gateway/internal/handlers"
	"hunyuan-gateway/internal/metrics"
	"hunyuan-gateway/internal/middleware"
)

type Options struct {
	MaxBodyBytes int64
	// RequestTimeout bounds the non-streaming routes. Chat routes are
	// bounded by the upstream timeout instead.
	RequestTimeout time.Duration
}

func SetupRouter(
	r *chi.Mux,
	baseLogger *zap.Logger,
	chatHandler *handlers.ChatHandler,
	modelsHandler *handlers.ModelsHandler,
	opts Options,
) {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 2 * 1024 * 1024
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())
	r.Use(middleware.CORS())
	r.Use(middleware.MaxBodySize(opts.MaxBodyBytes))

	// both paths are served by the upstream service
	r.Post("/v1/chat/completions", chatHandler.ChatCompletion)
	r.Post("/chat/completions", chatHandler.ChatCompletion)

	r.With(middleware.Timeout(opts.RequestTimeout)).Get("/v1/models", modelsHandler.ListModels)

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
