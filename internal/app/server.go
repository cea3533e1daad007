package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/markdave123-py/docrag/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/docrag/internal/api/middlewares"
	"github.com/markdave123-py/docrag/internal/metrics"
	"github.com/markdave123-py/docrag/internal/services"
)

// RouterDeps is everything the HTTP layer needs.
type RouterDeps struct {
	Users          *services.UserService
	Documents      *services.DocumentService
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter builds and wires all routes.
func NewRouter(d RouterDeps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	authHandler := handlers.NewAuthHandler(d.Users, logger)
	userHandler := handlers.NewUserHandler(d.Users, logger)
	docHandler := handlers.NewDocumentHandler(d.Documents, logger)
	queryHandler := handlers.NewQueryHandler(d.Documents, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(appMiddleware.RequestLogger(logger, d.Metrics))
	r.Use(chimw.Recoverer)
	// uploads are ingested inside the request
	r.Use(chimw.Timeout(5 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/auth/signup", authHandler.Signup)
		api.Post("/auth/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware(d.Users, logger))

			protected.Get("/users/me", userHandler.Me)
			protected.Get("/users", userHandler.List)
			protected.Get("/users/{id}", userHandler.Get)
			protected.Put("/users/{id}", userHandler.Update)
			protected.Put("/users/{id}/role", userHandler.UpdateRole)

			protected.Post("/rag/upload", docHandler.UploadDocument)
			protected.Get("/rag/documents", docHandler.GetDocuments)
			protected.Post("/rag/query", queryHandler.Query)
		})
	})

	return r
}

// Server wraps the HTTP server instance.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks until the server stops. A graceful shutdown is not an error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
