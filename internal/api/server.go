package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/coastwatch/coastwatch/internal/database"
	"github.com/coastwatch/coastwatch/internal/logging"
	"github.com/coastwatch/coastwatch/internal/metrics"
	"github.com/coastwatch/coastwatch/internal/snapshot"
	"github.com/coastwatch/coastwatch/internal/vision"
)

// Analyzer runs crowd estimation on an arbitrary image. Satisfied by
// vision.Estimator.
type Analyzer interface {
	Predict(ctx context.Context, imagePath string, maskPaths []string) (*vision.Result, error)
}

// Server hosts the HTTP API.
type Server struct {
	repo     snapshot.Repository
	analyzer Analyzer
	hub      *Hub
	db       *database.DB
	metrics  *metrics.Metrics
	logs     *logging.RingBuffer
	logger   *slog.Logger

	httpServer *http.Server
}

// NewServer creates the API server.
func NewServer(
	listen string,
	repo snapshot.Repository,
	analyzer Analyzer,
	hub *Hub,
	db *database.DB,
	m *metrics.Metrics,
	logs *logging.RingBuffer,
) *Server {
	s := &Server{
		repo:     repo,
		analyzer: analyzer,
		hub:      hub,
		db:       db,
		metrics:  m,
		logs:     logs,
		logger:   slog.Default().With("component", "api"),
	}

	s.httpServer = &http.Server{
		Addr:    listen,
		Handler: s.router(),
	}
	return s
}

func (s *Server) router() *chi.Mux {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())
	r.Get("/ws", s.hub.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/webcams", s.handleListWebcams)
		r.Get("/webcams/{slug}", s.handleGetWebcam)
		r.Get("/webcams/{slug}/snapshots", s.handleListSnapshots)
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/logs", s.handleRecentLogs)
	})

	return r
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving. Blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	s.logger.Info("API server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if s.db != nil {
		if err := s.db.Health(r.Context()); err != nil {
			status = "degraded"
		}
	}
	OK(w, map[string]interface{}{
		"status":     status,
		"ws_clients": s.hub.ClientCount(),
	})
}
