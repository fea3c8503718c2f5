// Package server exposes the rendering pipeline over HTTP for map
// frontends.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/county-atlas/internal/pipeline"
)

// Server serves catalog listings, layer snapshots, legends and colors.
type Server struct {
	engine         *pipeline.Engine
	allowedOrigins []string

	mu     sync.RWMutex
	layers map[string]*snapshot
}

// snapshot is a rendered view pinned under a layer id. Clients create
// one per map state and fetch its colors and legend by id.
type snapshot struct {
	ID      string
	Request pipeline.Request
	View    *pipeline.View
	Created time.Time
}

// New creates a server over one rendering engine.
func New(engine *pipeline.Engine, allowedOrigins []string) *Server {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Server{
		engine:         engine,
		allowedOrigins: allowedOrigins,
		layers:         make(map[string]*snapshot),
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", s.handleCategories)
		r.Get("/categories/{category}/metrics/{metric}/stats", s.handleStats)

		r.Post("/layers", s.handleCreateLayer)
		r.Get("/layers/{id}", s.handleGetLayer)
		r.Get("/layers/{id}/colors", s.handleLayerColors)
		r.Get("/layers/{id}/legend", s.handleLayerLegend)
		r.Get("/layers/{id}/filter", s.handleLayerFilter)
		r.Delete("/layers/{id}", s.handleDeleteLayer)
	})

	return r
}

// ListenAndServe runs the server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("server: listening", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

// createSnapshot renders a request and pins the result under a fresh id.
func (s *Server) createSnapshot(ctx context.Context, req pipeline.Request) (*snapshot, error) {
	view, err := s.engine.Render(ctx, req)
	if err != nil {
		return nil, err
	}
	snap := &snapshot{
		ID:      uuid.NewString(),
		Request: req,
		View:    view,
		Created: time.Now().UTC(),
	}
	s.mu.Lock()
	s.layers[snap.ID] = snap
	s.mu.Unlock()

	zap.L().Debug("server: layer created",
		zap.String("id", snap.ID),
		zap.String("category", req.Category),
		zap.String("metric", req.Metric),
	)
	return snap, nil
}

func (s *Server) lookup(id string) *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layers[id]
}

func (s *Server) drop(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.layers[id]; !ok {
		return false
	}
	delete(s.layers, id)
	return true
}
