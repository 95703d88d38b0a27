// Package server exposes halyard's execution pipeline over HTTP and
// WebSocket for the web front end.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/halyard-dev/halyard/internal/catalog"
	"github.com/halyard-dev/halyard/internal/oracle"
	"github.com/halyard-dev/halyard/internal/remote"
	"github.com/halyard-dev/halyard/internal/store"
	"github.com/halyard-dev/halyard/internal/stream"
)

// Server holds the wired pipeline components behind the HTTP API.
type Server struct {
	coord   *remote.Coordinator
	store   *store.Store
	bcast   *stream.Broadcaster
	oracle  *oracle.Client   // nil when no endpoint configured
	catalog *catalog.Catalog // nil when no catalog file configured
	log     zerolog.Logger

	httpSrv *http.Server
}

// New builds a Server. oracle and catalog may be nil; the corresponding
// endpoints then return 503.
func New(listen string, coord *remote.Coordinator, st *store.Store, bcast *stream.Broadcaster, oc *oracle.Client, cat *catalog.Catalog, log zerolog.Logger) *Server {
	s := &Server{
		coord:   coord,
		store:   st,
		bcast:   bcast,
		oracle:  oc,
		catalog: cat,
		log:     log,
	}
	s.httpSrv = &http.Server{
		Addr:              listen,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/connections", s.handleListConnections)
	mux.HandleFunc("POST /api/connections", s.handleCreateConnection)
	mux.HandleFunc("DELETE /api/connections/{id}", s.handleDeleteConnection)
	mux.HandleFunc("POST /api/connections/{id}/activate", s.handleActivate)
	mux.HandleFunc("POST /api/execute", s.handleExecute)
	mux.HandleFunc("POST /api/translate", s.handleTranslate)
	mux.HandleFunc("GET /api/executions", s.handleListExecutions)
	mux.HandleFunc("GET /api/templates", s.handleListTemplates)
	mux.HandleFunc("GET /ws/commands/{id}", s.handleCommandSocket)

	return s.logRequests(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully and drains
// all SSH sessions.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", s.httpSrv.Addr).Msg("http server starting")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.httpSrv.Shutdown(shutdownCtx)
	s.coord.Sessions().DisconnectAll()
	return err
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
