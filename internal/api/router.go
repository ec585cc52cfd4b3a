package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"datalab/internal/analysis"
	datalabmcp "datalab/internal/mcp"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server holds the HTTP server state.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	svc        *analysis.Service
	mcpServer  *datalabmcp.MCPServer
	logger     *slog.Logger
	authToken  string
}

// NewServer constructs the HTTP API server. mcpServer may be nil when the
// /mcp transport is not wanted.
func NewServer(addr, authToken string, svc *analysis.Service, mcpServer *datalabmcp.MCPServer, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		svc:       svc,
		mcpServer: mcpServer,
		logger:    logger,
		authToken: authToken,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	if s.mcpServer != nil {
		var mcpHandler http.Handler = s.mcpServer.StreamableHTTPHandler()
		if s.authToken != "" {
			mcpHandler = AuthMiddleware(s.authToken)(mcpHandler)
		}
		s.router.Handle("/mcp", mcpHandler)
	}

	s.router.Route("/v1", func(r chi.Router) {
		if s.authToken != "" {
			r.Use(AuthMiddleware(s.authToken))
		}

		r.Get("/healthz", s.handleHealthz)

		r.Route("/datasets", func(r chi.Router) {
			r.Post("/overview", s.handleOverview)
			r.Post("/quality", s.handleQuality)
			r.Post("/correlation", s.handleCorrelation)
			r.Post("/eda", s.handleEDA)
		})

		r.Post("/modeling", s.handleModeling)
		r.Post("/execute", s.handleExecute)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Get("/{runID}", s.handleGetRun)
		})
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
