// Package server is the web front end: a form, an HTML result page, a JSON
// API and the rendered graph images.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/txlens/internal/model"
	"github.com/ppiankov/txlens/internal/worker"
)

//go:embed templates/*.html
var templateFS embed.FS

const limiterPruneInterval = time.Minute

// Server serves analyses over HTTP
type Server struct {
	analyzer  worker.Analyzer
	graphsDir string
	clients   *worker.Limiter
	pages     *template.Template
	logger    *slog.Logger
	config    model.ServerConfig
}

// New creates a server. graphsDir is the artifact directory served under
// /graphs/; an empty dir disables image serving.
func New(analyzer worker.Analyzer, graphsDir string, cfg model.ServerConfig, logger *slog.Logger) (*Server, error) {
	pages, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("server: parse templates: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		analyzer:  analyzer,
		graphsDir: graphsDir,
		clients:   worker.NewLimiter(cfg.ClientRequestsPerSecond, cfg.ClientBurst),
		pages:     pages,
		logger:    logger,
		config:    cfg,
	}, nil
}

// Handler returns the routed, logged handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /analyze", s.limited(s.handleAnalyze))
	mux.HandleFunc("GET /api/tx/{txid}", s.limited(s.handleAPI))
	mux.HandleFunc("GET /graphs/{file}", s.handleGraph)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return s.logRequests(mux)
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. A clean shutdown returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.config.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.config.MaxConnections)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadTimeout,
		ReadTimeout:       s.config.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		timeout := s.config.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(limiterPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := s.clients.Prune(); n > 0 {
					s.logger.Debug("pruned client limiters", "count", n)
				}
			}
		}
	})

	return g.Wait()
}
