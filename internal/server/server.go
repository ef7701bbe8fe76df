// Package server provides the HTTP server for the Rox homepage.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Love-Rox/rox-homepage/internal/config"
	"github.com/Love-Rox/rox-homepage/internal/contact"
	"github.com/Love-Rox/rox-homepage/internal/content"
	"github.com/Love-Rox/rox-homepage/internal/exporter"
	"github.com/Love-Rox/rox-homepage/internal/ogimage"
	"github.com/Love-Rox/rox-homepage/internal/releases"
	"github.com/Love-Rox/rox-homepage/internal/search"
	"github.com/Love-Rox/rox-homepage/internal/site"
	"github.com/Love-Rox/rox-homepage/static"
)

// ReleaseSource returns the advertised release versions.
type ReleaseSource interface {
	Latest(ctx context.Context) (releases.Info, error)
}

// Submitter processes contact form submissions.
type Submitter interface {
	Submit(ctx context.Context, sub contact.Submission, remoteIP string) error
}

// Services are the collaborators a Server dispatches to. Search and Watcher are optional.
type Services struct {
	Site     *site.Site
	Content  *content.Service
	Search   *search.Service
	Exporter *exporter.Exporter
	OG       *ogimage.Generator
	Releases ReleaseSource
	Contact  Submitter
	Watcher  *content.Watcher
}

// Server wraps the HTTP server and the services behind each route.
type Server struct { //nolint:govet // field order favors logical grouping over padding optimizations
	mux        *http.ServeMux
	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger
	site       *site.Site
	content    *content.Service
	search     *search.Service
	exporter   *exporter.Exporter
	og         *ogimage.Generator
	releases   ReleaseSource
	contact    Submitter
	watcher    *content.Watcher
	templates  *templateRenderer
	cfg        config.Config
	now        func() time.Time
}

// New constructs a Server with all routes and middleware registered.
func New(cfg config.Config, logger *slog.Logger, svc Services) (*Server, error) {
	if svc.Site == nil || svc.Content == nil {
		return nil, errors.New("site and content services are required")
	}
	if svc.OG == nil || svc.Releases == nil || svc.Contact == nil || svc.Exporter == nil {
		return nil, errors.New("og, releases, contact and exporter services are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	tmpl, err := newTemplateRenderer()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		logger:    logger.With("component", "http"),
		site:      svc.Site,
		content:   svc.Content,
		search:    svc.Search,
		exporter:  svc.Exporter,
		og:        svc.OG,
		releases:  svc.Releases,
		contact:   svc.Contact,
		watcher:   svc.Watcher,
		templates: tmpl,
		now:       time.Now,
	}

	s.registerRoutes()
	s.handler = chain(s.mux,
		s.recoveryMiddleware,
		csrfMiddleware(svc.Site.BaseURL),
		gzipMiddleware,
		loggingMiddleware(s.logger, cfg.Verbose),
	)

	return s, nil
}

// ServeHTTP serves a request through the full middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	staticHandler := http.StripPrefix("/static/", cacheControl(hourlyCacheControl, http.FileServer(s.resolveStaticFS())))
	s.mux.Handle("GET /static/{path...}", staticHandler)

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /robots.txt", s.handleRobots)
	s.mux.HandleFunc("GET /sitemap.xml", s.handleSitemap)

	s.mux.HandleFunc("GET /api/og", s.handleOG)
	s.mux.HandleFunc("GET /api/releases", s.handleReleases)
	s.mux.HandleFunc("POST /api/submit", s.handleSubmit)
	s.mux.HandleFunc("GET /api/search", s.handleSearch)
	s.mux.HandleFunc("GET /events", s.handleEvents)

	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /{lang}", s.handleLocaleHome)
	s.mux.HandleFunc("GET /{lang}/{path...}", s.handleLocalized)
}

func (s *Server) resolveStaticFS() http.FileSystem {
	dir := strings.TrimSpace(s.cfg.AssetsDir)
	if dir != "" {
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			s.logger.Debug("serving assets from filesystem", slog.String("dir", dir))
			return http.Dir(dir)
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("assets dir check failed", slog.String("dir", dir), slog.Any("err", err))
		}
	}
	s.logger.Debug("serving embedded assets")
	return static.HTTP()
}

// Start runs the HTTP server until ctx is canceled or the listener fails.
// Port 0 binds an ephemeral loopback port.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	if s.cfg.Port == 0 {
		addr = "127.0.0.1:0"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	if !s.cfg.Dev {
		// Event streams stay open, so only production gets a write deadline.
		s.httpServer.WriteTimeout = 60 * time.Second
	}

	errCh := make(chan error, 1)
	go func() {
		serverURL := "http://" + listener.Addr().String()
		if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
			serverURL = fmt.Sprintf("http://localhost:%d", tcpAddr.Port)
		}
		if _, err := fmt.Fprintf(os.Stdout, "Rox homepage listening on %s\n", serverURL); err != nil {
			s.logger.Warn("failed to announce server address", slog.String("url", serverURL), slog.Any("err", err))
		}
		errCh <- s.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.ErrorContext(ctx, "graceful shutdown failed", slog.Any("err", err))
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func errorResponse(message string) map[string]string {
	return map[string]string{"error": message}
}

func cacheControl(value string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", value)
		next.ServeHTTP(w, r)
	})
}
