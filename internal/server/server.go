// Package server runs the relayout HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackzampolin/relayout/internal/api"
	"github.com/jackzampolin/relayout/internal/config"
	"github.com/jackzampolin/relayout/internal/detector"
	"github.com/jackzampolin/relayout/internal/docker"
	"github.com/jackzampolin/relayout/internal/extract"
	"github.com/jackzampolin/relayout/internal/home"
	"github.com/jackzampolin/relayout/internal/layoutsvc"
	"github.com/jackzampolin/relayout/internal/metrics"
	"github.com/jackzampolin/relayout/internal/pagestore"
	"github.com/jackzampolin/relayout/internal/server/endpoints"
	"github.com/jackzampolin/relayout/internal/svcctx"
)

// Server is the relayout HTTP server. When configured to, it starts the
// detector container on start and stops it on shutdown.
type Server struct {
	httpServer    *http.Server
	dockerManager *docker.Manager
	configMgr     *config.Manager
	home          *home.Dir
	logger        *slog.Logger

	// Injected dependencies; built from config when nil.
	store     pagestore.Store
	detector  detector.Detector
	extractor extract.Extractor

	// services holds all core services for context enrichment
	mu       sync.RWMutex
	services *svcctx.Services
	running  bool

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// Home is the relayout home directory (uploads, images, outputs)
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// DockerManager runs the detector container; nil when unmanaged
	DockerManager *docker.Manager
	// Store, Detector and Extractor override the configured ones
	Store     pagestore.Store
	Detector  detector.Detector
	Extractor extract.Extractor
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Home == nil {
		return nil, errors.New("home directory is required")
	}
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}

	s := &Server{
		dockerManager: cfg.DockerManager,
		configMgr:     cfg.ConfigManager,
		home:          cfg.Home,
		logger:        cfg.Logger,
		store:         cfg.Store,
		detector:      cfg.Detector,
		extractor:     cfg.Extractor,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{DockerManager: cfg.DockerManager}) {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:     s.withServices(mux),
		ReadTimeout: 60 * time.Second,
		// Detection and ingest of large PDFs can be slow.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start initializes services and serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.initialize(ctx); err != nil {
		_ = s.shutdown()
		return err
	}

	// Bind before serving so port conflicts surface as Start errors.
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// initialize starts the detector container when managed, opens the store,
// builds the detector and layout service, and hooks config reloads.
func (s *Server) initialize(ctx context.Context) error {
	cfg := s.configMgr.Get()

	if err := s.home.EnsureExists(); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}

	if s.dockerManager != nil && cfg.Detector.Container.AutoStart {
		s.logger.Info("starting detector container", "container", s.dockerManager.ContainerName())
		if err := s.dockerManager.Start(ctx); err != nil {
			return fmt.Errorf("failed to start detector container: %w", err)
		}
		s.logger.Info("detector is ready", "url", s.dockerManager.URL())
	}

	store := s.store
	if store == nil {
		var err error
		store, err = OpenStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		s.store = store
	}

	det := s.detector
	if det == nil {
		limited, err := detector.New(cfg.DetectorConfig(), s.logger)
		if err != nil {
			return fmt.Errorf("failed to configure detector: %w", err)
		}
		det = limited
		s.detector = det
	}

	rc, err := cfg.ReclassifyConfig()
	if err != nil {
		return err
	}
	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = layoutsvc.NewMetricsRecorder(cfg.Metrics.Capacity)
	}

	layout, err := layoutsvc.New(layoutsvc.Config{
		Store:            store,
		Extractor:        s.extractor,
		Detector:         det,
		Home:             s.home,
		Reclassify:       rc,
		CompareThreshold: cfg.Compare.Threshold,
		DPI:              cfg.Ingest.DPI,
		RenderImages:     cfg.Ingest.RenderImages,
		Metrics:          recorder,
		Logger:           s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create layout service: %w", err)
	}

	// Reconciler thresholds follow the config file.
	s.configMgr.OnChange(func(c *config.Config) {
		rc, err := c.ReclassifyConfig()
		if err == nil {
			err = layout.SetReclassifyConfig(rc, c.Compare.Threshold)
		}
		if err != nil {
			s.logger.Error("ignoring reclassify config reload", "error", err)
			return
		}
		s.logger.Info("reclassify config reloaded")
	})

	s.mu.Lock()
	s.services = &svcctx.Services{
		Layout:      layout,
		Store:       store,
		StoreDriver: cfg.Store.Driver,
		Home:        s.home,
		Logger:      s.logger,
	}
	s.mu.Unlock()
	return nil
}

// OpenStore opens the configured page store.
func OpenStore(ctx context.Context, cfg config.StoreCfg) (pagestore.Store, error) {
	switch cfg.Driver {
	case "memory", "":
		return pagestore.NewMemoryStore(), nil
	case "postgres":
		dsn := config.ResolveEnvVars(cfg.DSN)
		if dsn == "" {
			return nil, errors.New("store.dsn is required for the postgres driver")
		}
		store, err := pagestore.OpenPostgres(ctx, pagestore.PostgresConfig{
			DSN:             dsn,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

// shutdown performs graceful shutdown of the HTTP server, the store and the
// detector container.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.mu.Lock()
	s.services = nil
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("store close error", "error", err)
		}
	}

	if s.dockerManager != nil && s.configMgr.Get().Detector.Container.AutoStart {
		s.logger.Info("stopping detector container")
		if err := s.dockerManager.Stop(shutdownCtx); err != nil {
			s.logger.Error("detector container stop error", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) currentServices() *svcctx.Services {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if services := s.currentServices(); services != nil {
			ctx = svcctx.WithServices(ctx, services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until the layout service is ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svcctx.LayoutFrom(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
