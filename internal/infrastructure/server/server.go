package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/apmcore/internal/api/middleware"
	"github.com/GriffinCanCode/apmcore/internal/apm"
	"github.com/GriffinCanCode/apmcore/internal/infrastructure/config"
	"github.com/GriffinCanCode/apmcore/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apmcore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/apmcore/internal/instrumentation"
	"github.com/GriffinCanCode/apmcore/internal/reporter"
)

const (
	shutdownTimeout = 10 * time.Second
	maxProxyBody    = 1 << 20
	maxWorkCalls    = 100
)

// Server wraps the HTTP server and the tracer it reports through
type Server struct {
	router   *gin.Engine
	client   *http.Client
	tracer   *apm.Tracer
	reporter reporter.Reporter
	registry *instrumentation.Registry
	bus      EventBus.Bus
	prom     *prometheus.Registry
	metrics  *monitoring.Metrics
	logger   *logging.Logger
	config   *config.Config
}

// Option customizes server construction
type Option func(*options)

type options struct {
	reporter reporter.Reporter
	logger   *logging.Logger
}

// WithReporter replaces the reporter built from configuration.
func WithReporter(rep reporter.Reporter) Option {
	return func(o *options) { o.reporter = rep }
}

// WithLogger replaces the logger built from configuration.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
			Service:     cfg.Service.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}
	log := logger.Component(logging.ComponentServer)

	log.Info("Initializing apmcore demo server",
		zap.String("service", cfg.Service.Name),
		zap.String("port", cfg.Server.Port),
		zap.String("reporter", cfg.Reporter.Kind),
	)

	// Metrics first, the reporter and tracer record into them
	prom := prometheus.NewRegistry()
	prom.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(prom)

	rep := o.reporter
	if rep == nil {
		var err error
		rep, err = reporter.New(cfg.Reporter, reporter.NewMetadata(cfg.Service),
			logger.Component(logging.ComponentReporter), metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create reporter: %w", err)
		}
	}

	tracer := apm.New(cfg.Tracer, rep,
		apm.WithLogger(logger.Component(logging.ComponentTracer)),
		apm.WithMetrics(metrics),
	)

	// Instrumentation is applied through load events
	registry := instrumentation.NewDefaultRegistry(tracer, logger.Component(logging.ComponentInstrumentation))
	bus := EventBus.New()
	if err := registry.Listen(bus); err != nil {
		return nil, fmt.Errorf("failed to subscribe instrumentation: %w", err)
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if _, err := load(bus, instrumentation.TargetGin, router); err != nil {
		return nil, err
	}
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		log.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		limits.Tracer = tracer
		router.Use(middleware.RateLimit(limits))
	}

	instrumented, err := load(bus, instrumentation.TargetHTTPClient, &http.Client{Timeout: cfg.Reporter.Timeout.Std()})
	if err != nil {
		return nil, err
	}
	client := instrumented.(*http.Client)

	s := &Server{
		router:   router,
		client:   client,
		tracer:   tracer,
		reporter: rep,
		registry: registry,
		bus:      bus,
		prom:     prom,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
	}
	s.routes()

	log.Info("Server initialized successfully",
		zap.Strings("instrumented", registry.Targets()),
	)
	return s, nil
}

// load publishes module on the bus and returns the instrumented value
func load(bus EventBus.Bus, target string, module interface{}) (interface{}, error) {
	ev := &instrumentation.LoadEvent{Target: target, Module: module}
	bus.Publish(instrumentation.TopicLoad, ev)
	if ev.Err != nil {
		return module, fmt.Errorf("failed to instrument %s: %w", target, ev.Err)
	}
	return ev.Module, nil
}

func (s *Server) routes() {
	s.router.GET("/", s.root)
	s.router.GET("/health", s.health)
	s.router.GET("/metrics", gin.WrapH(monitoring.Handler(s.prom)))
	s.router.GET("/proxy", s.proxy)
	s.router.GET("/work", s.work)
}

// ============================================================================
// Handlers
// ============================================================================

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":  s.config.Service.Name,
		"version":  s.config.Service.Version,
		"reporter": s.config.Reporter.Kind,
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"metrics": s.metrics.Snapshot(),
	})
}

// proxy fetches url through the instrumented client
func (s *Server) proxy(c *gin.Context) {
	target := c.Query("url")
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, target, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.client.Do(req)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProxyBody))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), body)
}

// work issues n identical database exit calls, which compress into one
// composite span
func (s *Server) work(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("n", "3"))
	if err != nil || n < 1 || n > maxWorkCalls {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("n must be between 1 and %d", maxWorkCalls)})
		return
	}

	ctx := c.Request.Context()
	for i := 0; i < n; i++ {
		_, span := s.tracer.StartSpan(ctx, "SELECT FROM users", "db",
			apm.Subtype("postgresql"),
			apm.Action("query"),
			apm.WithDestination(apm.Destination{Resource: "postgresql"}),
		)
		span.End()
	}

	c.JSON(http.StatusOK, gin.H{"calls": n})
}

// ============================================================================
// Lifecycle
// ============================================================================

// Handler returns the router for in-process use
func (s *Server) Handler() http.Handler {
	return s.router
}

// Tracer returns the server's tracer
func (s *Server) Tracer() *apm.Tracer {
	return s.tracer
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	log := s.logger.Component(logging.ComponentServer)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = s.Close(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
		return s.Close(context.Background())
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", zap.Error(err))
	}
	return s.Close(shutdownCtx)
}

// Close flushes the tracer and releases the reporter
func (s *Server) Close(ctx context.Context) error {
	log := s.logger.Component(logging.ComponentServer)

	if err := s.registry.Unlisten(s.bus); err != nil {
		log.Warn("Failed to unsubscribe instrumentation", zap.Error(err))
	}

	if err := s.tracer.Close(ctx); err != nil {
		log.Error("Failed to close tracer", zap.Error(err))
		return fmt.Errorf("failed to close tracer: %w", err)
	}
	log.Info("Tracer flushed and closed")

	_ = s.logger.Sync()
	return nil
}
