package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/parth1006/workflow-engine/actions"
	"github.com/parth1006/workflow-engine/api/handlers"
	"github.com/parth1006/workflow-engine/config"
	"github.com/parth1006/workflow-engine/engine"
	"github.com/parth1006/workflow-engine/internal/cache"
	"github.com/parth1006/workflow-engine/internal/database"
	"github.com/parth1006/workflow-engine/internal/metrics"
	"github.com/parth1006/workflow-engine/internal/server"
	"github.com/parth1006/workflow-engine/internal/telemetry"
	"github.com/parth1006/workflow-engine/storage"
	"github.com/parth1006/workflow-engine/workflows/codereview"
)

// Server wires the config into the running service: storage, cache,
// engine, HTTP API, metrics listener, and config hot reload.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	telemetryProviders *telemetry.Providers
	promRegistry       *prometheus.Registry
	metricsCollector   *metrics.Collector

	store        storage.Store
	pool         *database.PoolManager
	cacheManager *cache.Manager

	registry *actions.Registry
	engine   *engine.Engine
	broker   *handlers.Broker

	healthHandler *handlers.HealthHandler
	graphHandler  *handlers.GraphHandler
	runHandler    *handlers.RunHandler
	streamHandler *handlers.StreamHandler

	httpManager    *server.Manager
	metricsManager *server.Manager

	hotReloadManager *config.HotReloadManager

	rateLimiterCancel context.CancelFunc
}

// NewServer creates a server instance; nothing is connected until
// Start.
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, providers *telemetry.Providers) *Server {
	return &Server{
		cfg:                cfg,
		configPath:         configPath,
		logger:             logger,
		telemetryProviders: providers,
	}
}

// Start brings up every component in dependency order.
func (s *Server) Start() error {
	s.promRegistry = prometheus.NewRegistry()
	s.metricsCollector = metrics.NewCollector("workflow", s.promRegistry, s.logger)

	if err := s.initStore(); err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}
	s.initCache()
	s.initEngine()
	s.initHandlers()
	s.seedExampleGraph()

	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("database_driver", s.cfg.Database.Driver),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)
	return nil
}

// initStore opens the graph and run store: the document store when the
// driver is mongo, the relational store behind a managed connection
// pool otherwise.
func (s *Server) initStore() error {
	if s.cfg.Database.Driver == "mongo" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		store, err := storage.NewMongoStore(ctx, s.cfg.Mongo.URI, s.cfg.Mongo.Database, s.logger)
		if err != nil {
			return err
		}
		s.store = store
		return nil
	}

	dialector, err := storage.Dialector(s.cfg.Database.Driver, s.cfg.Database.DSN())
	if err != nil {
		return err
	}
	store, err := storage.NewGormStore(dialector, s.logger)
	if err != nil {
		return err
	}

	poolConfig := database.DefaultPoolConfig()
	if s.cfg.Database.MaxOpenConns > 0 {
		poolConfig.MaxOpenConns = s.cfg.Database.MaxOpenConns
	}
	if s.cfg.Database.MaxIdleConns > 0 {
		poolConfig.MaxIdleConns = s.cfg.Database.MaxIdleConns
	}
	if s.cfg.Database.ConnMaxLifetime > 0 {
		poolConfig.ConnMaxLifetime = s.cfg.Database.ConnMaxLifetime
	}

	pool, err := database.NewPoolManager(store.DB(), poolConfig, s.logger,
		database.WithConnectionGauges(s.metricsCollector))
	if err != nil {
		return err
	}

	s.store = store
	s.pool = pool
	return nil
}

// initCache connects to Redis. The cache is an optimization, so a
// connection failure degrades to uncached operation instead of
// refusing to start.
func (s *Server) initCache() {
	if s.cfg.Redis.Addr == "" {
		s.logger.Info("redis not configured, run record caching disabled")
		return
	}

	manager, err := cache.NewManager(cache.Config{
		Addr:         s.cfg.Redis.Addr,
		Password:     s.cfg.Redis.Password,
		DB:           s.cfg.Redis.DB,
		DefaultTTL:   s.cfg.Engine.RunCacheTTL,
		PoolSize:     s.cfg.Redis.PoolSize,
		MinIdleConns: s.cfg.Redis.MinIdleConns,
	}, s.logger)
	if err != nil {
		s.logger.Warn("redis unavailable, run record caching disabled", zap.Error(err))
		return
	}
	s.cacheManager = manager
}

func (s *Server) initEngine() {
	s.registry = actions.NewRegistry(s.logger)
	codereview.Register(s.registry)

	s.engine = engine.New(s.registry, s.logger,
		engine.WithMaxIterations(s.cfg.Engine.MaxIterations))
	s.broker = handlers.NewBroker(s.logger)
}

func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", s.store.Ping))
	if s.cacheManager != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.cacheManager.Ping))
	}

	s.graphHandler = handlers.NewGraphHandler(s.store, s.cacheManager, s.logger)

	runOpts := []handlers.RunHandlerOption{
		handlers.WithRunMetrics(s.metricsCollector),
		handlers.WithRunBroker(s.broker),
		handlers.WithRunTimeout(s.cfg.Engine.RunTimeout),
	}
	if s.cacheManager != nil {
		runOpts = append(runOpts, handlers.WithRunCache(s.cacheManager, s.cfg.Engine.RunCacheTTL))
	}
	s.runHandler = handlers.NewRunHandler(s.engine, s.store, s.logger, runOpts...)

	s.streamHandler = handlers.NewStreamHandler(s.broker, s.store, s.logger)
}

// seedExampleGraph persists the built-in code review workflow so a
// fresh install has a runnable graph. Skipped when a graph of the same
// name already exists.
func (s *Server) seedExampleGraph() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	existing, err := s.store.ListGraphs(ctx)
	if err != nil {
		s.logger.Warn("failed to list graphs, skipping example seed", zap.Error(err))
		return
	}

	graph := codereview.Graph()
	for _, g := range existing {
		if g.Name == graph.Name {
			return
		}
	}

	if err := s.store.SaveGraph(ctx, graph); err != nil {
		s.logger.Warn("failed to seed example graph", zap.Error(err))
		return
	}
	s.logger.Info("seeded example graph",
		zap.String("graph_id", graph.ID),
		zap.String("name", graph.Name))
}

func (s *Server) initHotReloadManager() error {
	opts := []config.HotReloadOption{
		config.WithHotReloadLogger(s.logger),
	}
	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}

	s.hotReloadManager = config.NewHotReloadManager(s.cfg, opts...)

	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		s.logger.Info("configuration changed",
			zap.String("path", change.Path),
			zap.String("source", change.Source),
			zap.Bool("requires_restart", change.RequiresRestart),
		)
	})
	s.hotReloadManager.OnReload(func(oldConfig, newConfig *config.Config) {
		s.logger.Info("configuration reloaded")
		s.cfg = newConfig
	})

	if err := s.hotReloadManager.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start hot reload manager: %w", err)
	}
	return nil
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /api/v1/graphs", s.graphHandler.HandleCreateGraph)
	mux.HandleFunc("GET /api/v1/graphs", s.graphHandler.HandleListGraphs)
	mux.HandleFunc("GET /api/v1/graphs/{id}", s.graphHandler.HandleGetGraph)
	mux.HandleFunc("DELETE /api/v1/graphs/{id}", s.graphHandler.HandleDeleteGraph)

	mux.HandleFunc("POST /api/v1/graphs/run", s.runHandler.HandleRunGraph)
	mux.HandleFunc("GET /api/v1/graphs/{id}/runs", s.runHandler.HandleListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.runHandler.HandleGetRun)
	mux.HandleFunc("GET /api/v1/runs/{id}/stream", s.streamHandler.HandleStream)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	}
	if s.cfg.Auth.Enabled {
		middlewares = append(middlewares, JWTAuth(s.cfg.Auth, skipAuthPaths, s.logger))
	}
	handler := Chain(mux, middlewares...)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}
	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}))

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}
	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until a termination signal or server error,
// then shuts everything down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops the listeners and releases every connection, newest
// dependency first.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")
	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("hot reload manager shutdown error", zap.Error(err))
		}
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if s.cacheManager != nil {
		if err := s.cacheManager.Close(); err != nil {
			s.logger.Error("cache shutdown error", zap.Error(err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("database pool shutdown error", zap.Error(err))
		}
	} else if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("store shutdown error", zap.Error(err))
		}
	}
	if s.telemetryProviders != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.telemetryProviders.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}
