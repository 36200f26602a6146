// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/walletrisk/internal/config"
	"github.com/mbd888/walletrisk/internal/credit"
	"github.com/mbd888/walletrisk/internal/features"
	"github.com/mbd888/walletrisk/internal/feed"
	"github.com/mbd888/walletrisk/internal/health"
	"github.com/mbd888/walletrisk/internal/idgen"
	"github.com/mbd888/walletrisk/internal/logging"
	"github.com/mbd888/walletrisk/internal/metrics"
	"github.com/mbd888/walletrisk/internal/oracle"
	"github.com/mbd888/walletrisk/internal/ratelimit"
	"github.com/mbd888/walletrisk/internal/risk"
	"github.com/mbd888/walletrisk/internal/scoring"
	"github.com/mbd888/walletrisk/internal/security"
	"github.com/mbd888/walletrisk/internal/staking"
	"github.com/mbd888/walletrisk/internal/traces"
	"github.com/mbd888/walletrisk/internal/txgraph"
	"github.com/mbd888/walletrisk/internal/upstream"
	"github.com/mbd888/walletrisk/internal/validation"
	"github.com/mbd888/walletrisk/internal/watcher"
)

// Version is reported by the health and info endpoints.
const Version = "0.1.0"

// Upstream names used for breakers and health checks.
var upstreams = []string{"oracle", "feed", "staking"}

// degradable upstreams have a scoring fallback and never fail readiness.
var degradable = map[string]bool{"oracle": true, "staking": true}

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg    *config.Config
	tables config.Tables
	guard  *upstream.Guard

	feed     feed.Feed
	ingester feed.Ingester
	oracle   oracle.Client
	staking  staking.Store
	scores   credit.Store
	audit    risk.Store
	exporter *txgraph.Neo4jExporter
	service  *scoring.Service

	chainWatcher *watcher.ChainWatcher
	watching     bool // chainWatcher started and must be stopped
	kafka        *watcher.KafkaConsumer

	health      *health.Registry
	rateLimiter *ratelimit.Limiter
	db          *sql.DB // nil if using in-memory
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger

	cancelRunCtx    context.CancelFunc // cancels background goroutines started in Run
	shutdownTracing func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithFeed replaces the history feed (for testing). The feed is used as is,
// without chain augmentation or an ingestion route unless it is an Ingester.
func WithFeed(f feed.Feed) Option {
	return func(s *Server) {
		s.feed = f
		if ing, ok := f.(feed.Ingester); ok {
			s.ingester = ing
		}
	}
}

// WithOracle replaces the price oracle (for testing)
func WithOracle(c oracle.Client) Option {
	return func(s *Server) {
		s.oracle = c
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
		health: health.NewRegistry(),
	}

	// Apply options first (may set feed/oracle/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	tables, err := config.LoadTables(cfg.TablesFile)
	if err != nil {
		return nil, err
	}
	s.tables = tables
	s.logger.Info("scoring tables loaded",
		"policy", tables.Policy.Version,
		"features", tables.Features.Version,
		"boosts", tables.Boosts.Version,
	)

	s.guard = upstream.New(upstream.Options{
		Attempts:         cfg.UpstreamRetries,
		Timeout:          cfg.UpstreamTimeout,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
		Logger:           s.logger,
	})

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var baseFeed feed.Feed
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		pgFeed := feed.NewPostgresFeed(db)
		baseFeed = pgFeed
		if s.ingester == nil {
			s.ingester = pgFeed
		}
		s.staking = staking.NewPostgresStore(db)
		s.scores = credit.NewPostgresStore(db, cfg.ScoreCacheTTL)
		s.audit = risk.NewPostgresStore(db)
		s.health.Register("database", health.PingCheck("database", db.PingContext))
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		memFeed := feed.NewMemoryFeed()
		baseFeed = memFeed
		if s.ingester == nil {
			s.ingester = memFeed
		}
		s.staking = staking.NewMemoryStore()
		s.scores = credit.NewMemoryStore(cfg.ScoreCacheTTL)
		s.audit = risk.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// History: stored records, plus on-chain transfers when an RPC is set
	if s.feed == nil {
		s.feed = baseFeed
		if cfg.RPCURL != "" {
			chainCfg := feed.DefaultChainConfig()
			chainCfg.RPCURL = cfg.RPCURL
			chainFeed, err := feed.DialChainFeed(chainCfg)
			if err != nil {
				s.logger.Warn("failed to dial chain feed, using stored history only", "error", err)
			} else {
				s.feed = feed.Combined{baseFeed, feed.NewGuarded(chainFeed, s.guard, "feed")}
				s.logger.Info("chain feed enabled", "lookback_blocks", chainCfg.Lookback)
			}
		}
	}

	if s.oracle == nil {
		s.oracle = oracle.NewPriceOracle(cfg.OracleURL, cfg.OracleCacheTTL, s.guard)
	}

	s.service = scoring.NewService(
		s.feed,
		features.NewExtractor(tables.Features),
		credit.NewScorer(tables.Policy, tables.Boosts),
		risk.NewAnalyzer(),
	).
		WithOracle(s.oracle, cfg.OracleAsset).
		WithStaking(staking.NewGuarded(s.staking, s.guard)).
		WithScoreStore(s.scores).
		WithAuditStore(s.audit).
		WithWorkers(cfg.ScoringWorkers)

	// Graph export of flagged wallets
	if cfg.Neo4jURI != "" {
		exporter, err := txgraph.NewNeo4jExporter(ctx, txgraph.Options{
			URI:      cfg.Neo4jURI,
			Username: cfg.Neo4jUser,
			Password: cfg.Neo4jPassword,
		})
		if err != nil {
			s.logger.Warn("failed to connect to graph store, export disabled", "error", err)
		} else {
			s.exporter = exporter
			s.service.WithExporter(exporter)
			s.logger.Info("graph export enabled", "uri", cfg.Neo4jURI)
		}
	}

	// Cache invalidation from watched token transfers
	if cfg.RPCURL != "" && len(cfg.WatchTokens) > 0 {
		tokens := make([]common.Address, 0, len(cfg.WatchTokens))
		for _, t := range cfg.WatchTokens {
			if !common.IsHexAddress(t) {
				return nil, fmt.Errorf("WATCH_TOKENS: %q is not an address", t)
			}
			tokens = append(tokens, common.HexToAddress(t))
		}
		w, err := watcher.New(watcher.Config{
			RPCURL:       cfg.RPCURL,
			Tokens:       tokens,
			PollInterval: cfg.WatchPollInterval,
		}, s.service, s.logger)
		if err != nil {
			s.logger.Warn("failed to create chain watcher", "error", err)
		} else {
			s.chainWatcher = w
			s.logger.Info("chain watcher configured", "tokens", len(tokens))
		}
	}

	// Cache invalidation from the transaction topic
	if cfg.KafkaBrokers != "" {
		k, err := watcher.NewKafkaConsumer(watcher.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			Group:   cfg.KafkaGroup,
		}, s.service, s.logger)
		if err != nil {
			s.logger.Warn("failed to create kafka consumer", "error", err)
		} else {
			s.kafka = k
			s.logger.Info("kafka invalidation enabled", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroup)
		}
	}

	for _, name := range upstreams {
		check := health.BreakerCheck(name, s.guard.Snapshot)
		if degradable[name] {
			s.health.RegisterDegradable(name, check)
		} else {
			s.health.Register(name, check)
		}
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS: every origin unless CORS_ORIGINS narrows it
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.PerSecond(s.cfg.RateLimitRPS))
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Tracing
	s.router.Use(traces.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.RequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
		}

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

// adminMiddleware admits requests carrying the configured admin secret.
func (s *Server) adminMiddleware() gin.HandlerFunc {
	secret := []byte(s.cfg.AdminSecret)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader("X-Admin-Secret"))
		if subtle.ConstantTimeCompare(got, secret) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "valid X-Admin-Secret header required",
			})
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())
	s.router.GET("/", s.infoHandler)

	v1 := s.router.Group("/v1")
	v1.Use(validation.AddressParamMiddleware())
	v1.GET("/tables", s.tablesHandler)

	scoring.NewHandler(s.service).RegisterRoutes(v1)
	credit.NewHandler(s.service, s.scores).RegisterRoutes(v1)
	risk.NewHandler(s.service, s.audit).RegisterRoutes(v1)

	stakingHandler := staking.NewHandler(s.staking)
	stakingHandler.RegisterRoutes(v1)

	// Admin routes exist only when a secret is configured
	if s.cfg.AdminSecret == "" {
		s.logger.Info("admin routes disabled (no ADMIN_SECRET set)")
		return
	}
	admin := v1.Group("/admin", s.adminMiddleware())
	stakingHandler.RegisterAdminRoutes(admin)
	if s.ingester != nil {
		feed.NewHandler(s.ingester, s.service.Invalidate).RegisterAdminRoutes(admin)
	}
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, checks := s.health.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "walletrisk",
		"description": "Wallet credit scoring and fraud-risk engine",
		"version":     Version,
		"chainId":     s.cfg.ChainID,
		"asset":       s.cfg.OracleAsset,
	})
}

// tablesHandler reports the table versions scores are computed with.
func (s *Server) tablesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tables": s.tables})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdownTracing, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, Version, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownTracing = shutdownTracing
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second, // batch evaluation can be slow
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.db != nil {
		if err := metrics.RegisterDB(s.db, "walletrisk"); err != nil {
			s.logger.Warn("db pool metrics unavailable", "error", err)
		}
	}

	// Start chain watcher
	if s.chainWatcher != nil {
		if err := s.chainWatcher.Start(runCtx); err != nil {
			s.logger.Error("failed to start chain watcher", "error", err)
		} else {
			s.watching = true
		}
	}

	// Start kafka consumer
	if s.kafka != nil {
		go func() {
			if err := s.kafka.Run(runCtx); err != nil {
				s.logger.Error("kafka consumer stopped", "error", err)
			}
		}()
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (watchers, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.closeDependencies(ctx)

	s.logger.Info("server stopped")
	return nil
}

// closeDependencies releases everything New opened.
func (s *Server) closeDependencies(ctx context.Context) {
	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.watching {
		s.chainWatcher.Stop()
		s.watching = false
		s.logger.Info("chain watcher stopped")
	}

	if s.kafka != nil {
		if err := s.kafka.Close(); err != nil {
			s.logger.Error("kafka close error", "error", err)
		}
	}

	if s.exporter != nil {
		if err := s.exporter.Close(ctx); err != nil {
			s.logger.Error("graph store close error", "error", err)
		}
	}

	if s.shutdownTracing != nil {
		if err := s.shutdownTracing(ctx); err != nil {
			s.logger.Error("tracing shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}
}

// Close releases dependencies without serving (for tests and tooling).
func (s *Server) Close() {
	s.closeDependencies(context.Background())
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Service returns the scoring service (for tooling that embeds the engine).
func (s *Server) Service() *scoring.Service {
	return s.service
}
