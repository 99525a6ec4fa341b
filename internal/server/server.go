// Package server sets up the HTTP server with all routes
package server

import (
	"context"
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

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/vendora/paycore/internal/config"
	"github.com/vendora/paycore/internal/consistency"
	"github.com/vendora/paycore/internal/creditterm"
	"github.com/vendora/paycore/internal/idgen"
	"github.com/vendora/paycore/internal/logging"
	"github.com/vendora/paycore/internal/metrics"
	"github.com/vendora/paycore/internal/payoutrail"
	"github.com/vendora/paycore/internal/traces"
	"github.com/vendora/paycore/internal/validation"
	"github.com/vendora/paycore/internal/wallet"
	"github.com/vendora/paycore/internal/withdrawal"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	coordinator *consistency.Coordinator

	wallets     *wallet.Service
	withdrawals *withdrawal.Service
	creditTerms *creditterm.Service
	rail        *payoutrail.Service

	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	tracesDone   func(context.Context) error
	cancelRunCtx context.CancelFunc

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

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:         cfg,
		logger:      logging.New(cfg.LogLevel, "json"),
		coordinator: consistency.NewCoordinator(),
	}

	for _, opt := range opts {
		opt(s)
	}

	var (
		walletStore     wallet.Store
		withdrawalStore withdrawal.Store
		creditStore     creditterm.Store
		directory       payoutrail.Directory
	)

	// Postgres if DATABASE_URL is set, otherwise in-memory.
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db

		ctx := context.Background()

		walletPg := wallet.NewPostgresStore(db)
		if err := walletPg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("wallet migration failed: %w", err)
		}
		withdrawalPg := withdrawal.NewPostgresStore(db)
		if err := withdrawalPg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("withdrawal migration failed: %w", err)
		}
		creditPg := creditterm.NewPostgresStore(db)
		if err := creditPg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("credit-terms migration failed: %w", err)
		}
		directoryPg := payoutrail.NewPostgresDirectory(db)
		if err := directoryPg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("connect-accounts migration failed: %w", err)
		}

		walletStore = walletPg
		withdrawalStore = withdrawalPg
		creditStore = creditPg
		directory = directoryPg
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		walletStore = wallet.NewMemoryStore()
		withdrawalStore = withdrawal.NewMemoryStore()
		creditStore = creditterm.NewMemoryStore()
		directory = payoutrail.NewMemoryDirectory()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Payout rail: Stripe Connect in production, a fake locally.
	var rail payoutrail.Rail
	if cfg.StripeSecretKey != "" {
		rail = payoutrail.NewStripeRail(cfg.StripeSecretKey)
		s.logger.Info("payout rail enabled (stripe connect)")
	} else {
		rail = payoutrail.NewFakeRail()
		s.logger.Info("payout rail in demo mode (fake rail)")
	}
	s.rail = payoutrail.NewService(rail, directory, cfg.OnboardingReturnURL, cfg.OnboardingRefreshURL)

	s.wallets = wallet.NewService(walletStore, s.coordinator).
		WithAccountProvider(&connectAccountProvider{s.rail})
	s.withdrawals = withdrawal.NewService(withdrawalStore, s.wallets, s.rail,
		s.coordinator, cfg.MinWithdrawal, cfg.DefaultCurrency)
	s.creditTerms = creditterm.NewService(creditStore, s.coordinator)

	// Tracing (no-op when no endpoint is configured).
	tracesDone, err := traces.Init(context.Background(), cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("tracing disabled", "error", err)
	} else {
		s.tracesDone = tracesDone
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// connectAccountProvider exposes the rail directory to the wallet read
// model without a package dependency from wallet to payoutrail.
type connectAccountProvider struct {
	rail *payoutrail.Service
}

func (p *connectAccountProvider) ConnectAccountFor(ctx context.Context, accountID string) (*wallet.ConnectAccount, error) {
	acct, err := p.rail.Account(ctx, accountID)
	if err != nil {
		if errors.Is(err, payoutrail.ErrAccountNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &wallet.ConnectAccount{
		AccountID:      acct.AccountID,
		RailAccountID:  acct.RailAccountID,
		Status:         string(acct.Status),
		ChargesEnabled: acct.ChargesEnabled,
		PayoutsEnabled: acct.PayoutsEnabled,
	}, nil
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

	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Honor an existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.New()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

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

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// adminMiddleware guards the review-queue and internal endpoints with
// a shared secret header. In development with no secret configured the
// guard is open, matching the demo-mode storage.
func (s *Server) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret == "" {
			if s.cfg.IsDevelopment() {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "admin_disabled",
				"message": "Admin endpoints require ADMIN_SECRET to be configured",
			})
			return
		}
		if c.GetHeader("X-Admin-Secret") != s.cfg.AdminSecret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid admin credentials",
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

	v1 := s.router.Group("/v1")

	walletHandler := wallet.NewHandler(s.wallets, s.cfg.RecentTransactions)
	withdrawalHandler := withdrawal.NewHandler(s.withdrawals)
	creditHandler := creditterm.NewHandler(s.creditTerms)
	railHandler := payoutrail.NewHandler(s.rail)
	webhookHandler := payoutrail.NewWebhookHandler(s.rail, s.withdrawals, s.cfg.StripeWebhookSecret)

	// Seller-facing routes
	walletHandler.RegisterRoutes(v1)
	withdrawalHandler.RegisterRoutes(v1)
	creditHandler.RegisterRoutes(v1)
	railHandler.RegisterRoutes(v1)

	// Rail callbacks (authenticated by event signature, not admin secret)
	webhookHandler.RegisterRoutes(v1)

	// Admin / internal-service routes
	admin := v1.Group("")
	admin.Use(s.adminMiddleware())
	walletHandler.RegisterAdminRoutes(admin)
	withdrawalHandler.RegisterAdminRoutes(admin)
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "in-memory"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
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

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

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

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.tracesDone != nil {
		if err := s.tracesDone(ctx); err != nil {
			s.logger.Error("trace exporter shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
