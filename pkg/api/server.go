package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/myinner/pkg/async"
	"github.com/platinummonkey/myinner/pkg/audit"
	"github.com/platinummonkey/myinner/pkg/auth"
	"github.com/platinummonkey/myinner/pkg/config"
	"github.com/platinummonkey/myinner/pkg/httputil"
	"github.com/platinummonkey/myinner/pkg/middleware"
	"github.com/platinummonkey/myinner/pkg/models"
	"github.com/platinummonkey/myinner/pkg/observability"
	"github.com/platinummonkey/myinner/pkg/storage"
	"github.com/platinummonkey/myinner/pkg/storage/postgres"
)

// Server is the application's HTTP API
type Server struct {
	cfg    *config.Config
	logger      logrus.FieldLogger
	traceLogger logrus.FieldLogger
	router      *mux.Router
	handler     http.Handler

	logStore audit.Store
	logDB    *sql.DB
	entities *storage.SQLiteStore
	repo     *audit.Interceptor
	registry *audit.Registry
	redis    *redis.Client

	metrics      *observability.Metrics
	promRegistry *prometheus.Registry

	tokens    *auth.TokenManager
	directory *models.UserDirectory
	limiters  []*middleware.RateLimiter

	bootstrapToken string
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithTraceLogger sets the logger of the operational request trail. Defaults to a text
// logger on stdout.
func WithTraceLogger(logger logrus.FieldLogger) ServerOption {
	return func(s *Server) {
		s.traceLogger = logger
	}
}

// NewServer opens the stores and builds the router. Close releases what it opened.
func NewServer(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger, opts ...ServerOption) (*Server, error) {
	s := &Server{
		cfg:          cfg,
		logger:       logger,
		router:       mux.NewRouter(),
		registry:     audit.NewRegistry(),
		tokens:       auth.NewTokenManager(),
		promRegistry: prometheus.NewRegistry(),
	}
	s.metrics = observability.NewMetrics(s.promRegistry)
	for _, opt := range opts {
		opt(s)
	}
	if s.traceLogger == nil {
		s.traceLogger = observability.NewTextLogger(cfg.Observability.LogLevel, nil)
	}

	if err := s.openStores(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.loadRegistry(); err != nil {
		s.Close()
		return nil, err
	}

	s.repo = audit.NewInterceptor(s.entities, s.logStore, s.registry,
		audit.WithWriteFailurePolicy(cfg.Audit.WriteFailurePolicy),
		audit.WithInterceptorLogger(logger),
		audit.WithInterceptorMetrics(s.metrics),
	)
	s.directory = models.NewUserDirectory(s.entities, cfg.Cache.UserCacheSize, cfg.Cache.UserCacheTTL)

	if err := s.setupRoutes(ctx); err != nil {
		s.Close()
		return nil, err
	}

	if cfg.Auth.BootstrapAdmin != "" {
		if err := s.bootstrapAdmin(ctx, cfg.Auth.BootstrapAdmin); err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

func (s *Server) openStores(ctx context.Context) error {
	var err error
	s.logStore, s.logDB, err = OpenLogStore(ctx, s.cfg)
	if err != nil {
		return fmt.Errorf("failed to open log store: %w", err)
	}

	s.entities, err = storage.OpenSQLite(ctx, s.cfg.Database.EntityDBPath)
	if err != nil {
		return err
	}
	models.RegisterTypes(s.entities)

	if s.cfg.Cache.RedisURL != "" {
		s.redis, err = postgres.NewRedisClient(ctx, postgres.RedisConfig{URL: s.cfg.Cache.RedisURL})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) loadRegistry() error {
	base := models.DefaultRegistrations()
	if s.cfg.Audit.RegistryPath == "" {
		s.registry.Replace(base)
		return nil
	}
	if err := config.ApplyRegistryFile(s.cfg.Audit.RegistryPath, s.registry, base); err != nil {
		return fmt.Errorf("failed to load audit registry: %w", err)
	}
	return nil
}

// setupRoutes configures the middleware chain and all API routes. The request trail
// wraps the whole router so unmatched and rejected requests are logged too.
func (s *Server) setupRoutes(ctx context.Context) error {
	trail := audit.NewRequestMiddleware(s.traceLogger, s.cfg.Audit.SensitivePrefixes,
		audit.WithRequestLogger(s.logger))
	s.handler = trail.Handler(s.router)

	s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	s.router.Use(middleware.NewAuthMiddleware(s.tokens, s.directory, true, s.logger).Handler)
	s.router.Use(trail.ActorHandler)
	if s.cfg.RateLimit.Enabled {
		s.router.Use(s.rateLimitMiddleware().Handler)
	}

	archiver, err := NewArchiver(ctx, s.cfg.Archive)
	if err != nil {
		return err
	}

	checker := observability.NewHealthChecker(s.logDB, s.redis)
	checker.AddDatabase("entities", s.entities.DB())
	checker.AddCheck("archive", archiveHealthCheck(archiver))
	observability.RegisterHealthRoutes(s.router, checker)
	if s.cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(s.router, s.promRegistry)
	}

	queryOpts := []audit.QueryServiceOption{audit.WithQueryLogger(s.logger)}
	if s.redis != nil {
		queryOpts = append(queryOpts, audit.WithStatsCache(audit.NewRedisStatsCache(s.redis, s.cfg.Cache.StatsTTL, s.metrics)))
	}
	query := audit.NewQueryService(s.logStore, s.directory, queryOpts...)

	retention := newRetentionService(s.cfg, s.logStore, archiver, s.metrics, s.logger)

	audit.NewHandlers(query, retention, s.logger).RegisterRoutes(s.router)
	s.router.HandleFunc("/api/auth/logout/", s.logout).Methods("POST")
	models.NewHandlers(s.repo, s.entities, s.directory, s.logger).RegisterRoutes(s.router)
	return nil
}

// rateLimitMiddleware shares limits through Redis when it is configured
func (s *Server) rateLimitMiddleware() *middleware.RateLimitMiddleware {
	userConfig := &middleware.RateLimitConfig{
		RequestsPerWindow: s.cfg.RateLimit.UserPerMinute,
		WindowDuration:    time.Minute,
		BurstSize:         s.cfg.RateLimit.Burst,
	}
	anonymousConfig := &middleware.RateLimitConfig{
		RequestsPerWindow: s.cfg.RateLimit.AnonymousPerMinute,
		WindowDuration:    time.Minute,
		BurstSize:         s.cfg.RateLimit.Burst,
	}

	if s.redis != nil {
		return middleware.NewRateLimitMiddleware(
			middleware.NewRedisRateLimiter(s.redis, userConfig, "ratelimit:user"),
			middleware.NewRedisRateLimiter(s.redis, anonymousConfig, "ratelimit:anon"),
			s.logger,
		)
	}

	userLimiter := middleware.NewRateLimiter(userConfig)
	anonymousLimiter := middleware.NewRateLimiter(anonymousConfig)
	s.limiters = append(s.limiters, userLimiter, anonymousLimiter)
	return middleware.NewRateLimitMiddleware(userLimiter, anonymousLimiter, s.logger)
}

// bootstrapAdmin makes sure the named staff account exists and issues a token for it
func (s *Server) bootstrapAdmin(ctx context.Context, username string) error {
	entities, err := s.entities.List(ctx, models.UserType)
	if err != nil {
		return err
	}

	var admin *models.CustomUser
	for _, e := range entities {
		if user, ok := e.(*models.CustomUser); ok && strings.EqualFold(user.Username, username) {
			admin = user
			break
		}
	}

	switch {
	case admin == nil:
		now := time.Now().UTC()
		admin = &models.CustomUser{Username: username, IsStaff: true, IsActive: true, CreatedAt: now, UpdatedAt: now}
		if err := s.repo.Create(ctx, admin); err != nil {
			return fmt.Errorf("failed to create bootstrap admin: %w", err)
		}
	case !admin.IsStaff || !admin.IsActive:
		admin.IsStaff, admin.IsActive = true, true
		admin.UpdatedAt = time.Now().UTC()
		if err := s.repo.Update(ctx, admin); err != nil {
			return fmt.Errorf("failed to promote bootstrap admin: %w", err)
		}
	}

	var expiresAt *time.Time
	if s.cfg.Auth.TokenTTL > 0 {
		expiry := time.Now().Add(s.cfg.Auth.TokenTTL)
		expiresAt = &expiry
	}
	_, token, err := s.tokens.CreateToken(admin.ID, "bootstrap", expiresAt)
	if err != nil {
		return fmt.Errorf("failed to issue bootstrap token: %w", err)
	}
	s.bootstrapToken = token

	s.logger.WithFields(logrus.Fields{
		"username": admin.Username,
		"user_id":  admin.ID,
	}).Info("bootstrap admin ready")
	return nil
}

// BootstrapToken returns the token issued to the bootstrap admin, if any
func (s *Server) BootstrapToken() string {
	return s.bootstrapToken
}

// Registry returns the tracked entity types
func (s *Server) Registry() *audit.Registry {
	return s.registry
}

// Start runs the background maintenance tasks until ctx is done
func (s *Server) Start(ctx context.Context) {
	for _, limiter := range s.limiters {
		limiter.StartCleanup(ctx)
	}

	if path := s.cfg.Audit.RegistryPath; path != "" {
		async.Go(ctx, s.logger, "audit registry watcher", func(ctx context.Context) error {
			return config.WatchRegistry(ctx, path, s.registry, models.DefaultRegistrations(), s.logger)
		})
	}

	async.Every(ctx, s.logger, 30*time.Second, "maintenance", func(ctx context.Context) error {
		if s.logDB != nil {
			s.metrics.UpdateDBStats(s.logDB.Stats())
		}
		if removed := s.tokens.CleanupExpiredTokens(); removed > 0 {
			s.logger.WithField("removed", removed).Debug("expired tokens removed")
		}
		return nil
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// logout handles POST /api/auth/logout/ by revoking the presented bearer token
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	_, token, _ := strings.Cut(r.Header.Get("Authorization"), " ")
	apiToken, err := s.tokens.ValidateToken(strings.TrimSpace(token))
	if err != nil {
		httputil.WriteUnauthorized(w, "Authentication credentials were not provided.")
		return
	}
	if err := s.tokens.RevokeToken(apiToken.ID); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to revoke token")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"detail": "Successfully logged out."})
}

// Close releases the stores
func (s *Server) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.redis != nil {
		record(s.redis.Close())
	}
	if s.entities != nil {
		record(s.entities.Close())
	}
	if s.logDB != nil {
		record(s.logDB.Close())
	}
	return firstErr
}
