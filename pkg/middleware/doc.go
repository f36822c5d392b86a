// Package middleware provides HTTP middleware for authentication and rate limiting.
//
// # Middleware Components
//
// AuthMiddleware: bearer token authentication
//
//	authMW := middleware.NewAuthMiddleware(tokenManager, users, true, logger)
//	router.Use(authMW.Handler)
//	// Validates "Authorization: Bearer <token>" and puts the token's user on the
//	// request context, where the audit middleware picks it up as the actor
//
// RequireUser: rejects anonymous requests with 401
//
// RateLimitMiddleware: per-user and per-client-IP limits
//
//	userLimiter := middleware.NewRedisRateLimiter(redisClient, middleware.PerUserRateLimitConfig(), "ratelimit:user")
//	anonLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
//	router.Use(middleware.NewRateLimitMiddleware(userLimiter, anonLimiter, logger).Handler)
//
// # Rate Limiting
//
// Default (Anonymous): 100 req/min, 10 burst
// Per-User: 1000 req/min, 50 burst
//
// RateLimiter is an in-process token bucket. RedisRateLimiter counts fixed windows in
// Redis so that several instances share one limit. Limiter errors fail open.
//
// # Related Packages
//
//   - pkg/auth: Token validation and the user context
//   - pkg/audit: Request audit middleware, which must run after AuthMiddleware
package middleware
