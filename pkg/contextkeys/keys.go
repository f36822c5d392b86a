// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/myinner/pkg/contextkeys"
//	ctx = context.WithValue(ctx, contextkeys.UserKey, user)
//	user := ctx.Value(contextkeys.UserKey).(*auth.User)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// UserKey contains *auth.User
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: audit query service, notes handlers
	// Type: *auth.User
	UserKey Key = "auth_user"

	// ActorKey contains audit.Actor
	// Set by: audit.RequestMiddleware.ActorHandler (pkg/audit/middleware.go), after authentication
	// Used by: audit.Interceptor when writing log records
	// Type: audit.Actor
	ActorKey Key = "audit_actor"

	// RequestInfoKey contains audit.RequestInfo (client IP, user agent, request ID)
	// Set by: audit.RequestMiddleware
	// Used by: audit.Interceptor when writing log records
	// Type: audit.RequestInfo
	RequestInfoKey Key = "audit_request_info"

	// RequestIDKey contains request ID string (UUID)
	// Set by: audit.RequestMiddleware
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *logrus.Entry
	// Set by: audit.RequestMiddleware via observability.WithLogger
	// Used by: Handlers that need structured logging with request context
	// Type: *logrus.Entry
	LoggerKey Key = "logger"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
