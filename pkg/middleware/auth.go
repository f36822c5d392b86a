package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/myinner/pkg/auth"
	"github.com/platinummonkey/myinner/pkg/httputil"
)

// TokenValidator resolves a bearer token to its token record
type TokenValidator interface {
	ValidateToken(token string) (*auth.APIToken, error)
}

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	tokens   TokenValidator
	users    auth.UserLookup
	optional bool // If true, allow requests without auth
	logger   logrus.FieldLogger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokens TokenValidator, users auth.UserLookup, optional bool, logger logrus.FieldLogger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:   tokens,
		users:    users,
		optional: optional,
		logger:   logger,
	}
}

// Handler wraps an HTTP handler with authentication. A valid token puts its active
// user on the request context; see auth.UserFromContext.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		apiToken, err := m.tokens.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		user, err := m.users.GetUser(r.Context(), apiToken.UserID)
		if errors.Is(err, auth.ErrUserNotFound) {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		} else if err != nil {
			m.logger.WithError(err).WithField("user_id", apiToken.UserID).Error("failed to load token user")
			httputil.WriteInternalError(w)
			return
		}
		if !user.IsActive {
			httputil.WriteUnauthorized(w, "user account is disabled")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

// RequireUser rejects anonymous requests with 401
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.UserFromContext(r.Context()) == nil {
			httputil.WriteUnauthorized(w, "Authentication credentials were not provided.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
