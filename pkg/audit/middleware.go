package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/myinner/pkg/auth"
	"github.com/platinummonkey/myinner/pkg/contextkeys"
	"github.com/platinummonkey/myinner/pkg/observability"
)

const (
	// RequestIDHeader carries the request ID in both directions
	RequestIDHeader = "X-Request-ID"

	maxUserAgentLength = 100
)

var (
	loginPaths  = []string{"/api/auth/login/", "/admin/login/"}
	logoutPaths = []string{"/api/auth/logout/"}
)

// RequestMiddleware writes the operational request trail. It never writes to the Store:
// its lines are for operators and are not visible through the QueryService.
type RequestMiddleware struct {
	logger    logrus.FieldLogger
	appLogger logrus.FieldLogger
	prefixes  []string
}

// RequestMiddlewareOption configures a RequestMiddleware
type RequestMiddlewareOption func(*RequestMiddleware)

// WithRequestLogger sets the logger behind the request-scoped entry handlers get from
// observability.FromContext. Defaults to the trail logger.
func WithRequestLogger(logger logrus.FieldLogger) RequestMiddlewareOption {
	return func(m *RequestMiddleware) {
		m.appLogger = logger
	}
}

// NewRequestMiddleware creates the middleware. Requests whose path starts with one of
// the sensitive prefixes get an extra line before the handler runs.
func NewRequestMiddleware(logger logrus.FieldLogger, sensitivePrefixes []string, opts ...RequestMiddlewareOption) *RequestMiddleware {
	m := &RequestMiddleware{
		logger:   logger.WithField("component", "audit"),
		prefixes: sensitivePrefixes,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.appLogger == nil {
		m.appLogger = m.logger
	}
	return m
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

type trailKey struct{}

// requestTrail is shared between Handler and ActorHandler for one request
type requestTrail struct {
	m         *RequestMiddleware
	r         *http.Request
	info      RequestInfo
	actor     string
	announced bool
}

func (t *requestTrail) log() *logrus.Entry {
	return t.m.logger.WithFields(logrus.Fields{
		"method":     t.r.Method,
		"path":       t.r.URL.Path,
		"actor":      t.actor,
		"ip":         t.info.RemoteAddr,
		"request_id": t.info.RequestID,
	})
}

// announce writes the sensitive, login and logout lines once, as soon as the actor is
// known or the request ends without one
func (t *requestTrail) announce() {
	if t.announced {
		return
	}
	t.announced = true

	path := t.r.URL.Path
	log := t.log()
	if t.m.isSensitive(path) {
		log.WithField("user_agent", truncate(t.info.UserAgent, maxUserAgentLength)).Info("sensitive request")
	}
	if t.r.Method == http.MethodPost && matchesPath(path, loginPaths) {
		log.Info("login attempt")
	}
	if matchesPath(path, logoutPaths) {
		log.Info("logout")
	}
}

// stamp makes the authenticated user the Actor of ctx
func (t *requestTrail) stamp(ctx context.Context) context.Context {
	user := auth.UserFromContext(ctx)
	if user == nil {
		return ctx
	}
	t.actor = user.Username
	ctx = WithActor(ctx, Actor{ID: user.ID, Username: user.Username})
	return observability.WithLogger(ctx, observability.FromContext(ctx).WithField("user_id", user.ID))
}

// Handler wraps next and must be the outermost layer, so that unmatched routes and
// requests rejected by authentication still get a line. A user already on the request
// context becomes the Actor immediately; otherwise ActorHandler sets it after
// authentication.
func (m *RequestMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		trail := &requestTrail{
			m: m,
			r: r,
			info: RequestInfo{
				RemoteAddr: ClientIP(r),
				UserAgent:  r.UserAgent(),
				RequestID:  requestID,
			},
			actor: "anonymous",
		}

		ctx := WithRequestInfo(r.Context(), trail.info)
		ctx = contextkeys.WithRequestID(ctx, requestID)
		ctx = observability.WithLogger(ctx, m.appLogger.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}))
		ctx = context.WithValue(ctx, trailKey{}, trail)
		if auth.UserFromContext(ctx) != nil {
			ctx = trail.stamp(ctx)
			trail.announce()
		}

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		defer func() {
			if rec := recover(); rec != nil {
				trail.announce()
				trail.log().WithField("panic", rec).Error("request failed with unhandled panic")
				panic(rec)
			}
		}()

		next.ServeHTTP(wrapped, r.WithContext(ctx))

		trail.announce()
		if wrapped.statusCode >= http.StatusBadRequest || isMutation(r.Method) {
			entry := trail.log().WithFields(logrus.Fields{
				"status":      wrapped.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			if wrapped.statusCode >= http.StatusBadRequest {
				entry.Warn("request completed with error status")
			} else {
				entry.Info("request completed")
			}
		}
	})
}

// ActorHandler runs after authentication, inside Handler. It makes the authenticated
// user the Actor of every mutation made while serving the request.
func (m *RequestMiddleware) ActorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		trail, ok := ctx.Value(trailKey{}).(*requestTrail)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		ctx = trail.stamp(ctx)
		trail.announce()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *RequestMiddleware) isSensitive(path string) bool {
	for _, prefix := range m.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// ClientIP returns the originating client address: the first X-Forwarded-For entry,
// then X-Real-IP, then the host part of the connection's remote address
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func matchesPath(path string, candidates []string) bool {
	for _, candidate := range candidates {
		if path == candidate {
			return true
		}
	}
	return false
}

// truncate shortens s to at most n characters
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
