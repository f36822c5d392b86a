package observability

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/myinner/pkg/contextkeys"
)

// NewLogger creates a JSON logrus logger at the given level ("debug", "info", "warn", "error").
// Unknown levels fall back to info.
func NewLogger(level string, output io.Writer) *logrus.Logger {
	if output == nil {
		output = os.Stdout
	}

	logger := logrus.New()
	logger.SetOutput(output)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(ParseLevel(level))
	return logger
}

// NewTextLogger creates a logrus logger with the human-readable text formatter.
// Used for operational traces that are read by people rather than collectors.
func NewTextLogger(level string, output io.Writer) *logrus.Logger {
	logger := NewLogger(level, output)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})
	return logger
}

// ParseLevel parses a log level name, defaulting to info
func ParseLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

// WithLogger adds a logger entry to the context
func WithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, contextkeys.LoggerKey, entry)
}

// FromContext returns the context logger decorated with the request ID, or a
// standard logger entry when none is attached
func FromContext(ctx context.Context) *logrus.Entry {
	entry, ok := ctx.Value(contextkeys.LoggerKey).(*logrus.Entry)
	if !ok {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}

	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}

	return entry
}

// FromContextOr returns the request-scoped entry when one is attached, else fallback
func FromContextOr(ctx context.Context, fallback logrus.FieldLogger) logrus.FieldLogger {
	if _, ok := ctx.Value(contextkeys.LoggerKey).(*logrus.Entry); ok {
		return FromContext(ctx)
	}
	return fallback
}
