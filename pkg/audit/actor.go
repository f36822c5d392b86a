package audit

import (
	"context"

	"github.com/platinummonkey/myinner/pkg/contextkeys"
)

// Actor is the identity a mutation is attributed to
type Actor struct {
	ID       int64
	Username string
}

// SystemActor is used when no authenticated actor drives the mutation
var SystemActor = Actor{}

// IsSystem reports whether the actor is the system actor
func (a Actor) IsSystem() bool {
	return a.ID == 0
}

// RequestInfo holds request metadata attached to log records
type RequestInfo struct {
	RemoteAddr string
	UserAgent  string
	RequestID  string
}

// WithActor scopes the actor to ctx. Every mutation performed with the returned
// context, or any context derived from it, is attributed to actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextkeys.ActorKey, actor)
}

// ActorFromContext returns the actor scoped to ctx, or SystemActor if none is set
func ActorFromContext(ctx context.Context) Actor {
	if actor, ok := ctx.Value(contextkeys.ActorKey).(Actor); ok {
		return actor
	}
	return SystemActor
}

// WithRequestInfo attaches request metadata to ctx
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, contextkeys.RequestInfoKey, info)
}

// RequestInfoFromContext returns the request metadata attached to ctx
func RequestInfoFromContext(ctx context.Context) RequestInfo {
	if info, ok := ctx.Value(contextkeys.RequestInfoKey).(RequestInfo); ok {
		return info
	}
	return RequestInfo{}
}

// stampRecord copies actor and request metadata from ctx onto the record
func stampRecord(ctx context.Context, record *LogRecord) {
	if actor := ActorFromContext(ctx); !actor.IsSystem() {
		id := actor.ID
		record.ActorID = &id
		record.ActorUsername = actor.Username
	}

	info := RequestInfoFromContext(ctx)
	record.RemoteAddr = info.RemoteAddr
	if info.RequestID != "" {
		if record.AdditionalData == nil {
			record.AdditionalData = make(map[string]any)
		}
		record.AdditionalData["request_id"] = info.RequestID
	}
}
