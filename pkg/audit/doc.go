// Package audit records who changed what in MyInner and answers questions about it.
//
// # Overview
//
// Every create, update and delete of a tracked entity type (notes, tags, users, user
// preferences) produces exactly one immutable LogRecord. Records carry the actor, the
// action, the entity identity and a field-level diff. They are written by an Interceptor
// that decorates the entity Repository, so business code never calls the log store.
//
// # Actor attribution
//
// The actor travels on the request context. RequestMiddleware places the authenticated
// user on the context; background jobs run without one and are attributed to the system.
//
//	ctx = audit.WithActor(ctx, audit.Actor{ID: user.ID, Username: user.Username})
//	err := repo.Update(ctx, note) // recorded as an UPDATE by user
//
// # Tracking registry
//
// Only registered entity types are recorded. Registrations exclude fields from the diff
// or mask them; a masked field is reported as changed but its values are replaced by
// MaskSentinel in the stored record.
//
//	registry := audit.NewRegistry()
//	registry.Register(userType, audit.TrackingOptions{MaskFields: []string{"email"}})
//
// # Write failures
//
// With BestEffort (the default) a failed log write is logged and counted, and the
// mutation stands. With Strict the interceptor compensates the mutation and returns
// an error wrapping ErrWriteFailure.
//
// # Querying
//
// QueryService lists, aggregates and exports records for staff users only. Statistics
// and dashboard results may be cached through a StatsCache such as RedisStatsCache.
//
// # Retention
//
// RetentionService deletes records older than the retention window. Without an explicit
// confirmation it only reports what would be deleted. When archiving is enabled the
// records are written to an Archiver first and a failed archive aborts the deletion.
package audit
