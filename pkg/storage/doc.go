// Package storage persists the application's entities.
//
// SQLiteStore keeps every entity as a JSON payload keyed by entity type and a per-type
// integer identifier. It implements audit.Repository, so the audit interceptor can wrap
// it directly:
//
//	store, err := storage.OpenSQLite(ctx, "myinner.db")
//	models.RegisterTypes(store)
//	repo := audit.NewInterceptor(store, logStore, registry)
//
// Identifiers come from a per-type sequence and are never reused, which keeps log
// records about a deleted entity unambiguous. Restore writes an entity back under its
// original identifier.
//
// The postgres subpackage opens the shared infrastructure clients: the PostgreSQL pool
// used by the audit log store, the Redis client and the S3 client used for archives.
package storage
