// Package config provides application configuration management from environment variables.
//
// # Configuration Structure
//
// Server settings:
//
//	MYINNER_HOST="0.0.0.0"
//	MYINNER_PORT="8000"
//	MYINNER_READ_TIMEOUT="15s"
//	MYINNER_SHUTDOWN_TIMEOUT="30s"
//
// Storage settings:
//
//	MYINNER_AUDIT_BACKEND="postgres"  # postgres or memory
//	MYINNER_DATABASE_URL="postgres://localhost/myinner?sslmode=disable"
//	MYINNER_ENTITY_DB_PATH="/var/lib/myinner/entities.db"
//
// Audit settings:
//
//	MYINNER_AUDIT_RETAIN_DAYS="365"
//	MYINNER_AUDIT_SENSITIVE_PREFIXES="/api/auth/,/api/users/,/api/notes/"
//	MYINNER_AUDIT_WRITE_FAILURE_POLICY="best_effort"  # or strict
//	MYINNER_AUDIT_REGISTRY="/etc/myinner/registry.yaml"
//	MYINNER_AUDIT_CLEANUP_SCHEDULE="0 3 * * *"
//
// Archive settings:
//
//	MYINNER_ARCHIVE_ENABLED="true"
//	MYINNER_ARCHIVE_TYPE="s3"  # file or s3
//	MYINNER_S3_BUCKET="myinner-audit"
//
// Cache settings:
//
//	MYINNER_REDIS_URL="redis://localhost:6379/0"
//	MYINNER_STATS_CACHE_TTL="1m"
//
// # Tracking registry
//
// The optional registry file extends or overrides the built-in tracked entity types.
// WatchRegistry reloads it on change; a broken file never clears the active registrations.
package config
