// Package observability provides structured logging, Prometheus metrics, health checks,
// tracing setup and graceful shutdown for MyInner services.
//
// # Logging
//
// Loggers are logrus loggers. Services log JSON; the request audit trail uses the text
// formatter because it is read by operators.
//
//	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
//	ctx = observability.WithLogger(ctx, logger.WithField("component", "api"))
//	observability.FromContext(ctx).Info("request handled")
//
// # Metrics
//
// All collectors are registered on an explicit registry and exposed on /metrics. A nil
// *Metrics records nothing, so components accept it as an optional dependency.
//
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordAuditWrite("update", "notes.Note")
//
// # Health checks
//
//	checker := observability.NewHealthChecker(auditDB, redisClient)
//	checker.AddDatabase("entities", entityDB)
//	observability.RegisterHealthRoutes(router, checker)
//
// Database failures make the service unhealthy; a Redis failure only degrades it.
package observability
