// Package models defines the application's notes, tags and accounts, and the
// HTTP handlers that mutate them.
//
// Every model implements audit.Entity. RegisterTypes makes them storable in a
// storage.SQLiteStore and DefaultRegistrations tracks all of them, masking the
// fields that are encrypted at rest:
//
//	store, _ := storage.OpenSQLite(ctx, "myinner.db")
//	models.RegisterTypes(store)
//	registry.Replace(models.DefaultRegistrations())
//	repo := audit.NewInterceptor(store, logStore, registry)
//	models.NewHandlers(repo, store, models.NewUserDirectory(store, 1024, 5*time.Minute), logger).RegisterRoutes(router)
package models
