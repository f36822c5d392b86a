// Package api assembles the HTTP server: stores, the audit interceptor, middleware
// and the routes of the audit and model handlers.
//
// Middleware runs in this order on every matched route:
//
//  1. HTTP metrics
//  2. Bearer token authentication (optional; RequireUser guards the model routes)
//  3. Rate limiting per user or client IP
//  4. Request auditing, which scopes the authenticated user as the actor
//
// OpenLogStore and NewRetentionService are shared with the retention command.
package api
