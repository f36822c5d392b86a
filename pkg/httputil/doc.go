// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
//
// Error responses always have the shape {"error": "<message>"}:
//
//	httputil.WriteUnauthorized(w, "authentication required")
//	httputil.WriteForbidden(w, "administrator privilege required")
//
// Query helpers are lenient: malformed values are reported as absent so that list
// endpoints can ignore a bad filter instead of failing the request.
//
//	actorID, ok := httputil.QueryInt64(r, "actor_id", "user_id")
//	from, ok := httputil.QueryTime(r, "timestamp_from", "date_from")
package httputil
