package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// ParseJSON decodes JSON from the request body into the destination
func ParseJSON(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes error response on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// ParsePathString extracts a string path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return "", fmt.Errorf("missing path parameter: %s", key)
	}
	return str, nil
}

// QueryValue returns the first non-empty value among the given query keys.
// Later keys act as aliases of the first.
func QueryValue(r *http.Request, keys ...string) string {
	query := r.URL.Query()
	for _, key := range keys {
		if val := strings.TrimSpace(query.Get(key)); val != "" {
			return val
		}
	}
	return ""
}

// QueryInt parses an integer query parameter. Missing or malformed values yield defaultVal.
func QueryInt(r *http.Request, key string, defaultVal int) int {
	val, err := strconv.Atoi(QueryValue(r, key))
	if err != nil {
		return defaultVal
	}
	return val
}

// QueryInt64 parses an int64 query parameter from the first present key.
// ok is false when the value is missing or malformed.
func QueryInt64(r *http.Request, keys ...string) (val int64, ok bool) {
	str := QueryValue(r, keys...)
	if str == "" {
		return 0, false
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, false
	}
	return val, true
}

// timeLayouts are the accepted ISO-8601 forms, most specific first
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 timestamp or date. Values without a zone are UTC.
func ParseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// QueryTime parses a timestamp query parameter from the first present key.
// ok is false when the value is missing or not ISO-8601.
func QueryTime(r *http.Request, keys ...string) (t time.Time, ok bool) {
	str := QueryValue(r, keys...)
	if str == "" {
		return time.Time{}, false
	}
	return ParseTime(str)
}
