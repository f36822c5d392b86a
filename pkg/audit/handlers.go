package audit

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/myinner/pkg/httputil"
	"github.com/platinummonkey/myinner/pkg/observability"
)

// Handlers provides HTTP handlers for the audit log API
type Handlers struct {
	query     *QueryService
	retention *RetentionService
	logger    logrus.FieldLogger
}

// NewHandlers creates new audit handlers
func NewHandlers(query *QueryService, retention *RetentionService, logger logrus.FieldLogger) *Handlers {
	return &Handlers{
		query:     query,
		retention: retention,
		logger:    logger,
	}
}

// RegisterRoutes registers audit log routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/audit/logs/", h.listLogs).Methods("GET")
	router.HandleFunc("/api/audit/logs/statistics/", h.statistics).Methods("GET")
	router.HandleFunc("/api/audit/logs/user_activity/", h.userActivity).Methods("GET")
	router.HandleFunc("/api/audit/logs/export/", h.exportLogs).Methods("GET")
	router.HandleFunc("/api/audit/logs/{id:[0-9]+}/", h.getLog).Methods("GET")
	router.HandleFunc("/api/audit/dashboard/", h.dashboard).Methods("GET")
	router.HandleFunc("/api/audit/cleanup/", h.cleanup).Methods("POST")
}

// listLogs handles GET /api/audit/logs/
func (h *Handlers) listLogs(w http.ResponseWriter, r *http.Request) {
	page, err := h.query.List(r.Context(), ParseFilter(r),
		httputil.QueryInt(r, "page", 1),
		httputil.QueryInt(r, "page_size", DefaultPageSize),
	)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, page)
}

// getLog handles GET /api/audit/logs/{id}/
func (h *Handlers) getLog(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid log record ID")
		return
	}

	view, err := h.query.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, view)
}

// statistics handles GET /api/audit/logs/statistics/
func (h *Handlers) statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.query.Statistics(r.Context(), ParseFilter(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, stats)
}

// userActivity handles GET /api/audit/logs/user_activity/?user_id=
func (h *Handlers) userActivity(w http.ResponseWriter, r *http.Request) {
	var actorID *int64
	if id, ok := httputil.QueryInt64(r, "user_id", "actor_id"); ok {
		actorID = &id
	}

	activity, err := h.query.UserActivity(r.Context(), actorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, activity)
}

// exportLogs handles GET /api/audit/logs/export/?format=
func (h *Handlers) exportLogs(w http.ResponseWriter, r *http.Request) {
	format := ExportFormat(strings.ToLower(httputil.QueryValue(r, "format")))
	if format == "" {
		format = ExportFormatJSON
	}

	filter := ParseFilter(r)
	filter.Limit = httputil.QueryInt(r, "limit", MaxExportRecords)

	data, err := h.query.Export(r.Context(), filter, format)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename=audit-logs."+string(format))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// dashboard handles GET /api/audit/dashboard/?days=
func (h *Handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	result, err := h.query.Dashboard(r.Context(), httputil.QueryInt(r, "days", DefaultDashboardDays))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

type cleanupRequest struct {
	Confirm bool `json:"confirm"`
}

// cleanup handles POST /api/audit/cleanup/. Only {"confirm": true} deletes;
// an empty or unreadable body previews.
func (h *Handlers) cleanup(w http.ResponseWriter, r *http.Request) {
	if err := authorize(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}

	var req cleanupRequest
	if r.Body != nil {
		if err := httputil.ParseJSON(r, &req); err != nil {
			req.Confirm = false
		}
	}

	result, err := h.retention.Execute(r.Context(), req.Confirm)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// writeError maps service errors to HTTP status codes
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		httputil.WriteUnauthorized(w, "Authentication credentials were not provided.")
	case errors.Is(err, ErrForbidden):
		httputil.WriteForbidden(w, "You do not have permission to perform this action.")
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFoundError(w, "User not found")
	case errors.Is(err, ErrRecordNotFound):
		httputil.WriteNotFoundError(w, "Log record not found")
	case errors.Is(err, ErrBadRequest):
		httputil.WriteBadRequest(w, badRequestMessage(err))
	default:
		observability.FromContextOr(r.Context(), h.logger).WithError(err).WithField("path", r.URL.Path).Error("audit request failed")
		httputil.WriteInternalError(w)
	}
}

// badRequestMessage strips the sentinel prefix from a wrapped ErrBadRequest
func badRequestMessage(err error) string {
	msg := err.Error()
	if detail, ok := strings.CutPrefix(msg, ErrBadRequest.Error()+": "); ok {
		return detail
	}
	return msg
}

// ParseFilter reads the list filters from the query string. Malformed values are ignored.
func ParseFilter(r *http.Request) SearchFilter {
	var filter SearchFilter

	if id, ok := httputil.QueryInt64(r, "actor_id", "user_id"); ok {
		filter.ActorID = &id
	}
	if value := httputil.QueryValue(r, "action"); value != "" {
		if action, err := ParseAction(value); err == nil {
			filter.Actions = []Action{action}
		}
	}
	filter.EntityType = httputil.QueryValue(r, "entity_type", "model")
	if from, ok := httputil.QueryTime(r, "timestamp_from", "date_from"); ok {
		filter.From = &from
	}
	if to, ok := httputil.QueryTime(r, "timestamp_to", "date_to"); ok {
		filter.To = &to
	}

	return filter
}
