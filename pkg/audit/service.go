package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/myinner/pkg/auth"
)

const (
	// DefaultPageSize is the page size used when none is requested
	DefaultPageSize = 50

	// MaxPageSize caps the requested page size
	MaxPageSize = 500

	// MaxExportRecords caps a single export
	MaxExportRecords = 10000

	// DefaultDashboardDays is the dashboard window used when none is requested
	DefaultDashboardDays = 30

	statisticsWindow   = 30 * 24 * time.Hour
	recentActivityDays = 7
	recentActivitySize = 20
	topUsersLimit      = 10
	dashboardTopLimit  = 5
)

// UserDirectory looks up users by ID. GetUser returns auth.ErrUserNotFound for unknown IDs.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*auth.User, error)
}

// RecordView is the display form of a log record
type RecordView struct {
	ID             int64          `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	ActorID        *int64         `json:"actor_id"`
	Actor          string         `json:"actor"`
	Action         Action         `json:"action"`
	EntityType     string         `json:"entity_type"`
	EntityID       string         `json:"entity_id"`
	EntityRepr     string         `json:"entity_repr"`
	Changes        Changes        `json:"changes"`
	ChangesCount   int            `json:"changes_count"`
	RemoteAddr     string         `json:"remote_addr,omitempty"`
	AdditionalData map[string]any `json:"additional_data,omitempty"`
}

// NewRecordView projects a record to its display form
func NewRecordView(r *LogRecord) RecordView {
	changes := r.Changes
	if changes == nil {
		changes = Changes{}
	}
	return RecordView{
		ID:             r.ID,
		Timestamp:      r.Timestamp,
		ActorID:        r.ActorID,
		Actor:          actorDisplay(r),
		Action:         r.Action,
		EntityType:     entityTypeDisplay(r.EntityType),
		EntityID:       r.EntityID,
		EntityRepr:     r.EntityRepr,
		Changes:        changes,
		ChangesCount:   r.ChangeCount(),
		RemoteAddr:     r.RemoteAddr,
		AdditionalData: r.AdditionalData,
	}
}

// Page is one page of listed records
type Page struct {
	Count    int64        `json:"count"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	Results  []RecordView `json:"results"`
}

// StatisticsResult summarizes the records matching a filter
type StatisticsResult struct {
	TotalLogs     int64             `json:"total_logs"`
	Actions       []ActionCount     `json:"actions"`
	Models        []EntityTypeCount `json:"models"`
	TopUsers      []ActorCount      `json:"top_users"`
	DailyActivity []DayCount        `json:"daily_activity"`
	Period        Period            `json:"period"`
}

// UserSummary identifies the user a UserActivityResult is about
type UserSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UserActivityStats holds the counters of one user's activity
type UserActivityStats struct {
	TotalActions     int64         `json:"total_actions"`
	RecentActions7d  int64         `json:"recent_actions_7d"`
	ActionsBreakdown []ActionCount `json:"actions_breakdown"`
}

// ActivityItem is one recent action of a user
type ActivityItem struct {
	Timestamp    time.Time `json:"timestamp"`
	Action       Action    `json:"action"`
	EntityType   string    `json:"entity_type"`
	EntityRepr   string    `json:"entity_repr"`
	ChangesCount int       `json:"changes_count"`
}

// UserActivityResult describes what one user has done
type UserActivityResult struct {
	User           UserSummary       `json:"user"`
	Statistics     UserActivityStats `json:"statistics"`
	RecentActivity []ActivityItem    `json:"recent_activity"`
}

// DashboardMetrics are the headline numbers of the dashboard
type DashboardMetrics struct {
	TotalActions    int64 `json:"total_actions"`
	UniqueUsers     int64 `json:"unique_users"`
	CriticalActions int64 `json:"critical_actions"`

	// SecurityEvents is reserved; the pipeline does not classify security events yet
	SecurityEvents int64 `json:"security_events"`
}

// DashboardCharts are the chart series of the dashboard
type DashboardCharts struct {
	HourlyActivity []HourCount       `json:"hourly_activity"`
	TopModels      []EntityTypeCount `json:"top_models"`
	TopUsers       []ActorCount      `json:"top_users"`
}

// DashboardResult is the administrator overview of a trailing window
type DashboardResult struct {
	Period  Period           `json:"period"`
	Metrics DashboardMetrics `json:"metrics"`
	Charts  DashboardCharts  `json:"charts"`
}

// QueryService answers read-only questions about the log store for administrators
type QueryService struct {
	store  Store
	users  UserDirectory
	cache  StatsCache
	logger logrus.FieldLogger
	now    func() time.Time
}

// QueryServiceOption configures a QueryService
type QueryServiceOption func(*QueryService)

// WithStatsCache caches statistics and dashboard results
func WithStatsCache(cache StatsCache) QueryServiceOption {
	return func(s *QueryService) {
		s.cache = cache
	}
}

// WithQueryLogger sets the logger used to report cache failures
func WithQueryLogger(logger logrus.FieldLogger) QueryServiceOption {
	return func(s *QueryService) {
		s.logger = logger
	}
}

// NewQueryService creates a query service
func NewQueryService(store Store, users UserDirectory, opts ...QueryServiceOption) *QueryService {
	s := &QueryService{
		store:  store,
		users:  users,
		cache:  NoopStatsCache{},
		logger: logrus.StandardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// authorize admits only authenticated staff users
func authorize(ctx context.Context) error {
	user := auth.UserFromContext(ctx)
	if user == nil {
		return ErrUnauthorized
	}
	if !user.IsStaff {
		return ErrForbidden
	}
	return nil
}

// List returns one page of matching records, newest first
func (s *QueryService) List(ctx context.Context, filter SearchFilter, page, pageSize int) (*Page, error) {
	if err := authorize(ctx); err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	filter.Limit, filter.Offset = 0, 0
	count, err := s.store.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count log records: %w", err)
	}

	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize
	records, err := s.store.Search(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search log records: %w", err)
	}

	results := make([]RecordView, 0, len(records))
	for _, r := range records {
		results = append(results, NewRecordView(r))
	}

	return &Page{
		Count:    count,
		Page:     page,
		PageSize: pageSize,
		Results:  results,
	}, nil
}

// Statistics aggregates matching records. Daily activity covers the trailing 30 days only.
func (s *QueryService) Statistics(ctx context.Context, filter SearchFilter) (*StatisticsResult, error) {
	if err := authorize(ctx); err != nil {
		return nil, err
	}

	filter.Limit, filter.Offset = 0, 0
	key := statsCacheKey("statistics", filter)

	var result StatisticsResult
	if s.cachedInto(ctx, key, &result) {
		return &result, nil
	}

	now := s.now().UTC()
	period := Period{From: now.Add(-statisticsWindow), To: now}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		result.TotalLogs, err = s.store.Count(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		result.Actions, err = s.store.CountByAction(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		result.Models, err = s.store.CountByEntityType(gctx, filter, 0)
		return err
	})
	g.Go(func() (err error) {
		result.TopUsers, err = s.store.TopActors(gctx, filter, topUsersLimit)
		return err
	})
	g.Go(func() (err error) {
		result.DailyActivity, err = s.store.DailyActivity(gctx, filter.WithWindow(period.From, period.To))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute statistics: %w", err)
	}
	result.Period = period

	s.storeCached(ctx, key, &result)
	return &result, nil
}

// UserActivity summarizes the actions of one actor
func (s *QueryService) UserActivity(ctx context.Context, actorID *int64) (*UserActivityResult, error) {
	if err := authorize(ctx); err != nil {
		return nil, err
	}
	if actorID == nil {
		return nil, fmt.Errorf("%w: user_id parameter is required", ErrBadRequest)
	}

	user, err := s.users.GetUser(ctx, *actorID)
	if errors.Is(err, auth.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, *actorID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to look up user %d: %w", *actorID, err)
	}

	filter := SearchFilter{ActorID: actorID}
	since := s.now().UTC().AddDate(0, 0, -recentActivityDays)
	recentFilter := filter
	recentFilter.From = &since
	listFilter := filter
	listFilter.Limit = recentActivitySize

	var (
		result  = UserActivityResult{User: UserSummary{ID: user.ID, Username: user.Username, Email: user.Email}}
		records []*LogRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		result.Statistics.TotalActions, err = s.store.Count(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		result.Statistics.RecentActions7d, err = s.store.Count(gctx, recentFilter)
		return err
	})
	g.Go(func() (err error) {
		result.Statistics.ActionsBreakdown, err = s.store.CountByAction(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		records, err = s.store.Search(gctx, listFilter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute user activity: %w", err)
	}

	result.RecentActivity = make([]ActivityItem, 0, len(records))
	for _, r := range records {
		result.RecentActivity = append(result.RecentActivity, ActivityItem{
			Timestamp:    r.Timestamp,
			Action:       r.Action,
			EntityType:   entityTypeDisplay(r.EntityType),
			EntityRepr:   r.EntityRepr,
			ChangesCount: r.ChangeCount(),
		})
	}

	return &result, nil
}

// Dashboard summarizes the trailing window of days (default 30)
func (s *QueryService) Dashboard(ctx context.Context, days int) (*DashboardResult, error) {
	if err := authorize(ctx); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = DefaultDashboardDays
	}

	key := statsCacheKey("dashboard", days)
	var result DashboardResult
	if s.cachedInto(ctx, key, &result) {
		return &result, nil
	}

	now := s.now().UTC()
	period := Period{From: now.AddDate(0, 0, -days), To: now}
	filter := SearchFilter{From: &period.From, To: &period.To}
	critical := filter
	critical.Actions = CriticalActions

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		result.Metrics.TotalActions, err = s.store.Count(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		result.Metrics.UniqueUsers, err = s.store.CountDistinctActors(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		result.Metrics.CriticalActions, err = s.store.Count(gctx, critical)
		return err
	})
	g.Go(func() (err error) {
		result.Charts.HourlyActivity, err = s.store.HourlyActivity(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		result.Charts.TopModels, err = s.store.CountByEntityType(gctx, filter, dashboardTopLimit)
		return err
	})
	g.Go(func() (err error) {
		result.Charts.TopUsers, err = s.store.TopActors(gctx, filter, dashboardTopLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute dashboard: %w", err)
	}
	result.Period = period

	s.storeCached(ctx, key, &result)
	return &result, nil
}

// Export serializes matching records, newest first, capped at MaxExportRecords
func (s *QueryService) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	if err := authorize(ctx); err != nil {
		return nil, err
	}

	if !format.Valid() {
		return nil, fmt.Errorf("%w: unsupported export format %q", ErrBadRequest, format)
	}

	filter.Offset = 0
	if filter.Limit <= 0 || filter.Limit > MaxExportRecords {
		filter.Limit = MaxExportRecords
	}

	records, err := s.store.Search(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search log records: %w", err)
	}
	return ExportRecords(records, format)
}

// cachedInto loads a cached result; cache failures only cost a recomputation
func (s *QueryService) cachedInto(ctx context.Context, key string, dest any) bool {
	found, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.logger.WithError(err).WithField("cache_key", key).Warn("stats cache lookup failed")
		return false
	}
	return found
}

func (s *QueryService) storeCached(ctx context.Context, key string, value any) {
	if err := s.cache.Set(ctx, key, value); err != nil {
		s.logger.WithError(err).WithField("cache_key", key).Warn("stats cache store failed")
	}
}

// Get returns one record in display form
func (s *QueryService) Get(ctx context.Context, id int64) (*RecordView, error) {
	if err := authorize(ctx); err != nil {
		return nil, err
	}

	record, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	view := NewRecordView(record)
	return &view, nil
}
