package audit

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps log records in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	records []*LogRecord // ordered by ID
	nextID  int64
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the clock used to timestamp records
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Write appends a copy of the record
func (s *MemoryStore) Write(ctx context.Context, record *LogRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record.ID = s.nextID
	s.nextID++
	if record.Timestamp.IsZero() {
		record.Timestamp = s.now()
	}

	s.records = append(s.records, cloneRecord(record))
	return nil
}

// Get retrieves a record by ID
func (s *MemoryStore) Get(ctx context.Context, id int64) (*LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := sort.Search(len(s.records), func(i int) bool { return s.records[i].ID >= id })
	if i < len(s.records) && s.records[i].ID == id {
		return cloneRecord(s.records[i]), nil
	}
	return nil, ErrRecordNotFound
}

// Search returns matching records, newest first
func (s *MemoryStore) Search(ctx context.Context, filter SearchFilter) ([]*LogRecord, error) {
	matched, err := s.match(ctx, filter)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].ID > matched[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*LogRecord{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Count returns the number of matching records
func (s *MemoryStore) Count(ctx context.Context, filter SearchFilter) (int64, error) {
	matched, err := s.match(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

// CountByAction groups matching records by action
func (s *MemoryStore) CountByAction(ctx context.Context, filter SearchFilter) ([]ActionCount, error) {
	matched, err := s.match(ctx, filter)
	if err != nil {
		return nil, err
	}

	counts := make(map[Action]int64)
	for _, r := range matched {
		counts[r.Action]++
	}

	result := make([]ActionCount, 0, len(counts))
	for action, count := range counts {
		result = append(result, ActionCount{Action: action, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Action < result[j].Action
	})
	return result, nil
}

// CountByEntityType groups matching records by entity type
func (s *MemoryStore) CountByEntityType(ctx context.Context, filter SearchFilter, limit int) ([]EntityTypeCount, error) {
	matched, err := s.match(ctx, filter)
	if err != nil {
		return nil, err
	}

	counts := make(map[EntityType]int64)
	for _, r := range matched {
		counts[r.EntityType]++
	}

	result := make([]EntityTypeCount, 0, len(counts))
	for t, count := range counts {
		result = append(result, EntityTypeCount{EntityType: t, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].EntityType.String() < result[j].EntityType.String()
	})
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// TopActors groups matching records by actor
func (s *MemoryStore) TopActors(ctx context.Context, filter SearchFilter, limit int) ([]ActorCount, error) {
	matched, err := s.match(ctx, filter)
	if err != nil {
		return nil, err
	}

	counts := make(map[int64]*ActorCount)
	for _, r := range matched {
		if r.ActorID == nil {
			continue
		}
		entry, ok := counts[*r.ActorID]
		if !ok {
			entry = &ActorCount{ActorID: *r.ActorID}
			counts[*r.ActorID] = entry
		}
		entry.Count++
		// Records are ID ordered, so the latest username snapshot wins
		if r.ActorUsername != "" {
			entry.Username = r.ActorUsername
		}
	}

	result := make([]ActorCount, 0, len(counts))
	for _, entry := range counts {
		result = append(result, *entry)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].ActorID < result[j].ActorID
	})
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// CountDistinctActors counts distinct non-system actors
func (s *MemoryStore) CountDistinctActors(ctx context.Context, filter SearchFilter) (int64, error) {
	matched, err := s.match(ctx, filter)
	if err != nil {
		return 0, err
	}

	seen := make(map[int64]struct{})
	for _, r := range matched {
		if r.ActorID != nil {
			seen[*r.ActorID] = struct{}{}
		}
	}
	return int64(len(seen)), nil
}

// DailyActivity counts matching records per UTC day
func (s *MemoryStore) DailyActivity(ctx context.Context, filter SearchFilter) ([]DayCount, error) {
	matched, err := s.match(ctx, filter)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	for _, r := range matched {
		counts[dayKey(r.Timestamp)]++
	}

	result := make([]DayCount, 0, len(counts))
	for day, count := range counts {
		result = append(result, DayCount{Day: day, Count: count})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day < result[j].Day })
	return result, nil
}

// HourlyActivity counts matching records per UTC hour
func (s *MemoryStore) HourlyActivity(ctx context.Context, filter SearchFilter) ([]HourCount, error) {
	matched, err := s.match(ctx, filter)
	if err != nil {
		return nil, err
	}

	hours := emptyHours()
	for _, r := range matched {
		hours[r.Timestamp.UTC().Hour()].Count++
	}
	return hours, nil
}

// CountBefore counts records strictly older than cutoff
func (s *MemoryStore) CountBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	older, err := s.SearchBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	return int64(len(older)), nil
}

// SearchBefore returns records strictly older than cutoff, oldest first
func (s *MemoryStore) SearchBefore(ctx context.Context, cutoff time.Time) ([]*LogRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var older []*LogRecord
	for _, r := range s.records {
		if r.Timestamp.Before(cutoff) {
			older = append(older, cloneRecord(r))
		}
	}
	sort.SliceStable(older, func(i, j int) bool { return older[i].Timestamp.Before(older[j].Timestamp) })
	return older, nil
}

// DeleteBefore removes records strictly older than cutoff under the write lock
func (s *MemoryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Checked under the lock: once the scan starts it runs to completion
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	kept := s.records[:0:0]
	var deleted int64
	for _, r := range s.records {
		if r.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return deleted, nil
}

// Len returns the total number of stored records
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// match returns copies of the records passing the filter, ignoring pagination
func (s *MemoryStore) match(ctx context.Context, filter SearchFilter) ([]*LogRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*LogRecord, 0)
	for _, r := range s.records {
		if filter.Matches(r) {
			matched = append(matched, cloneRecord(r))
		}
	}
	return matched, nil
}

// cloneRecord copies r so that neither writers nor readers share its maps with the store
func cloneRecord(r *LogRecord) *LogRecord {
	copied := *r
	if r.ActorID != nil {
		id := *r.ActorID
		copied.ActorID = &id
	}
	copied.Changes = maps.Clone(r.Changes)
	copied.AdditionalData = maps.Clone(r.AdditionalData)
	return &copied
}
