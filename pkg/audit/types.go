package audit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Action is the kind of mutation recorded in a log record.
// Numeric codes follow the django-auditlog numbering so that exported data stays comparable.
type Action int

const (
	ActionCreate Action = 0
	ActionUpdate Action = 1
	ActionDelete Action = 2
	ActionAccess Action = 3 // reserved, the interceptor never emits it
)

// CriticalActions are the actions counted as critical on the dashboard
var CriticalActions = []Action{ActionCreate, ActionUpdate, ActionDelete}

var actionNames = map[Action]string{
	ActionCreate: "create",
	ActionUpdate: "update",
	ActionDelete: "delete",
	ActionAccess: "access",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "action(" + strconv.Itoa(int(a)) + ")"
}

// Valid reports whether a is one of the known actions
func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

// ParseAction parses an action name (case-insensitive) or the numeric code of a known action
func ParseAction(s string) (Action, error) {
	value := strings.ToLower(strings.TrimSpace(s))
	if value == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAction)
	}

	if code, err := strconv.Atoi(value); err == nil {
		if action := Action(code); action.Valid() {
			return action, nil
		}
		return 0, fmt.Errorf("%w: unknown code %d", ErrInvalidAction, code)
	}

	for action, name := range actionNames {
		if name == value {
			return action, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// MarshalJSON encodes the action as its lowercase name
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either the action name or the numeric code
func (a *Action) UnmarshalJSON(data []byte) error {
	var code int
	if err := json.Unmarshal(data, &code); err == nil {
		*a = Action(code)
		return nil
	}

	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAction, string(data))
	}

	parsed, err := ParseAction(name)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// EntityType identifies a tracked kind of entity, e.g. notes.Note
type EntityType struct {
	Namespace string
	Name      string
}

// ParseEntityType parses the qualified namespace.Name form
func ParseEntityType(s string) (EntityType, error) {
	namespace, name, ok := strings.Cut(s, ".")
	if !ok || namespace == "" || name == "" {
		return EntityType{}, fmt.Errorf("invalid entity type %q: expected namespace.Name", s)
	}
	return EntityType{Namespace: namespace, Name: name}, nil
}

func (t EntityType) String() string {
	if t.IsZero() {
		return ""
	}
	return t.Namespace + "." + t.Name
}

// IsZero reports whether the entity type is unset
func (t EntityType) IsZero() bool {
	return t.Namespace == "" && t.Name == ""
}

// Matches reports whether the filter selects this entity type.
// A qualified filter (namespace.Name) must match both parts, a bare filter only the name.
// Comparisons are case-insensitive.
func (t EntityType) Matches(filter string) bool {
	if filter == "" {
		return true
	}
	if namespace, name, ok := strings.Cut(filter, "."); ok {
		return strings.EqualFold(t.Namespace, namespace) && strings.EqualFold(t.Name, name)
	}
	return strings.EqualFold(t.Name, filter)
}

// MarshalText renders the qualified form so entity types can be used as JSON values and keys
func (t EntityType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses the qualified form
func (t *EntityType) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*t = EntityType{}
		return nil
	}
	parsed, err := ParseEntityType(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MaskSentinel replaces the old and new values of masked fields
const MaskSentinel = "***"

// FieldChange is the old/new pair of one changed field.
// It serializes as a two element JSON array: [old, new].
type FieldChange struct {
	Old    any
	New    any
	Masked bool
}

// MarshalJSON encodes the change as [old, new]
func (c FieldChange) MarshalJSON() ([]byte, error) {
	if c.Masked {
		return json.Marshal([2]any{MaskSentinel, MaskSentinel})
	}
	return json.Marshal([2]any{c.Old, c.New})
}

// UnmarshalJSON decodes a [old, new] pair
func (c *FieldChange) UnmarshalJSON(data []byte) error {
	var pair [2]any
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("failed to decode field change: %w", err)
	}
	c.Old, c.New = pair[0], pair[1]
	c.Masked = pair[0] == MaskSentinel && pair[1] == MaskSentinel
	return nil
}

// Changes maps a changed field name to its old/new pair
type Changes map[string]FieldChange

// Fields returns the changed field names
func (c Changes) Fields() []string {
	fields := make([]string, 0, len(c))
	for name := range c {
		fields = append(fields, name)
	}
	return fields
}

// LogRecord is the immutable audit fact about one mutation
type LogRecord struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Actor information; a nil ActorID means the system performed the mutation
	ActorID       *int64 `json:"actor_id,omitempty"`
	ActorUsername string `json:"actor_username,omitempty"`

	Action     Action     `json:"action"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	EntityRepr string     `json:"entity_repr"`

	Changes        Changes        `json:"changes,omitempty"`
	RemoteAddr     string         `json:"remote_addr,omitempty"`
	AdditionalData map[string]any `json:"additional_data,omitempty"`
}

// ChangeCount returns the number of changed fields
func (r *LogRecord) ChangeCount() int {
	return len(r.Changes)
}

// IsSystem reports whether the record has no actor
func (r *LogRecord) IsSystem() bool {
	return r.ActorID == nil
}

// ToJSON converts the record to JSON
func (r *LogRecord) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a record from JSON
func FromJSON(data []byte) (*LogRecord, error) {
	var record LogRecord
	err := json.Unmarshal(data, &record)
	return &record, err
}

// SearchFilter selects log records. Zero-valued fields do not filter.
type SearchFilter struct {
	ActorID    *int64
	Actions    []Action
	EntityType string // bare name or namespace.Name

	// Inclusive time range
	From *time.Time
	To   *time.Time

	// Pagination, applied by Search only
	Limit  int
	Offset int
}

// Matches reports whether the record passes the filter
func (f SearchFilter) Matches(r *LogRecord) bool {
	if f.ActorID != nil && (r.ActorID == nil || *r.ActorID != *f.ActorID) {
		return false
	}
	if len(f.Actions) > 0 && !containsAction(f.Actions, r.Action) {
		return false
	}
	if f.EntityType != "" && !r.EntityType.Matches(f.EntityType) {
		return false
	}
	if f.From != nil && r.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && r.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// WithWindow returns a copy of the filter narrowed to [from, to]
func (f SearchFilter) WithWindow(from, to time.Time) SearchFilter {
	if f.From == nil || f.From.Before(from) {
		f.From = &from
	}
	if f.To == nil || f.To.After(to) {
		f.To = &to
	}
	f.Limit, f.Offset = 0, 0
	return f
}

func containsAction(actions []Action, a Action) bool {
	for _, candidate := range actions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ActionCount is one row of a per-action breakdown
type ActionCount struct {
	Action Action `json:"action"`
	Count  int64  `json:"count"`
}

// EntityTypeCount is one row of a per-entity-type breakdown
type EntityTypeCount struct {
	EntityType EntityType `json:"entity_type"`
	Count      int64      `json:"count"`
}

// ActorCount is one row of a per-actor breakdown
type ActorCount struct {
	ActorID  int64  `json:"actor_id"`
	Username string `json:"actor"`
	Count    int64  `json:"count"`
}

// DayCount is the number of records on one calendar day (UTC)
type DayCount struct {
	Day   string `json:"day"` // YYYY-MM-DD
	Count int64  `json:"count"`
}

// HourCount is the number of records in one hour of the day (UTC)
type HourCount struct {
	Hour  int   `json:"hour"`
	Count int64 `json:"count"`
}

// Period is a reporting window
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ExportFormat represents the format for exporting log records
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson" // Newline-delimited JSON
)

// DefaultRetainDays is the default retention window
const DefaultRetainDays = 365

// RetentionPolicy defines how long log records are kept
type RetentionPolicy struct {
	// RetainDays is the number of days to keep log records
	RetainDays int

	// ArchiveEnabled archives records before they are deleted
	ArchiveEnabled bool
}

// DefaultRetentionPolicy returns a default retention policy (365 days, no archive)
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		RetainDays: DefaultRetainDays,
	}
}

// Cutoff returns the instant before which records are eligible for deletion
func (p RetentionPolicy) Cutoff(now time.Time) time.Time {
	days := p.RetainDays
	if days <= 0 {
		days = DefaultRetainDays
	}
	return now.AddDate(0, 0, -days)
}
