package models

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/myinner/pkg/audit"
)

// Tag labels notes
type Tag struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (t *Tag) AuditType() audit.EntityType { return TagType }
func (t *Tag) AuditID() string             { return formatID(t.ID) }
func (t *Tag) SetID(id int64)              { t.ID = id }
func (t *Tag) String() string              { return t.Name }

func (t *Tag) AuditFields() map[string]any {
	return map[string]any{
		"name":       t.Name,
		"created_at": formatTime(t.CreatedAt),
	}
}

// Note is a user's note. Content is encrypted at rest and never logged.
type Note struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`

	// Content is masked in audit records
	Content string `json:"content"`

	// UserID owns the note; Username is kept alongside for display
	UserID   int64   `json:"user_id"`
	Username string  `json:"username"`
	TagIDs   []int64 `json:"tag_ids,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (n *Note) AuditType() audit.EntityType { return NoteType }
func (n *Note) AuditID() string             { return formatID(n.ID) }
func (n *Note) SetID(id int64)              { n.ID = id }

// String renders "title - username"
func (n *Note) String() string {
	return n.Title + " - " + n.Username
}

func (n *Note) AuditFields() map[string]any {
	return map[string]any{
		"title":      n.Title,
		"content":    n.Content,
		"user":       strconv.FormatInt(n.UserID, 10),
		"tags":       joinIDs(n.TagIDs),
		"created_at": formatTime(n.CreatedAt),
		"updated_at": formatTime(n.UpdatedAt),
	}
}

// joinIDs renders a tag set in a stable order so reordering is not a change
func joinIDs(ids []int64) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
