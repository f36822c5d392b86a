package models

import (
	"strconv"
	"time"

	"github.com/platinummonkey/myinner/pkg/audit"
	"github.com/platinummonkey/myinner/pkg/storage"
)

// Entity types of the application's models
var (
	NoteType           = audit.EntityType{Namespace: "notes", Name: "Note"}
	TagType            = audit.EntityType{Namespace: "notes", Name: "Tag"}
	UserType           = audit.EntityType{Namespace: "users", Name: "CustomUser"}
	UserPreferenceType = audit.EntityType{Namespace: "users", Name: "UserPreference"}
)

// DefaultRegistrations tracks every model. Encrypted fields are masked.
func DefaultRegistrations() map[audit.EntityType]audit.TrackingOptions {
	return map[audit.EntityType]audit.TrackingOptions{
		NoteType: {
			ExcludeFields: []string{"created_at"},
			MaskFields:    []string{"content"},
		},
		TagType: {
			ExcludeFields: []string{"created_at"},
		},
		UserType: {
			ExcludeFields: []string{"created_at", "date_joined"},
			MaskFields:    []string{"email", "first_name", "last_name"},
		},
		UserPreferenceType: {
			ExcludeFields: []string{"created_at"},
		},
	}
}

// RegisterTypes makes every model decodable by the entity store
func RegisterTypes(store *storage.SQLiteStore) {
	store.RegisterType(NoteType, func() storage.Entity { return &Note{} })
	store.RegisterType(TagType, func() storage.Entity { return &Tag{} })
	store.RegisterType(UserType, func() storage.Entity { return &CustomUser{} })
	store.RegisterType(UserPreferenceType, func() storage.Entity { return &UserPreference{} })
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
