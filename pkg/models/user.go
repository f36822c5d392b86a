package models

import (
	"time"

	"github.com/platinummonkey/myinner/pkg/audit"
	"github.com/platinummonkey/myinner/pkg/auth"
)

// Gender choices
const (
	GenderMale         = "M"
	GenderFemale       = "F"
	GenderNonBinary    = "NB"
	GenderOther        = "O"
	GenderPreferNotSay = "P"
)

// CustomUser is an application account. Email and names are encrypted at rest.
type CustomUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsStaff   bool   `json:"is_staff"`
	IsActive  bool   `json:"is_active"`

	Nickname string `json:"nickname,omitempty"`
	Age      *int   `json:"age,omitempty"`
	Gender   string `json:"gender,omitempty"`

	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (u *CustomUser) AuditType() audit.EntityType { return UserType }
func (u *CustomUser) AuditID() string             { return formatID(u.ID) }
func (u *CustomUser) SetID(id int64)              { u.ID = id }
func (u *CustomUser) String() string              { return u.Username }

func (u *CustomUser) AuditFields() map[string]any {
	fields := map[string]any{
		"username":   u.Username,
		"email":      u.Email,
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"is_staff":   u.IsStaff,
		"is_active":  u.IsActive,
		"nickname":   u.Nickname,
		"gender":     u.Gender,
		"age":        nil,
		"created_at": formatTime(u.CreatedAt),
		"updated_at": formatTime(u.UpdatedAt),
	}
	if u.Age != nil {
		fields["age"] = *u.Age
	}
	if u.LastLogin != nil {
		fields["last_login"] = formatTime(*u.LastLogin)
	}
	return fields
}

// AuthUser is the account as seen by authentication
func (u *CustomUser) AuthUser() *auth.User {
	return &auth.User{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsStaff:   u.IsStaff,
		IsActive:  u.IsActive,
		LastLogin: u.LastLogin,
	}
}

// Theme choices
const (
	ThemeLight = "light"
	ThemeDark  = "dark"

	DefaultPrimaryColor = "#007bff"
)

// UserPreference holds a user's display settings
type UserPreference struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Username     string    `json:"username"`
	Theme        string    `json:"theme"`
	PrimaryColor string    `json:"primary_color"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (p *UserPreference) AuditType() audit.EntityType { return UserPreferenceType }
func (p *UserPreference) AuditID() string             { return formatID(p.ID) }
func (p *UserPreference) SetID(id int64)              { p.ID = id }
func (p *UserPreference) String() string              { return "Preferences of " + p.Username }

func (p *UserPreference) AuditFields() map[string]any {
	return map[string]any{
		"user":          formatID(p.UserID),
		"theme":         p.Theme,
		"primary_color": p.PrimaryColor,
		"created_at":    formatTime(p.CreatedAt),
		"updated_at":    formatTime(p.UpdatedAt),
	}
}
