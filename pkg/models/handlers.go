package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/myinner/pkg/audit"
	"github.com/platinummonkey/myinner/pkg/auth"
	"github.com/platinummonkey/myinner/pkg/httputil"
	"github.com/platinummonkey/myinner/pkg/middleware"
	"github.com/platinummonkey/myinner/pkg/observability"
	"github.com/platinummonkey/myinner/pkg/storage"
)

// Handlers serves the notes, tags and account API. Mutations go through the audited
// repository; listings read the store directly.
type Handlers struct {
	repo      audit.Repository
	lister    storage.Lister
	directory *UserDirectory
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewHandlers creates the model handlers
func NewHandlers(repo audit.Repository, lister storage.Lister, directory *UserDirectory, logger logrus.FieldLogger) *Handlers {
	return &Handlers{
		repo:      repo,
		lister:    lister,
		directory: directory,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes registers the model routes. Every route requires an authenticated user.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.RequireUser)

	api.HandleFunc("/notes/", h.listNotes).Methods("GET")
	api.HandleFunc("/notes/", h.createNote).Methods("POST")
	api.HandleFunc("/notes/{id:[0-9]+}/", h.getNote).Methods("GET")
	api.HandleFunc("/notes/{id:[0-9]+}/", h.updateNote).Methods("PUT")
	api.HandleFunc("/notes/{id:[0-9]+}/", h.deleteNote).Methods("DELETE")

	api.HandleFunc("/tags/", h.listTags).Methods("GET")
	api.HandleFunc("/tags/", h.createTag).Methods("POST")
	api.HandleFunc("/tags/{id:[0-9]+}/", h.updateTag).Methods("PUT")
	api.HandleFunc("/tags/{id:[0-9]+}/", h.deleteTag).Methods("DELETE")

	api.HandleFunc("/users/me/", h.getProfile).Methods("GET")
	api.HandleFunc("/users/me/", h.updateProfile).Methods("PUT")
	api.HandleFunc("/users/me/preferences/", h.getPreferences).Methods("GET")
	api.HandleFunc("/users/me/preferences/", h.updatePreferences).Methods("PUT")
}

type noteRequest struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	TagIDs  []int64 `json:"tag_ids"`
}

func (h *Handlers) listNotes(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	entities, err := h.lister.List(r.Context(), NoteType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	notes := make([]*Note, 0, len(entities))
	for _, e := range entities {
		if note, ok := e.(*Note); ok && note.UserID == user.ID {
			notes = append(notes, note)
		}
	}
	httputil.WriteSuccess(w, notes)
}

func (h *Handlers) createNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		httputil.WriteBadRequest(w, "title is required")
		return
	}

	user := auth.UserFromContext(r.Context())
	now := h.now()
	note := &Note{
		Title:     req.Title,
		Content:   req.Content,
		UserID:    user.ID,
		Username:  user.Username,
		TagIDs:    req.TagIDs,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repo.Create(r.Context(), note); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, note)
}

func (h *Handlers) getNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.ownedNote(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, note)
}

func (h *Handlers) updateNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.ownedNote(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req noteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		httputil.WriteBadRequest(w, "title is required")
		return
	}

	note.Title = req.Title
	note.Content = req.Content
	note.TagIDs = req.TagIDs
	note.UpdatedAt = h.now()
	if err := h.repo.Update(r.Context(), note); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, note)
}

func (h *Handlers) deleteNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.ownedNote(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.repo.Delete(r.Context(), NoteType, note.AuditID()); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// pathID returns the {id} route variable; a missing one is reported as not found
func pathID(r *http.Request) (string, error) {
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrNotFound, err)
	}
	return id, nil
}

// ownedNote loads the note named by the path. Other users' notes are reported as missing.
func (h *Handlers) ownedNote(r *http.Request) (*Note, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	entity, err := h.repo.Get(r.Context(), NoteType, id)
	if err != nil {
		return nil, err
	}
	note, ok := entity.(*Note)
	user := auth.UserFromContext(r.Context())
	if !ok || (note.UserID != user.ID && !user.IsStaff) {
		return nil, storage.ErrNotFound
	}
	return note, nil
}

type tagRequest struct {
	Name string `json:"name"`
}

func (h *Handlers) listTags(w http.ResponseWriter, r *http.Request) {
	entities, err := h.lister.List(r.Context(), TagType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, entities)
}

func (h *Handlers) createTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if exists, err := h.tagExists(r.Context(), name, 0); err != nil {
		h.writeError(w, r, err)
		return
	} else if exists {
		httputil.WriteBadRequest(w, "tag with this name already exists")
		return
	}

	tag := &Tag{Name: name, CreatedAt: h.now()}
	if err := h.repo.Create(r.Context(), tag); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, tag)
}

func (h *Handlers) updateTag(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entity, err := h.repo.Get(r.Context(), TagType, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	tag := entity.(*Tag)

	var req tagRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if exists, err := h.tagExists(r.Context(), name, tag.ID); err != nil {
		h.writeError(w, r, err)
		return
	} else if exists {
		httputil.WriteBadRequest(w, "tag with this name already exists")
		return
	}

	tag.Name = name
	if err := h.repo.Update(r.Context(), tag); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, tag)
}

func (h *Handlers) deleteTag(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.repo.Delete(r.Context(), TagType, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// tagExists reports whether another tag already uses name
func (h *Handlers) tagExists(ctx context.Context, name string, except int64) (bool, error) {
	entities, err := h.lister.List(ctx, TagType)
	if err != nil {
		return false, err
	}
	for _, e := range entities {
		if tag, ok := e.(*Tag); ok && tag.ID != except && strings.EqualFold(tag.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

type profileRequest struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Nickname  *string `json:"nickname"`
	Age       *int    `json:"age"`
	Gender    *string `json:"gender"`
}

func (h *Handlers) currentAccount(r *http.Request) (*CustomUser, error) {
	user := auth.UserFromContext(r.Context())
	entity, err := h.repo.Get(r.Context(), UserType, formatID(user.ID))
	if err != nil {
		return nil, err
	}
	account, ok := entity.(*CustomUser)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return account, nil
}

func (h *Handlers) getProfile(w http.ResponseWriter, r *http.Request) {
	account, err := h.currentAccount(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, account)
}

func (h *Handlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	account, err := h.currentAccount(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req profileRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Gender != nil && !validGender(*req.Gender) {
		httputil.WriteBadRequest(w, "invalid gender")
		return
	}
	if req.Age != nil && *req.Age < 0 {
		httputil.WriteBadRequest(w, "age must not be negative")
		return
	}

	setIfPresent(&account.Email, req.Email)
	setIfPresent(&account.FirstName, req.FirstName)
	setIfPresent(&account.LastName, req.LastName)
	setIfPresent(&account.Nickname, req.Nickname)
	setIfPresent(&account.Gender, req.Gender)
	if req.Age != nil {
		account.Age = req.Age
	}
	account.UpdatedAt = h.now()

	if err := h.repo.Update(r.Context(), account); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.directory.Invalidate(account.ID)
	httputil.WriteSuccess(w, account)
}

func setIfPresent(dst *string, value *string) {
	if value != nil {
		*dst = *value
	}
}

func validGender(g string) bool {
	switch g {
	case "", GenderMale, GenderFemale, GenderNonBinary, GenderOther, GenderPreferNotSay:
		return true
	}
	return false
}

type preferencesRequest struct {
	Theme        string `json:"theme"`
	PrimaryColor string `json:"primary_color"`
}

// preferences returns the caller's preferences, creating the defaults on first use
func (h *Handlers) preferences(r *http.Request) (*UserPreference, error) {
	user := auth.UserFromContext(r.Context())

	entities, err := h.lister.List(r.Context(), UserPreferenceType)
	if err != nil {
		return nil, err
	}
	for _, e := range entities {
		if pref, ok := e.(*UserPreference); ok && pref.UserID == user.ID {
			return pref, nil
		}
	}

	pref := &UserPreference{
		UserID:       user.ID,
		Username:     user.Username,
		Theme:        ThemeLight,
		PrimaryColor: DefaultPrimaryColor,
		CreatedAt:    h.now(),
		UpdatedAt:    h.now(),
	}
	if err := h.repo.Create(r.Context(), pref); err != nil {
		return nil, err
	}
	return pref, nil
}

func (h *Handlers) getPreferences(w http.ResponseWriter, r *http.Request) {
	pref, err := h.preferences(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, pref)
}

func (h *Handlers) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Theme != "" && req.Theme != ThemeLight && req.Theme != ThemeDark {
		httputil.WriteBadRequest(w, "theme must be light or dark")
		return
	}

	pref, err := h.preferences(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Theme != "" {
		pref.Theme = req.Theme
	}
	if req.PrimaryColor != "" {
		pref.PrimaryColor = req.PrimaryColor
	}
	pref.UpdatedAt = h.now()

	if err := h.repo.Update(r.Context(), pref); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, pref)
}

// writeError maps repository errors to HTTP status codes
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httputil.WriteNotFoundError(w, "Not found.")
	default:
		observability.FromContextOr(r.Context(), h.logger).WithError(err).WithField("path", r.URL.Path).Error("request failed")
		httputil.WriteInternalError(w)
	}
}
