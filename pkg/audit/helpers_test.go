package audit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/platinummonkey/myinner/pkg/auth"
)

var (
	noteType = EntityType{Namespace: "notes", Name: "Note"}
	userType = EntityType{Namespace: "users", Name: "CustomUser"}
	tagType  = EntityType{Namespace: "notes", Name: "Tag"}
)

var errEntityNotFound = errors.New("entity not found")

// testNote is a tracked entity used by the interceptor tests
type testNote struct {
	ID        int64
	Title     string
	Content   string
	UpdatedAt time.Time
}

func (n *testNote) AuditType() EntityType { return noteType }
func (n *testNote) AuditID() string {
	if n.ID == 0 {
		return ""
	}
	return strconv.FormatInt(n.ID, 10)
}
func (n *testNote) String() string { return n.Title }
func (n *testNote) AuditFields() map[string]any {
	return map[string]any{
		"title":      n.Title,
		"content":    n.Content,
		"updated_at": n.UpdatedAt.Format(time.RFC3339Nano),
	}
}
func (n *testNote) setID(id int64) { n.ID = id }
func (n *testNote) clone() Entity  { c := *n; return &c }

// testUser has a masked email
type testUser struct {
	ID       int64
	Username string
	Email    string
}

func (u *testUser) AuditType() EntityType { return userType }
func (u *testUser) AuditID() string       { return strconv.FormatInt(u.ID, 10) }
func (u *testUser) String() string        { return u.Username }
func (u *testUser) AuditFields() map[string]any {
	return map[string]any{"username": u.Username, "email": u.Email}
}
func (u *testUser) setID(id int64) { u.ID = id }
func (u *testUser) clone() Entity  { c := *u; return &c }

type testEntity interface {
	Entity
	setID(int64)
	clone() Entity
}

// fakeRepo is an in-memory Repository that stores copies of entities
type fakeRepo struct {
	mu       sync.Mutex
	nextID   int64
	entities map[EntityType]map[string]Entity
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{entities: make(map[EntityType]map[string]Entity)}
}

func (r *fakeRepo) Get(ctx context.Context, t EntityType, id string) (Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[t][id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", t, id, errEntityNotFound)
	}
	return e.(testEntity).clone(), nil
}

func (r *fakeRepo) Create(ctx context.Context, e Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.(testEntity).setID(r.nextID)
	r.put(e)
	return nil
}

func (r *fakeRepo) Update(ctx context.Context, e Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[e.AuditType()][e.AuditID()]; !ok {
		return errEntityNotFound
	}
	r.put(e)
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, t EntityType, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[t][id]; !ok {
		return errEntityNotFound
	}
	delete(r.entities[t], id)
	return nil
}

func (r *fakeRepo) Restore(ctx context.Context, e Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(e)
	return nil
}

func (r *fakeRepo) put(e Entity) {
	if r.entities[e.AuditType()] == nil {
		r.entities[e.AuditType()] = make(map[string]Entity)
	}
	r.entities[e.AuditType()][e.AuditID()] = e.(testEntity).clone()
}

func (r *fakeRepo) exists(t EntityType, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entities[t][id]
	return ok
}

// failingStore fails every write
type failingStore struct {
	*MemoryStore
	err error
}

func (s *failingStore) Write(ctx context.Context, record *LogRecord) error {
	return s.err
}

func newTestRegistry() *Registry {
	registry := NewRegistry()
	registry.Register(noteType, TrackingOptions{})
	registry.Register(userType, TrackingOptions{MaskFields: []string{"email"}})
	return registry
}

func staffContext() context.Context {
	return auth.WithUser(context.Background(), &auth.User{ID: 1, Username: "admin", IsStaff: true, IsActive: true})
}

func memberContext() context.Context {
	return auth.WithUser(context.Background(), &auth.User{ID: 2, Username: "member", IsActive: true})
}

func int64Ptr(v int64) *int64 { return &v }

// seedRecord writes a record with a fixed timestamp
func seedRecord(store *MemoryStore, ts time.Time, action Action, t EntityType, actor *Actor) *LogRecord {
	record := &LogRecord{
		Timestamp:  ts,
		Action:     action,
		EntityType: t,
		EntityID:   "1",
		EntityRepr: t.Name,
	}
	if actor != nil {
		record.ActorID = int64Ptr(actor.ID)
		record.ActorUsername = actor.Username
	}
	if err := store.Write(context.Background(), record); err != nil {
		panic(err)
	}
	return record
}
