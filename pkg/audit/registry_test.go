package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	_, ok := registry.Lookup(noteType)
	assert.False(t, ok)

	registry.Register(noteType, TrackingOptions{ExcludeFields: []string{"content"}})
	registry.Register(userType, TrackingOptions{})

	opts, ok := registry.Lookup(noteType)
	assert.True(t, ok)
	assert.Equal(t, []string{"content"}, opts.ExcludeFields)
	assert.Equal(t, []EntityType{noteType, userType}, registry.Types())

	registry.Replace(map[EntityType]TrackingOptions{tagType: {}})
	_, ok = registry.Lookup(noteType)
	assert.False(t, ok)
	assert.Equal(t, []EntityType{tagType}, registry.Types())
}

func TestComputeChanges(t *testing.T) {
	opts := TrackingOptions{
		ExcludeFields: []string{"views"},
		MaskFields:    []string{"content"},
	}

	before := map[string]any{
		"title":      "Old",
		"content":    "secret one",
		"views":      1,
		"updated_at": "t1",
		"password":   "hash1",
		"archived":   false,
	}
	after := map[string]any{
		"title":      "New",
		"content":    "secret two",
		"views":      2,
		"updated_at": "t2",
		"password":   "hash2",
		"archived":   false,
		"pinned":     true,
	}

	changes := ComputeChanges(before, after, opts)

	assert.ElementsMatch(t, []string{"title", "content", "pinned"}, changes.Fields())
	assert.Equal(t, FieldChange{Old: "Old", New: "New"}, changes["title"])
	assert.Equal(t, FieldChange{Old: nil, New: true}, changes["pinned"])
	assert.Equal(t, FieldChange{Old: MaskSentinel, New: MaskSentinel, Masked: true}, changes["content"])
}

func TestComputeChanges_RemovedField(t *testing.T) {
	changes := ComputeChanges(map[string]any{"title": "x", "tag": "a"}, map[string]any{"title": "x"}, TrackingOptions{})
	assert.Equal(t, Changes{"tag": {Old: "a", New: nil}}, changes)
}

func TestComputeChanges_NoteTitleScenario(t *testing.T) {
	changes := ComputeChanges(map[string]any{"title": "Old"}, map[string]any{"title": "New"}, TrackingOptions{MaskFields: []string{}})
	assert.Equal(t, Changes{"title": {Old: "Old", New: "New"}}, changes)
}

func TestSnapshotChanges(t *testing.T) {
	fields := map[string]any{"title": "T", "password": "hash", "email": "a@x.com"}
	opts := TrackingOptions{MaskFields: []string{"email"}}

	created := SnapshotChanges(fields, opts, true)
	assert.Equal(t, FieldChange{Old: nil, New: "T"}, created["title"])
	assert.True(t, created["email"].Masked)
	assert.NotContains(t, created, "password")

	deleted := SnapshotChanges(fields, opts, false)
	assert.Equal(t, FieldChange{Old: "T", New: nil}, deleted["title"])
}

func TestActorContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, SystemActor, ActorFromContext(ctx))
	assert.True(t, ActorFromContext(ctx).IsSystem())

	alice := Actor{ID: 1, Username: "alice"}
	scoped := WithActor(ctx, alice)
	derived, cancel := context.WithCancel(scoped)
	defer cancel()

	assert.Equal(t, alice, ActorFromContext(derived))
	assert.Equal(t, SystemActor, ActorFromContext(ctx), "the parent context is untouched")

	info := RequestInfo{RemoteAddr: "1.2.3.4", UserAgent: "curl", RequestID: "r1"}
	assert.Equal(t, info, RequestInfoFromContext(WithRequestInfo(ctx, info)))
	assert.Equal(t, RequestInfo{}, RequestInfoFromContext(ctx))
}
