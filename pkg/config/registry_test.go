package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/myinner/pkg/audit"
)

var (
	noteType = audit.EntityType{Namespace: "notes", Name: "Note"}
	userType = audit.EntityType{Namespace: "users", Name: "CustomUser"}
)

func TestParseRegistry(t *testing.T) {
	types, err := ParseRegistry([]byte(`
types:
  users.CustomUser:
    mask_fields: [email, first_name]
    exclude_fields: [age]
  notes.Note:
    snapshot: true
`))
	require.NoError(t, err)
	require.Len(t, types, 2)

	assert.Equal(t, []string{"email", "first_name"}, types[userType].MaskFields)
	assert.Equal(t, []string{"age"}, types[userType].ExcludeFields)
	assert.True(t, types[noteType].SnapshotOnCreateDelete)
}

func TestParseRegistry_Invalid(t *testing.T) {
	_, err := ParseRegistry([]byte("types: [not, a, map]"))
	assert.Error(t, err)

	_, err = ParseRegistry([]byte("types:\n  Note:\n    snapshot: true\n"))
	assert.Error(t, err, "entity types must be qualified")
}

func TestMergeRegistrations(t *testing.T) {
	base := map[audit.EntityType]audit.TrackingOptions{
		noteType: {},
		userType: {MaskFields: []string{"email"}},
	}
	overlay := map[audit.EntityType]audit.TrackingOptions{
		userType: {MaskFields: []string{"email", "last_name"}},
	}

	merged := MergeRegistrations(base, overlay)
	assert.Len(t, merged, 2)
	assert.Equal(t, []string{"email", "last_name"}, merged[userType].MaskFields)
	assert.Len(t, base[userType].MaskFields, 1, "base is not modified")
}

func TestWatchRegistry_Reloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("types: {}\n"), 0o644))

	registry := audit.NewRegistry()
	base := map[audit.EntityType]audit.TrackingOptions{noteType: {}}
	require.NoError(t, ApplyRegistryFile(path, registry, base))
	assert.Equal(t, []audit.EntityType{noteType}, registry.Types())

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- WatchRegistry(ctx, path, registry, base, logger) }()

	// Give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("types:\n  users.CustomUser:\n    mask_fields: [email]\n"), 0o644))

	assert.Eventually(t, func() bool {
		_, ok := registry.Lookup(userType)
		return ok
	}, 5*time.Second, 50*time.Millisecond)

	// A broken file keeps the previous registrations
	require.NoError(t, os.WriteFile(path, []byte("types: [broken"), 0o644))
	time.Sleep(300 * time.Millisecond)
	_, ok := registry.Lookup(userType)
	assert.True(t, ok)

	cancel()
	assert.NoError(t, <-done)
}
