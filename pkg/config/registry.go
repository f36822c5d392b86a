package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/myinner/pkg/audit"
)

// registryFile is the YAML layout of the tracking registry:
//
//	types:
//	  users.CustomUser:
//	    mask_fields: [email, first_name, last_name]
//	  notes.Note:
//	    exclude_fields: [created_at]
type registryFile struct {
	Types map[string]audit.TrackingOptions `yaml:"types"`
}

// LoadRegistryFile parses the tracked entity types from a YAML file
func LoadRegistryFile(path string) (map[audit.EntityType]audit.TrackingOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry parses the tracked entity types from YAML
func ParseRegistry(data []byte) (map[audit.EntityType]audit.TrackingOptions, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse registry file: %w", err)
	}

	types := make(map[audit.EntityType]audit.TrackingOptions, len(file.Types))
	for name, opts := range file.Types {
		t, err := audit.ParseEntityType(name)
		if err != nil {
			return nil, err
		}
		types[t] = opts
	}
	return types, nil
}

// MergeRegistrations overlays file registrations on the built-in ones
func MergeRegistrations(base, overlay map[audit.EntityType]audit.TrackingOptions) map[audit.EntityType]audit.TrackingOptions {
	merged := make(map[audit.EntityType]audit.TrackingOptions, len(base)+len(overlay))
	for t, opts := range base {
		merged[t] = opts
	}
	for t, opts := range overlay {
		merged[t] = opts
	}
	return merged
}

// ApplyRegistryFile loads path and replaces the registry with base overlaid by the file
func ApplyRegistryFile(path string, registry *audit.Registry, base map[audit.EntityType]audit.TrackingOptions) error {
	loaded, err := LoadRegistryFile(path)
	if err != nil {
		return err
	}
	registry.Replace(MergeRegistrations(base, loaded))
	return nil
}

// WatchRegistry reloads the registry whenever the file changes, until ctx is done.
// The parent directory is watched so that editors replacing the file are noticed.
// A file that fails to parse is logged and the previous registrations stay active.
func WatchRegistry(ctx context.Context, path string, registry *audit.Registry, base map[audit.EntityType]audit.TrackingOptions, logger logrus.FieldLogger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create registry watcher: %w", err)
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve registry path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch registry directory: %w", err)
	}

	log := logger.WithField("registry", absPath)

	// Coalesce bursts of events from a single save
	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce = time.After(100 * time.Millisecond)
			}

		case <-debounce:
			debounce = nil
			if err := ApplyRegistryFile(absPath, registry, base); err != nil {
				log.WithError(err).Warn("failed to reload tracking registry, keeping previous registrations")
				continue
			}
			log.WithField("types", len(registry.Types())).Info("tracking registry reloaded")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("registry watcher error")
		}
	}
}
