package audit

import "reflect"

// ComputeChanges diffs two field snapshots of the same entity.
// Excluded fields are dropped, unchanged fields skipped, and masked fields
// never carry their literal values.
func ComputeChanges(before, after map[string]any, opts TrackingOptions) Changes {
	changes := make(Changes)

	for field, newValue := range after {
		if opts.excluded(field) {
			continue
		}
		oldValue, existed := before[field]
		if existed && reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		changes[field] = newChange(field, oldValue, newValue, opts)
	}

	// Fields that disappeared from the snapshot
	for field, oldValue := range before {
		if opts.excluded(field) {
			continue
		}
		if _, ok := after[field]; ok {
			continue
		}
		changes[field] = newChange(field, oldValue, nil, opts)
	}

	return changes
}

// SnapshotChanges renders a full field set as changes: [nil, value] for a created
// entity and [value, nil] for a deleted one.
func SnapshotChanges(fields map[string]any, opts TrackingOptions, created bool) Changes {
	changes := make(Changes, len(fields))
	for field, value := range fields {
		if opts.excluded(field) {
			continue
		}
		if created {
			changes[field] = newChange(field, nil, value, opts)
		} else {
			changes[field] = newChange(field, value, nil, opts)
		}
	}
	return changes
}

func newChange(field string, oldValue, newValue any, opts TrackingOptions) FieldChange {
	if opts.masked(field) {
		return FieldChange{Old: MaskSentinel, New: MaskSentinel, Masked: true}
	}
	return FieldChange{Old: oldValue, New: newValue}
}
