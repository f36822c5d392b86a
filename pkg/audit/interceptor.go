package audit

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/myinner/pkg/observability"
)

// Entity is implemented by every persisted model the interceptor can track
type Entity interface {
	// AuditType identifies the kind of entity
	AuditType() EntityType

	// AuditID is the entity identifier in string form (empty before creation)
	AuditID() string

	// String is the short human-readable representation stored as entity_repr
	String() string

	// AuditFields is a snapshot of the entity's field values keyed by field name
	AuditFields() map[string]any
}

// Repository is the persistence boundary all entity mutations pass through
type Repository interface {
	Get(ctx context.Context, t EntityType, id string) (Entity, error)
	Create(ctx context.Context, e Entity) error
	Update(ctx context.Context, e Entity) error
	Delete(ctx context.Context, t EntityType, id string) error

	// Restore re-inserts a previously deleted entity under its original identifier
	Restore(ctx context.Context, e Entity) error
}

// WriteFailurePolicy decides what happens to a mutation whose log record cannot be written
type WriteFailurePolicy int

const (
	// BestEffort keeps the mutation and only reports the failure
	BestEffort WriteFailurePolicy = iota

	// Strict compensates the mutation and returns an error wrapping ErrWriteFailure
	Strict
)

func (p WriteFailurePolicy) String() string {
	if p == Strict {
		return "strict"
	}
	return "best_effort"
}

// ParseWriteFailurePolicy parses "strict" or "best_effort"
func ParseWriteFailurePolicy(s string) (WriteFailurePolicy, error) {
	switch s {
	case "", "best_effort", "best-effort":
		return BestEffort, nil
	case "strict":
		return Strict, nil
	default:
		return BestEffort, fmt.Errorf("unknown write failure policy %q", s)
	}
}

// Interceptor decorates a Repository so that every create, update and delete of a
// registered entity type writes exactly one LogRecord to the store
type Interceptor struct {
	next     Repository
	store    Store
	registry *Registry
	policy   WriteFailurePolicy
	logger   logrus.FieldLogger
	metrics  *observability.Metrics
}

// InterceptorOption configures an Interceptor
type InterceptorOption func(*Interceptor)

// WithWriteFailurePolicy sets the write failure policy (default BestEffort)
func WithWriteFailurePolicy(policy WriteFailurePolicy) InterceptorOption {
	return func(i *Interceptor) {
		i.policy = policy
	}
}

// WithInterceptorLogger sets the logger used to report write failures
func WithInterceptorLogger(logger logrus.FieldLogger) InterceptorOption {
	return func(i *Interceptor) {
		i.logger = logger
	}
}

// WithInterceptorMetrics records written and failed log records
func WithInterceptorMetrics(metrics *observability.Metrics) InterceptorOption {
	return func(i *Interceptor) {
		i.metrics = metrics
	}
}

// NewInterceptor wraps next
func NewInterceptor(next Repository, store Store, registry *Registry, opts ...InterceptorOption) *Interceptor {
	i := &Interceptor{
		next:     next,
		store:    store,
		registry: registry,
		policy:   BestEffort,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Get reads through to the wrapped repository
func (i *Interceptor) Get(ctx context.Context, t EntityType, id string) (Entity, error) {
	return i.next.Get(ctx, t, id)
}

// Create persists e and records a CREATE
func (i *Interceptor) Create(ctx context.Context, e Entity) error {
	if err := i.next.Create(ctx, e); err != nil {
		return err
	}

	opts, tracked := i.registry.Lookup(e.AuditType())
	if !tracked {
		return nil
	}

	record := newRecord(ctx, ActionCreate, e)
	if opts.SnapshotOnCreateDelete {
		record.Changes = SnapshotChanges(e.AuditFields(), opts, true)
	}

	return i.commit(ctx, record, func(ctx context.Context) error {
		return i.next.Delete(ctx, e.AuditType(), e.AuditID())
	})
}

// Update persists e and records an UPDATE with the tracked field diff.
// An update that changes no tracked field records nothing.
func (i *Interceptor) Update(ctx context.Context, e Entity) error {
	opts, tracked := i.registry.Lookup(e.AuditType())
	if !tracked {
		return i.next.Update(ctx, e)
	}

	before, err := i.next.Get(ctx, e.AuditType(), e.AuditID())
	if err != nil {
		return fmt.Errorf("failed to load %s %s before update: %w", e.AuditType(), e.AuditID(), err)
	}

	if err := i.next.Update(ctx, e); err != nil {
		return err
	}

	changes := ComputeChanges(before.AuditFields(), e.AuditFields(), opts)
	if len(changes) == 0 {
		return nil
	}

	record := newRecord(ctx, ActionUpdate, e)
	record.Changes = changes

	return i.commit(ctx, record, func(ctx context.Context) error {
		return i.next.Update(ctx, before)
	})
}

// Delete removes the entity and records a DELETE with its last representation
func (i *Interceptor) Delete(ctx context.Context, t EntityType, id string) error {
	opts, tracked := i.registry.Lookup(t)
	if !tracked {
		return i.next.Delete(ctx, t, id)
	}

	before, err := i.next.Get(ctx, t, id)
	if err != nil {
		return fmt.Errorf("failed to load %s %s before delete: %w", t, id, err)
	}

	// Identifier and representation are captured before the store reclaims them
	record := newRecord(ctx, ActionDelete, before)
	if opts.SnapshotOnCreateDelete {
		record.Changes = SnapshotChanges(before.AuditFields(), opts, false)
	}

	if err := i.next.Delete(ctx, t, id); err != nil {
		return err
	}

	return i.commit(ctx, record, func(ctx context.Context) error {
		return i.next.Restore(ctx, before)
	})
}

// Restore re-inserts e and records it as a CREATE
func (i *Interceptor) Restore(ctx context.Context, e Entity) error {
	if err := i.next.Restore(ctx, e); err != nil {
		return err
	}

	if _, tracked := i.registry.Lookup(e.AuditType()); !tracked {
		return nil
	}

	return i.commit(ctx, newRecord(ctx, ActionCreate, e), func(ctx context.Context) error {
		return i.next.Delete(ctx, e.AuditType(), e.AuditID())
	})
}

// commit writes the record and applies the write failure policy
func (i *Interceptor) commit(ctx context.Context, record *LogRecord, compensate func(context.Context) error) error {
	err := i.store.Write(ctx, record)
	if err == nil {
		i.metrics.RecordAuditWrite(record.Action.String(), record.EntityType.String())
		return nil
	}

	i.metrics.RecordAuditWriteFailure(record.EntityType.String())
	log := i.logger.WithFields(logrus.Fields{
		"action":      record.Action.String(),
		"entity_type": record.EntityType.String(),
		"entity_id":   record.EntityID,
		"policy":      i.policy.String(),
	}).WithError(err)

	if i.policy == BestEffort {
		log.Error("audit log write failed, keeping mutation")
		return nil
	}

	log.Error("audit log write failed, compensating mutation")
	if cerr := compensate(context.WithoutCancel(ctx)); cerr != nil {
		i.logger.WithError(cerr).WithField("entity_id", record.EntityID).Error("failed to compensate mutation")
		return fmt.Errorf("%w: %w (compensation failed: %v)", ErrWriteFailure, err, cerr)
	}
	return fmt.Errorf("%w: %w", ErrWriteFailure, err)
}

func newRecord(ctx context.Context, action Action, e Entity) *LogRecord {
	record := &LogRecord{
		Action:     action,
		EntityType: e.AuditType(),
		EntityID:   e.AuditID(),
		EntityRepr: e.String(),
	}
	stampRecord(ctx, record)
	return record
}
