package storage

import (
	"context"
	"errors"

	"github.com/platinummonkey/myinner/pkg/audit"
)

var (
	// ErrNotFound indicates the entity does not exist
	ErrNotFound = errors.New("entity not found")

	// ErrUnknownType indicates an entity type with no registered factory
	ErrUnknownType = errors.New("unknown entity type")
)

// Entity is a model the entity store can persist. Payloads are the JSON encoding
// of the model, so exported fields and their json tags define what is stored.
type Entity interface {
	audit.Entity

	// SetID assigns the identifier chosen by the store on create
	SetID(id int64)
}

// Factory returns an empty entity of one type for decoding
type Factory func() Entity

// Lister enumerates the entities of one type in ID order
type Lister interface {
	List(ctx context.Context, t audit.EntityType) ([]audit.Entity, error)
}

// Repository is the entity persistence boundary used by the HTTP handlers
type Repository interface {
	audit.Repository
	Lister
}
