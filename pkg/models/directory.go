package models

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/myinner/pkg/audit"
	"github.com/platinummonkey/myinner/pkg/auth"
	"github.com/platinummonkey/myinner/pkg/storage"
)

// UserDirectory resolves accounts from the entity store, caching recent lookups
type UserDirectory struct {
	store audit.Repository
	cache *lru.LRU[int64, *auth.User]
}

// NewUserDirectory creates a directory. A size of zero disables caching.
func NewUserDirectory(store audit.Repository, size int, ttl time.Duration) *UserDirectory {
	d := &UserDirectory{store: store}
	if size > 0 {
		d.cache = lru.NewLRU[int64, *auth.User](size, nil, ttl)
	}
	return d
}

// GetUser returns the account with the given ID or auth.ErrUserNotFound
func (d *UserDirectory) GetUser(ctx context.Context, id int64) (*auth.User, error) {
	if d.cache != nil {
		if user, ok := d.cache.Get(id); ok {
			return user, nil
		}
	}

	entity, err := d.store.Get(ctx, UserType, strconv.FormatInt(id, 10))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, auth.ErrUserNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}

	account, ok := entity.(*CustomUser)
	if !ok {
		return nil, fmt.Errorf("unexpected user entity %T", entity)
	}

	user := account.AuthUser()
	if d.cache != nil {
		d.cache.Add(id, user)
	}
	return user, nil
}

// Invalidate drops a cached account after it changes
func (d *UserDirectory) Invalidate(id int64) {
	if d.cache != nil {
		d.cache.Remove(id)
	}
}
