package store

import (
	"context"
	"errors"

	"github.com/prismwall/prismd/internal/prism/types"
)

// ErrStorage marks a store that is unreachable or corrupt. The access path
// treats it as a deny.
var ErrStorage = errors.New("storage failure")

// GrantStore is pure data access for caller grants; policy lives in the broker.
type GrantStore interface {
	Get(ctx context.Context, identity string) (types.CallerGrant, bool, error)
	Upsert(ctx context.Context, g types.CallerGrant) error
	List(ctx context.Context) ([]types.CallerGrant, error)
}

// SettingsStore is the key/value table. A nil value is stored as NULL.
type SettingsStore interface {
	Get(ctx context.Context, key string) (*string, error)
	Set(ctx context.Context, key string, value *string) error
}
