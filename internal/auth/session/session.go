// Package session keeps login sessions and short-lived OIDC state outside the
// JWT so logout and role changes take effect server side.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("session: key not found")

// Store is a TTL key/value store. Implementations must be safe for
// concurrent use.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Take returns the value and removes it, so state tokens are single-use.
	Take(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and sizes a Store.
type Config struct {
	Driver     string
	RedisURL   string
	MemorySize int
	DefaultTTL time.Duration
}

func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(cfg.MemorySize, cfg.DefaultTTL), nil
	case "redis":
		store, err := NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("session: unknown driver %q", cfg.Driver)
	}
}

func SessionKey(id string) string {
	return "session:" + id
}

func StateKey(state string) string {
	return "oidc_state:" + state
}
