package oauth

import (
	"context"
	"errors"
)

// ErrTokenNotFound is returned when no live token exists for a session.
var ErrTokenNotFound = errors.New("token not found")

// TokenStore persists access tokens keyed by auth session ID. Backends
// enforce the configured TTL themselves; Get never returns expired tokens.
type TokenStore interface {
	Put(ctx context.Context, sessionID string, token *Token) error
	Get(ctx context.Context, sessionID string) (*Token, error)
	Delete(ctx context.Context, sessionID string) error
	Count(ctx context.Context) (int, error)
	// Close releases backend resources and stops background work.
	Close() error
}
