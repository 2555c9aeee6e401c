package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrUnauthorized is returned for unknown or malformed API keys.
var ErrUnauthorized = errors.New("unauthorized")

// ScopeAdmin grants catalog management operations.
const ScopeAdmin = "admin"

// Key holds the identity and permission data for a validated API key.
// UserID is the authenticated user the key acts as; identity issuance
// itself lives outside this system.
type Key struct {
	ID      string
	KeyHash string
	UserID  string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key carries the given scope.
func (k *Key) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository provides lookup of API keys by their HMAC-SHA256 hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*Key, error)
}
