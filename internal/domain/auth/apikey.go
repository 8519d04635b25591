// Package auth authenticates service-to-service callers by API key.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// ScopeRedeem allows recording coupon redemptions.
const ScopeRedeem = "redeem"

// ErrUnauthorized is returned for unknown, malformed or under-scoped keys.
var ErrUnauthorized = errors.New("unauthorized")

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Repository provides lookup of API keys by their HMAC hash. Unknown or
// revoked keys must be reported as ErrUnauthorized.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// Authenticator checks raw API keys against stored HMAC-SHA256 hashes.
type Authenticator struct {
	keys   Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator using pepper as the HMAC key.
func NewAuthenticator(keys Repository, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// Hash returns the hex HMAC-SHA256 of key, as stored in the repository.
func (a *Authenticator) Hash(key string) string {
	return hex.EncodeToString(a.sum(key))
}

func (a *Authenticator) sum(key string) []byte {
	mac := hmac.New(sha256.New, a.pepper)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// Authenticate resolves key and checks that it carries scope.
func (a *Authenticator) Authenticate(ctx context.Context, key, scope string) (*APIKeyInfo, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}
	hash := a.sum(key)

	info, err := a.keys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return nil, ErrUnauthorized
		}
		return nil, errors.Wrap(err, "find api key")
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, ErrUnauthorized
	}
	if scope != "" && !slices.Contains(info.Scopes, scope) {
		return nil, ErrUnauthorized
	}
	return info, nil
}
