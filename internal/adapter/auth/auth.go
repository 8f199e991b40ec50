// Package auth gates privileged operations behind a single
// administrator key compared in constant time.
package auth

import (
	"context"
	"crypto/hmac"

	"github.com/openmorph/metamorph/internal/domain"
)

// Compile-time check: AdminKey implements domain.Authorizer.
var _ domain.Authorizer = (*AdminKey)(nil)

// AdminKey authorizes callers presenting the configured key. An empty
// configured key denies every privileged call.
type AdminKey struct {
	key string
}

// New creates an authorizer for the given administrator key.
func New(key string) *AdminKey {
	return &AdminKey{key: key}
}

// Authorize returns an UnauthorizedError unless key matches the
// configured administrator key. Comparison is constant time.
func (a *AdminKey) Authorize(_ context.Context, key, op string) error {
	if a.key == "" || !hmac.Equal([]byte(key), []byte(a.key)) {
		return &domain.UnauthorizedError{Op: op}
	}
	return nil
}
