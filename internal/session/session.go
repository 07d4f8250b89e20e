// Package session keeps the allow-list of issued tokens. A token is only
// accepted while its id is present in the store, so logout and account
// deactivation take effect before the token expires.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Store interface {
	Create(ctx context.Context, userID uuid.UUID, tokenID string, ttl time.Duration) error
	Exists(ctx context.Context, userID uuid.UUID, tokenID string) (bool, error)
	Revoke(ctx context.Context, userID uuid.UUID, tokenID string) error
	RevokeAll(ctx context.Context, userID uuid.UUID) error
}

func key(userID uuid.UUID, tokenID string) string {
	return fmt.Sprintf("session:%s:%s", userID, tokenID)
}

func userPrefix(userID uuid.UUID) string {
	return fmt.Sprintf("session:%s:", userID)
}
