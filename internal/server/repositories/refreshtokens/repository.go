// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/server/models"
)

type Repository interface {
	// Create stores a new refresh token for userID expiring at now+validity.
	Create(ctx context.Context, userID string, token string, validity time.Duration) error

	// Find returns common.ErrorNotFound when the token is absent.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes one token; a missing token is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteExpired drops tokens that expired before now and returns how many.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
