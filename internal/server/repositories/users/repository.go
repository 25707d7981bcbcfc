// Package users declares account storage.
package users

import (
	"context"

	"github.com/dmitrijs2005/cipherbox/internal/server/models"
)

type Repository interface {
	// Create stores a new account; a taken username is common.ErrInvalidInput.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
}
