// Package users declares the read-side contract the token core uses to
// resolve identity principals.
package users

import (
	"context"

	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
)

// Repository resolves users. The token core only reads: it needs the id,
// display name, role list and stored password hash.
type Repository interface {
	// FindByEmail returns the user registered under the given email address,
	// or common.ErrorNotFound.
	FindByEmail(ctx context.Context, email string) (*models.User, error)

	// FindByID returns the user with the given id, or common.ErrorNotFound.
	FindByID(ctx context.Context, id string) (*models.User, error)
}
