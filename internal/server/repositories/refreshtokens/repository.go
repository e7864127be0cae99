// Package refreshtokens implements durable storage for refresh-token
// records. Implementations must guarantee two things the rotation protocol
// leans on: the token value is unique across all records ever written, and
// the revoke transition is a conditional update that only ever succeeds once
// per record.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
)

// Repository is the store contract for refresh-token records. Records are
// never deleted by the token core; expired and revoked rows stay behind for
// the uniqueness guarantee and for audit.
type Repository interface {
	// Add stages a new record. A token value that already exists anywhere in
	// the store yields common.ErrDuplicateToken.
	Add(ctx context.Context, token *models.RefreshToken) error

	// FindByUserAndToken returns the record matching the pair exactly, or
	// common.ErrorNotFound. A token belonging to a different user is
	// indistinguishable from an absent one.
	FindByUserAndToken(ctx context.Context, userID, token string) (*models.RefreshToken, error)

	// MarkRevoked sets the revocation instant of the record with the given
	// id, conditioned on it not being revoked yet. Returns
	// common.ErrAlreadyRevoked when the condition fails and
	// common.ErrorNotFound when no such record exists.
	MarkRevoked(ctx context.Context, id string, at time.Time) error

	// RevokeAllForUser revokes every active record of the user in one
	// store-level operation.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) error
}

// AtomicRotator is implemented by stores that can revoke a record and
// persist its replacement as one store-level operation. Backends without a
// surrounding transaction need this so a rotation is never applied halfway;
// transactional backends get the same guarantee from the unit of work and
// can skip it. Error mapping matches MarkRevoked and Add: ErrorNotFound,
// ErrAlreadyRevoked, ErrDuplicateToken — a failed call changes nothing.
type AtomicRotator interface {
	RevokeAndAdd(ctx context.Context, id string, at time.Time, next *models.RefreshToken) error
}
