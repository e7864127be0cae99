package refreshtokens

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
)

// InMemoryRepository keeps refresh-token records in process memory. The
// mutex makes the revoke transition a check-and-set, giving the same
// one-winner semantics the SQL adapter gets from its conditional UPDATE.
type InMemoryRepository struct {
	mu      sync.Mutex
	byID    map[string]*models.RefreshToken
	byToken map[string]string   // token value -> record id, includes dead records
	byUser  map[string][]string // user id -> record ids
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID:    make(map[string]*models.RefreshToken),
		byToken: make(map[string]string),
		byUser:  make(map[string][]string),
	}
}

func (r *InMemoryRepository) Add(ctx context.Context, token *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byToken[token.Token]; exists {
		return common.ErrDuplicateToken
	}

	stored := *token
	r.byID[stored.ID] = &stored
	r.byToken[stored.Token] = stored.ID
	r.byUser[stored.UserID] = append(r.byUser[stored.UserID], stored.ID)
	return nil
}

func (r *InMemoryRepository) FindByUserAndToken(ctx context.Context, userID, token string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Compare against every candidate of the user in constant time per
	// record, so the lookup does not leak secret prefixes through timing.
	for _, id := range r.byUser[userID] {
		record := r.byID[id]
		if subtle.ConstantTimeCompare([]byte(record.Token), []byte(token)) == 1 {
			copied := *record
			if record.RevokedAt != nil {
				at := *record.RevokedAt
				copied.RevokedAt = &at
			}
			return &copied, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *InMemoryRepository) MarkRevoked(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	if record.RevokedAt != nil {
		return common.ErrAlreadyRevoked
	}
	revokedAt := at
	record.RevokedAt = &revokedAt
	return nil
}

func (r *InMemoryRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.byUser[userID] {
		record := r.byID[id]
		if record.RevokedAt == nil {
			revokedAt := at
			record.RevokedAt = &revokedAt
		}
	}
	return nil
}
