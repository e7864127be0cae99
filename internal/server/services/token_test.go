package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testInstant = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testMinter(t *testing.T, clock timex.Clock) *auth.Minter {
	t.Helper()
	minter, err := auth.NewMinter([]byte(strings.Repeat("k", 32)), "sessionkeeper", "sessionkeeper", 15*time.Minute, clock)
	require.NoError(t, err)
	return minter
}

func testUser() models.User {
	return models.User{
		ID:           "u-1",
		Email:        "alice@example.com",
		DisplayName:  "Alice",
		PasswordHash: "$2a$04$notacheckedhashinthistest",
		Roles:        []string{"user"},
		CreatedAt:    testInstant.Add(-time.Hour),
	}
}

func newTokenService(t *testing.T, clock timex.Clock) (*TokenService, *repomanager.InMemoryRepositoryManager) {
	t.Helper()
	repos := repomanager.NewInMemoryRepositoryManager()
	repos.SeedUser().Add(testUser())
	svc := NewTokenService(repos, testMinter(t, clock), clock, 7*24*time.Hour, testLogger())
	return svc, repos
}

func TestIssueRefreshToken(t *testing.T) {
	clock := timex.FixedClock{Instant: testInstant}
	svc, repos := newTokenService(t, clock)
	ctx := context.Background()

	token, err := svc.IssueRefreshToken(ctx, nil, "u-1")
	require.NoError(t, err)

	assert.NotEmpty(t, token.ID)
	assert.Equal(t, "u-1", token.UserID)
	assert.GreaterOrEqual(t, len(token.Token), 64) // 48 bytes, base64url
	assert.Equal(t, testInstant.Add(7*24*time.Hour), token.ExpiresAt)
	assert.Nil(t, token.RevokedAt)

	// the record is actually in the store
	stored, err := repos.RefreshTokens(nil).FindByUserAndToken(ctx, "u-1", token.Token)
	require.NoError(t, err)
	assert.Equal(t, token.ID, stored.ID)
}

func TestIssueRefreshTokenUniqueSecrets(t *testing.T) {
	svc, _ := newTokenService(t, timex.FixedClock{Instant: testInstant})
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := svc.IssueRefreshToken(ctx, nil, "u-1")
		require.NoError(t, err)
		assert.False(t, seen[token.Token])
		seen[token.Token] = true
	}
}

func TestIssueRefreshTokenSecretSourceError(t *testing.T) {
	svc, _ := newTokenService(t, timex.FixedClock{Instant: testInstant})
	wantErr := errors.New("entropy exhausted")
	svc.secretSource = func() (string, error) { return "", wantErr }

	_, err := svc.IssueRefreshToken(context.Background(), nil, "u-1")
	assert.ErrorIs(t, err, wantErr)
}

func TestRotate(t *testing.T) {
	clock := timex.FixedClock{Instant: testInstant}
	svc, _ := newTokenService(t, clock)
	ctx := context.Background()

	issued, err := svc.IssueRefreshToken(ctx, nil, "u-1")
	require.NoError(t, err)

	pair, err := svc.Rotate(ctx, nil, "u-1", issued.Token)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, issued.Token, pair.RefreshToken)

	claims, err := testMinter(t, clock).Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, "Alice", claims.DisplayName)
	assert.Equal(t, []string{"user"}, claims.Roles)
}

func TestRotateUnknownToken(t *testing.T) {
	svc, _ := newTokenService(t, timex.FixedClock{Instant: testInstant})

	_, err := svc.Rotate(context.Background(), nil, "u-1", "no-such-token")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRotateForeignUserIndistinguishable(t *testing.T) {
	svc, _ := newTokenService(t, timex.FixedClock{Instant: testInstant})
	ctx := context.Background()

	issued, err := svc.IssueRefreshToken(ctx, nil, "u-1")
	require.NoError(t, err)

	// someone else's valid token looks exactly like an absent one
	_, err = svc.Rotate(ctx, nil, "u-2", issued.Token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRotateExpiredToken(t *testing.T) {
	clock := &mutableClock{instant: testInstant}
	svc, _ := newTokenService(t, clock)
	ctx := context.Background()

	issued, err := svc.IssueRefreshToken(ctx, nil, "u-1")
	require.NoError(t, err)

	// exactly at the expiry boundary the token is already unusable
	clock.instant = issued.ExpiresAt
	_, err = svc.Rotate(ctx, nil, "u-1", issued.Token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRotateReplayedToken(t *testing.T) {
	svc, _ := newTokenService(t, timex.FixedClock{Instant: testInstant})
	ctx := context.Background()

	issued, err := svc.IssueRefreshToken(ctx, nil, "u-1")
	require.NoError(t, err)

	_, err = svc.Rotate(ctx, nil, "u-1", issued.Token)
	require.NoError(t, err)

	// presenting the consumed token again is a replay
	_, err = svc.Rotate(ctx, nil, "u-1", issued.Token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRotateRederivesRoles(t *testing.T) {
	clock := timex.FixedClock{Instant: testInstant}
	svc, repos := newTokenService(t, clock)
	ctx := context.Background()

	issued, err := svc.IssueRefreshToken(ctx, nil, "u-1")
	require.NoError(t, err)

	// roles changed after the token was issued
	promoted := testUser()
	promoted.Roles = []string{"user", "admin"}
	repos.SeedUser().Add(promoted)

	pair, err := svc.Rotate(ctx, nil, "u-1", issued.Token)
	require.NoError(t, err)

	claims, err := testMinter(t, clock).Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "admin"}, claims.Roles)
}

func TestRevoke(t *testing.T) {
	svc, repos := newTokenService(t, timex.FixedClock{Instant: testInstant})
	ctx := context.Background()

	issued, err := svc.IssueRefreshToken(ctx, nil, "u-1")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, nil, "u-1", issued.Token))

	stored, err := repos.RefreshTokens(nil).FindByUserAndToken(ctx, "u-1", issued.Token)
	require.NoError(t, err)
	assert.True(t, stored.IsRevoked())

	// revoking again is still a success
	assert.NoError(t, svc.Revoke(ctx, nil, "u-1", issued.Token))
}

func TestRevokeUnknownToken(t *testing.T) {
	svc, _ := newTokenService(t, timex.FixedClock{Instant: testInstant})

	err := svc.Revoke(context.Background(), nil, "u-1", "no-such-token")
	assert.ErrorIs(t, err, ErrRefreshTokenNotFound)
}

func TestRevokeAllForUser(t *testing.T) {
	svc, repos := newTokenService(t, timex.FixedClock{Instant: testInstant})
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 3; i++ {
		issued, err := svc.IssueRefreshToken(ctx, nil, "u-1")
		require.NoError(t, err)
		tokens = append(tokens, issued.Token)
	}
	other, err := svc.IssueRefreshToken(ctx, nil, "u-other")
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAllForUser(ctx, nil, "u-1"))

	for _, token := range tokens {
		stored, err := repos.RefreshTokens(nil).FindByUserAndToken(ctx, "u-1", token)
		require.NoError(t, err)
		assert.True(t, stored.IsRevoked())
	}

	// other users are untouched
	stored, err := repos.RefreshTokens(nil).FindByUserAndToken(ctx, "u-other", other.Token)
	require.NoError(t, err)
	assert.False(t, stored.IsRevoked())
}

func TestRotatedTokenRevokedAtMatchesClock(t *testing.T) {
	svc, repos := newTokenService(t, timex.FixedClock{Instant: testInstant})
	ctx := context.Background()

	issued, err := svc.IssueRefreshToken(ctx, nil, "u-1")
	require.NoError(t, err)

	_, err = svc.Rotate(ctx, nil, "u-1", issued.Token)
	require.NoError(t, err)

	stored, err := repos.RefreshTokens(nil).FindByUserAndToken(ctx, "u-1", issued.Token)
	require.NoError(t, err)
	require.NotNil(t, stored.RevokedAt)
	assert.Equal(t, testInstant, *stored.RevokedAt)
}

func TestRotateReportsDuplicateSecret(t *testing.T) {
	svc, _ := newTokenService(t, timex.FixedClock{Instant: testInstant})
	ctx := context.Background()

	issued, err := svc.IssueRefreshToken(ctx, nil, "u-1")
	require.NoError(t, err)

	// force the reissued secret to collide with the stored one
	svc.secretSource = func() (string, error) { return issued.Token, nil }

	_, err = svc.Rotate(ctx, nil, "u-1", issued.Token)
	assert.ErrorIs(t, err, common.ErrDuplicateToken)
}

// mutableClock lets a test move time forward between calls.
type mutableClock struct {
	instant time.Time
}

func (c *mutableClock) Now() time.Time { return c.instant }

// atomicTokenRepo implements AtomicRotator over the in-memory store and
// counts how often the one-call rotation path is taken.
type atomicTokenRepo struct {
	*refreshtokens.InMemoryRepository
	calls int
	fail  error
}

func (r *atomicTokenRepo) RevokeAndAdd(ctx context.Context, id string, at time.Time, next *models.RefreshToken) error {
	r.calls++
	if r.fail != nil {
		return r.fail
	}
	if err := r.MarkRevoked(ctx, id, at); err != nil {
		return err
	}
	return r.Add(ctx, next)
}

type atomicRepoManager struct {
	*repomanager.InMemoryRepositoryManager
	tokens *atomicTokenRepo
}

func (m *atomicRepoManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return m.tokens
}

func newAtomicTokenService(t *testing.T) (*TokenService, *atomicTokenRepo) {
	t.Helper()
	clock := timex.FixedClock{Instant: testInstant}
	repos := &atomicRepoManager{
		InMemoryRepositoryManager: repomanager.NewInMemoryRepositoryManager(),
		tokens:                    &atomicTokenRepo{InMemoryRepository: refreshtokens.NewInMemoryRepository()},
	}
	repos.SeedUser().Add(testUser())
	return NewTokenService(repos, testMinter(t, clock), clock, 7*24*time.Hour, testLogger()), repos.tokens
}

func TestRotatePrefersAtomicStore(t *testing.T) {
	svc, repo := newAtomicTokenService(t)
	ctx := context.Background()

	issued, err := svc.IssueRefreshToken(ctx, nil, "u-1")
	require.NoError(t, err)

	pair, err := svc.Rotate(ctx, nil, "u-1", issued.Token)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls, "rotation must go through the one-call store operation")

	old, err := repo.FindByUserAndToken(ctx, "u-1", issued.Token)
	require.NoError(t, err)
	assert.True(t, old.IsRevoked())

	_, err = repo.FindByUserAndToken(ctx, "u-1", pair.RefreshToken)
	assert.NoError(t, err)
}

func TestRotateAtomicStoreLostRace(t *testing.T) {
	svc, repo := newAtomicTokenService(t)
	ctx := context.Background()

	issued, err := svc.IssueRefreshToken(ctx, nil, "u-1")
	require.NoError(t, err)

	repo.fail = common.ErrAlreadyRevoked
	_, err = svc.Rotate(ctx, nil, "u-1", issued.Token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}
