// Package services contains the server-side business logic: the refresh
// token lifecycle state machine and the authentication command handlers
// built on top of it.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"
	"github.com/google/uuid"
)

// refreshSecretBytes is the entropy carried by one refresh token secret.
const refreshSecretBytes = 48

var (
	// ErrInvalidRefreshToken covers every way a presented refresh token can
	// fail rotation: absent, owned by another user, expired, revoked, or
	// revoked concurrently by a racing rotation. The cases are deliberately
	// indistinguishable to the caller.
	ErrInvalidRefreshToken = common.NewError("InvalidRefreshToken",
		"refresh token is invalid, expired or already used", common.KindUnauthenticated)

	// ErrRefreshTokenNotFound is returned by Revoke when no record matches
	// the user/token pair.
	ErrRefreshTokenNotFound = common.NewError("RefreshTokenNotFound",
		"refresh token not found", common.KindNotFound)
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenService drives the refresh token state machine: issue, rotate, revoke.
// Every method stages its writes on the DBTX it is handed and never commits;
// the caller owns the commit boundary.
type TokenService struct {
	repos           repomanager.RepositoryManager
	minter          *auth.Minter
	clock           timex.Clock
	refreshLifetime time.Duration
	secretSource    func() (string, error)
	log             logging.Logger
}

// NewTokenService builds a TokenService. A nil clock selects the system
// clock; the secret source defaults to the crypto/rand opaque generator.
func NewTokenService(repos repomanager.RepositoryManager, minter *auth.Minter,
	clock timex.Clock, refreshLifetime time.Duration, log logging.Logger) *TokenService {
	if clock == nil {
		clock = timex.SystemClock{}
	}
	return &TokenService{
		repos:           repos,
		minter:          minter,
		clock:           clock,
		refreshLifetime: refreshLifetime,
		secretSource: func() (string, error) {
			return common.MakeOpaqueSecret(refreshSecretBytes)
		},
		log: log,
	}
}

// IssueRefreshToken stages a fresh refresh token record for the user. The
// record is written through db, so it becomes visible only when the caller
// commits.
func (s *TokenService) IssueRefreshToken(ctx context.Context, db dbx.DBTX, userID string) (*models.RefreshToken, error) {
	token, err := s.newRecord(userID)
	if err != nil {
		return nil, err
	}
	if err := s.repos.RefreshTokens(db).Add(ctx, token); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}
	return token, nil
}

// newRecord builds an unsaved refresh token record with a fresh secret.
func (s *TokenService) newRecord(userID string) (*models.RefreshToken, error) {
	secret, err := s.secretSource()
	if err != nil {
		return nil, fmt.Errorf("generating refresh secret: %w", err)
	}
	now := s.clock.Now()
	return &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     secret,
		ExpiresAt: now.Add(s.refreshLifetime),
		CreatedAt: now,
	}, nil
}

// IssuePair mints an access token for the user and stages a refresh token
// alongside it.
func (s *TokenService) IssuePair(ctx context.Context, db dbx.DBTX, user *models.User) (*TokenPair, error) {
	access, err := s.minter.Mint(user.ID, user.DisplayName, user.Roles)
	if err != nil {
		return nil, fmt.Errorf("minting access token: %w", err)
	}
	refresh, err := s.IssueRefreshToken(ctx, db, user.ID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh.Token}, nil
}

// Rotate exchanges a presented refresh token for a fresh pair. The presented
// token is revoked with a conditional update, so of any number of concurrent
// rotations of the same token exactly one can succeed; the losers observe the
// token as already revoked and get ErrInvalidRefreshToken, same as a replay.
// On stores implementing AtomicRotator the revoke and the replacement write
// are one store operation; elsewhere the surrounding transaction makes the
// pair atomic.
func (s *TokenService) Rotate(ctx context.Context, db dbx.DBTX, userID, presented string) (*TokenPair, error) {
	repo := s.repos.RefreshTokens(db)

	record, err := repo.FindByUserAndToken(ctx, userID, presented)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("looking up refresh token: %w", err)
	}

	now := s.clock.Now()
	if !record.IsActive(now) {
		if record.IsRevoked() {
			s.log.Warn(ctx, "refresh token replay detected", "user_id", userID, "token_id", record.ID)
		}
		return nil, ErrInvalidRefreshToken
	}

	// Roles and display name are re-derived from the user store, never
	// copied from the old token.
	user, err := s.repos.Users(db).FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("resolving user: %w", err)
	}

	access, err := s.minter.Mint(user.ID, user.DisplayName, user.Roles)
	if err != nil {
		return nil, fmt.Errorf("minting access token: %w", err)
	}
	next, err := s.newRecord(userID)
	if err != nil {
		return nil, err
	}

	if rotator, ok := repo.(refreshtokens.AtomicRotator); ok {
		err = rotator.RevokeAndAdd(ctx, record.ID, now, next)
	} else {
		if err = repo.MarkRevoked(ctx, record.ID, now); err == nil {
			err = repo.Add(ctx, next)
		}
	}
	if err != nil {
		if errors.Is(err, common.ErrAlreadyRevoked) || errors.Is(err, common.ErrorNotFound) {
			// Lost the race against a concurrent rotation or revocation.
			s.log.Warn(ctx, "refresh token rotation lost race", "user_id", userID, "token_id", record.ID)
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("rotating refresh token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: next.Token}, nil
}

// Revoke marks the user's token revoked. Revoking an already revoked token is
// a success: the observable outcome, token unusable, holds either way.
func (s *TokenService) Revoke(ctx context.Context, db dbx.DBTX, userID, token string) error {
	repo := s.repos.RefreshTokens(db)

	record, err := repo.FindByUserAndToken(ctx, userID, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return ErrRefreshTokenNotFound
		}
		return fmt.Errorf("looking up refresh token: %w", err)
	}
	if record.IsRevoked() {
		return nil
	}

	if err := repo.MarkRevoked(ctx, record.ID, s.clock.Now()); err != nil {
		if errors.Is(err, common.ErrAlreadyRevoked) {
			return nil
		}
		if errors.Is(err, common.ErrorNotFound) {
			return ErrRefreshTokenNotFound
		}
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every active token of the user in one store call.
func (s *TokenService) RevokeAllForUser(ctx context.Context, db dbx.DBTX, userID string) error {
	if err := s.repos.RefreshTokens(db).RevokeAllForUser(ctx, userID, s.clock.Now()); err != nil {
		return fmt.Errorf("revoking all tokens: %w", err)
	}
	return nil
}
