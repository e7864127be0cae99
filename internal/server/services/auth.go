package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/password"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/repomanager"
)

var (
	// ErrUserEmailNotFound means no user is registered under the email.
	ErrUserEmailNotFound = common.NewError("UserEmailNotFound",
		"user with the given email was not found", common.KindNotFound)

	// ErrPasswordNotSet means the account exists but carries no password
	// credential, e.g. it was provisioned for an external identity provider.
	ErrPasswordNotSet = common.NewError("PasswordNotSet",
		"user has no password credential", common.KindValidation)

	// ErrInvalidCredentials means the password did not match.
	ErrInvalidCredentials = common.NewError("InvalidCredentials",
		"invalid email or password", common.KindValidation)

	// ErrRefreshTokenIsMissing means the request carried no refresh token.
	ErrRefreshTokenIsMissing = common.NewError("RefreshTokenIsMissing",
		"refresh token is required", common.KindValidation)
)

// AuthService implements the authentication commands. Each command runs its
// reads and staged writes inside one unit of work supplied by the Runner:
// either everything commits or nothing does.
type AuthService struct {
	runner dbx.Runner
	repos  repomanager.RepositoryManager
	tokens *TokenService
	hasher password.Hasher
	log    logging.Logger
}

func NewAuthService(runner dbx.Runner, repos repomanager.RepositoryManager,
	tokens *TokenService, hasher password.Hasher, log logging.Logger) *AuthService {
	return &AuthService{
		runner: runner,
		repos:  repos,
		tokens: tokens,
		hasher: hasher,
		log:    log,
	}
}

// AuthenticateWithPassword verifies the email/password pair and, on success,
// issues a token pair within a single unit of work.
func (s *AuthService) AuthenticateWithPassword(ctx context.Context, email, pwd string) (*TokenPair, error) {
	var pair *TokenPair

	err := s.runner.InTx(ctx, func(ctx context.Context, db dbx.DBTX) error {
		user, err := s.repos.Users(db).FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return ErrUserEmailNotFound
			}
			return err
		}
		if user.PasswordHash == "" {
			return ErrPasswordNotSet
		}
		if !s.hasher.Verify(pwd, user.PasswordHash) {
			return ErrInvalidCredentials
		}

		pair, err = s.tokens.IssuePair(ctx, db, user)
		return err
	})
	if err != nil {
		return nil, s.classify(ctx, "authentication failed", "AuthenticationFailed", err)
	}

	s.log.Info(ctx, "user authenticated", "email", email)
	return pair, nil
}

// RefreshSession rotates the presented refresh token and returns a fresh
// pair. Replayed, expired or foreign tokens all surface as
// ErrInvalidRefreshToken; a commit failure surfaces as a database-kind error
// and leaves the presented token untouched.
func (s *AuthService) RefreshSession(ctx context.Context, userID, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrRefreshTokenIsMissing
	}

	var pair *TokenPair
	err := s.runner.InTx(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		pair, err = s.tokens.Rotate(ctx, db, userID, refreshToken)
		return err
	})
	if err != nil {
		return nil, s.classify(ctx, "session refresh failed", "RefreshTokenFailed", err)
	}

	s.log.Info(ctx, "session refreshed", "user_id", userID)
	return pair, nil
}

// RevokeSession revokes one refresh token. Revoking an already revoked token
// succeeds.
func (s *AuthService) RevokeSession(ctx context.Context, userID, refreshToken string) error {
	if refreshToken == "" {
		return ErrRefreshTokenIsMissing
	}

	err := s.runner.InTx(ctx, func(ctx context.Context, db dbx.DBTX) error {
		return s.tokens.Revoke(ctx, db, userID, refreshToken)
	})
	if err != nil {
		return s.classify(ctx, "session revocation failed", "RevokeTokenFailed", err)
	}

	s.log.Info(ctx, "session revoked", "user_id", userID)
	return nil
}

// RevokeAllSessions revokes every active refresh token of the user.
func (s *AuthService) RevokeAllSessions(ctx context.Context, userID string) error {
	err := s.runner.InTx(ctx, func(ctx context.Context, db dbx.DBTX) error {
		return s.tokens.RevokeAllForUser(ctx, db, userID)
	})
	if err != nil {
		return s.classify(ctx, "bulk revocation failed", "RevokeAllFailed", err)
	}

	s.log.Info(ctx, "all sessions revoked", "user_id", userID)
	return nil
}

// classify passes typed errors through untouched and wraps everything else,
// including commit failures, as a database-kind error.
func (s *AuthService) classify(ctx context.Context, msg, code string, err error) error {
	var typed *common.Error
	if errors.As(err, &typed) {
		return typed
	}
	s.log.Error(ctx, msg, "error", err)
	return common.WrapError(code, msg, common.KindDatabase, err)
}
