package models

import "time"

// RefreshToken is one issued, single-use refresh credential. A record is
// never mutated after creation except to set RevokedAt exactly once, and the
// Token value is globally unique across all records ever written.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// IsRevoked reports whether the token was revoked. Revocation is monotonic:
// once set, RevokedAt is never cleared.
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsExpired reports whether the token lifetime has passed at the given instant.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsActive reports whether the token can still be exchanged at the given
// instant: not revoked and not expired.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}

// Revoke marks the token revoked at the given instant. Calling it again is a
// no-op, the original revocation time is kept.
func (t *RefreshToken) Revoke(now time.Time) {
	if t.IsRevoked() {
		return
	}
	t.RevokedAt = &now
}
