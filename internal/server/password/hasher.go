// Package password wraps credential hashing behind a small contract so the
// authentication flow treats the scheme as opaque.
package password

import "golang.org/x/crypto/bcrypt"

// Hasher hashes plaintext credentials and verifies candidates against a
// stored digest.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// BcryptHasher is the default Hasher.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher builds a hasher with the given cost; cost 0 selects
// bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

func (h *BcryptHasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
