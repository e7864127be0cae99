package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"
)

var testKey = []byte(strings.Repeat("k", 32))

func newTestMinter(t *testing.T, clock timex.Clock) *Minter {
	t.Helper()
	m, err := NewMinter(testKey, "sessionkeeper", "identity-api", 15*time.Minute, clock)
	if err != nil {
		t.Fatalf("NewMinter error: %v", err)
	}
	return m
}

func TestNewMinter_RejectsShortKey(t *testing.T) {
	t.Parallel()

	_, err := NewMinter([]byte("too-short"), "iss", "aud", time.Minute, nil)
	if err == nil {
		t.Fatalf("expected error for key below %d bytes", MinKeyBytes)
	}
}

func TestMintAndParse_Success(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := newTestMinter(t, timex.FixedClock{Instant: now})

	tok, err := m.Mint("user-123", "Alice", []string{"admin", "user"})
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}

	claims, err := m.Parse(tok)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Fatalf("subject mismatch: got %q", claims.Subject)
	}
	if claims.DisplayName != "Alice" {
		t.Fatalf("display name mismatch: got %q", claims.DisplayName)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "admin" {
		t.Fatalf("roles mismatch: got %v", claims.Roles)
	}
	if claims.ID == "" {
		t.Fatalf("expected a jti claim")
	}
	if !claims.NotBefore.Time.Equal(now) {
		t.Fatalf("nbf mismatch: got %v want %v", claims.NotBefore.Time, now)
	}
	if !claims.ExpiresAt.Time.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("exp mismatch: got %v", claims.ExpiresAt.Time)
	}
}

func TestMint_FreshJTIPerToken(t *testing.T) {
	t.Parallel()

	m := newTestMinter(t, nil)

	a, err := m.Mint("u1", "A", nil)
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}
	b, err := m.Mint("u1", "A", nil)
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}
	ca, err := m.Parse(a)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	cb, err := m.Parse(b)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if ca.ID == cb.ID {
		t.Fatalf("two tokens share a jti: %q", ca.ID)
	}
}

func TestParse_Expired(t *testing.T) {
	t.Parallel()

	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := newTestMinter(t, timex.FixedClock{Instant: issued})

	tok, err := m.Mint("u1", "A", nil)
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}

	late, err := NewMinter(testKey, "sessionkeeper", "identity-api", 15*time.Minute,
		timex.FixedClock{Instant: issued.Add(16 * time.Minute)})
	if err != nil {
		t.Fatalf("NewMinter error: %v", err)
	}
	if _, err := late.Parse(tok); err != common.ErrTokenExpired {
		t.Fatalf("expected common.ErrTokenExpired, got %v", err)
	}
}

func TestParse_WrongKey(t *testing.T) {
	t.Parallel()

	m := newTestMinter(t, nil)
	tok, err := m.Mint("u2", "B", nil)
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}

	other, err := NewMinter([]byte(strings.Repeat("x", 32)), "sessionkeeper", "identity-api", time.Minute, nil)
	if err != nil {
		t.Fatalf("NewMinter error: %v", err)
	}
	if _, err := other.Parse(tok); err != common.ErrInvalidToken {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}

func TestParse_WrongAudience(t *testing.T) {
	t.Parallel()

	m := newTestMinter(t, nil)
	tok, err := m.Mint("u3", "C", nil)
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}

	other, err := NewMinter(testKey, "sessionkeeper", "another-api", time.Minute, nil)
	if err != nil {
		t.Fatalf("NewMinter error: %v", err)
	}
	if _, err := other.Parse(tok); err != common.ErrInvalidToken {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}

func TestParse_MalformedString(t *testing.T) {
	t.Parallel()

	m := newTestMinter(t, nil)
	if _, err := m.Parse("not.a.jwt"); err != common.ErrInvalidToken {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}
