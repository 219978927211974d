package auth

import (
	"context"
	"testing"
	"time"

	"github.com/carelink/platform/pkg/common/models"
	"github.com/google/uuid"
)

const testSecret = "test-secret-at-least-16-chars"

func testUser() models.User {
	return models.User{
		ID:    uuid.New(),
		Email: "jdoe@example.com",
		Role:  models.RolePatient,
	}
}

func TestNewTokenManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewTokenManager("short", "carelink", 0, 0); err == nil {
		t.Fatal("expected an error for a short secret")
	}
}

func TestIssueAndParsePair(t *testing.T) {
	m, err := NewTokenManager(testSecret, "carelink", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	user := testUser()

	pair, err := m.IssuePair(user)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if pair.Access == "" || pair.Refresh == "" || pair.Access == pair.Refresh {
		t.Fatal("expected two distinct non-empty tokens")
	}

	access, err := m.ParseAccess(pair.Access)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if access.UserID != user.ID {
		t.Errorf("UserID = %s, want %s", access.UserID, user.ID)
	}
	if access.Role != models.RolePatient {
		t.Errorf("Role = %q", access.Role)
	}
	if access.TokenType != TokenTypeAccess {
		t.Errorf("TokenType = %q", access.TokenType)
	}

	refresh, err := m.ParseRefresh(pair.Refresh)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	if refresh.ID == "" || refresh.ID == access.ID {
		t.Error("expected each token to carry its own jti")
	}
}

func TestParseRejectsWrongType(t *testing.T) {
	m, _ := NewTokenManager(testSecret, "carelink", 15*time.Minute, 7*24*time.Hour)
	pair, err := m.IssuePair(testUser())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.ParseAccess(pair.Refresh); err != ErrWrongTokenType {
		t.Errorf("access parse of refresh token: got %v, want ErrWrongTokenType", err)
	}
	if _, err := m.ParseRefresh(pair.Access); err != ErrWrongTokenType {
		t.Errorf("refresh parse of access token: got %v, want ErrWrongTokenType", err)
	}
}

func TestParseRejectsTampering(t *testing.T) {
	m, _ := NewTokenManager(testSecret, "carelink", 15*time.Minute, 7*24*time.Hour)
	other, _ := NewTokenManager("a-different-signing-secret", "carelink", 15*time.Minute, 7*24*time.Hour)

	pair, err := other.IssuePair(testUser())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.ParseAccess(pair.Access); err != ErrTokenInvalid {
		t.Errorf("foreign signature: got %v, want ErrTokenInvalid", err)
	}
	if _, err := m.ParseAccess(""); err != ErrTokenInvalid {
		t.Errorf("empty token: got %v, want ErrTokenInvalid", err)
	}
	if _, err := m.ParseAccess("not.a.jwt"); err != ErrTokenInvalid {
		t.Errorf("garbage token: got %v, want ErrTokenInvalid", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	m, _ := NewTokenManager(testSecret, "carelink", 15*time.Minute, 7*24*time.Hour)
	issued := time.Now()
	m.nowFunc = func() time.Time { return issued }

	pair, err := m.IssuePair(testUser())
	if err != nil {
		t.Fatal(err)
	}

	m.nowFunc = func() time.Time { return issued.Add(16 * time.Minute) }
	if _, err := m.ParseAccess(pair.Access); err != ErrTokenInvalid {
		t.Errorf("expired access: got %v, want ErrTokenInvalid", err)
	}
	// The refresh token has a week to live.
	if _, err := m.ParseRefresh(pair.Refresh); err != nil {
		t.Errorf("refresh should still be valid: %v", err)
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	issuerA, _ := NewTokenManager(testSecret, "carelink", 15*time.Minute, 7*24*time.Hour)
	issuerB, _ := NewTokenManager(testSecret, "someone-else", 15*time.Minute, 7*24*time.Hour)

	token, err := issuerB.IssueAccess(testUser())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := issuerA.ParseAccess(token); err != ErrTokenInvalid {
		t.Errorf("wrong issuer: got %v, want ErrTokenInvalid", err)
	}
}

func TestRemainingLifetime(t *testing.T) {
	m, _ := NewTokenManager(testSecret, "carelink", 15*time.Minute, 7*24*time.Hour)
	issued := time.Now()
	m.nowFunc = func() time.Time { return issued }

	pair, err := m.IssuePair(testUser())
	if err != nil {
		t.Fatal(err)
	}
	claims, err := m.ParseRefresh(pair.Refresh)
	if err != nil {
		t.Fatal(err)
	}

	got := m.RemainingLifetime(claims)
	want := 7 * 24 * time.Hour
	if got < want-time.Second || got > want {
		t.Errorf("RemainingLifetime = %s, want about %s", got, want)
	}

	m.nowFunc = func() time.Time { return issued.Add(8 * 24 * time.Hour) }
	if got := m.RemainingLifetime(claims); got != 0 {
		t.Errorf("RemainingLifetime after expiry = %s, want 0", got)
	}
}

func TestMemoryBlacklist(t *testing.T) {
	ctx := context.Background()
	bl := NewMemoryBlacklist()

	revoked, err := bl.IsRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("fresh jti should not be revoked: %v %v", revoked, err)
	}

	if err := bl.Revoke(ctx, "jti-1", time.Minute); err != nil {
		t.Fatal(err)
	}
	revoked, err = bl.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected jti-1 revoked: %v %v", revoked, err)
	}

	// Entries lapse with their token's expiry.
	if err := bl.Revoke(ctx, "jti-2", -time.Second); err != nil {
		t.Fatal(err)
	}
	revoked, err = bl.IsRevoked(ctx, "jti-2")
	if err != nil || revoked {
		t.Fatalf("expired entry should not count as revoked: %v %v", revoked, err)
	}
}
