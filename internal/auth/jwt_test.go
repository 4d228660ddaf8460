package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/toonranks/toonranks/internal/models"
	"github.com/toonranks/toonranks/pkg/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestTokens(t *testing.T) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(&config.SecurityConfig{JWTSecret: testSecret})
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}
	return m
}

func TestNewTokenManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewTokenManager(&config.SecurityConfig{JWTSecret: "short"}); err == nil {
		t.Error("expected error for short secret")
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := newTestTokens(t)
	user := &models.User{ID: 42, Username: "reader", Role: models.RoleAdmin}

	token, err := m.IssueAccessToken(user)
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}
	claims, err := m.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("ParseAccessToken() error = %v", err)
	}
	if claims.UserID != 42 || claims.Subject != "reader" || claims.Role != "ADMIN" {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 72*time.Hour {
		t.Errorf("token lifetime = %v, want 72h", got)
	}
}

func TestAccessTokenRejections(t *testing.T) {
	m := newTestTokens(t)
	user := &models.User{ID: 1, Username: "a", Role: models.RoleGeneral}

	expired := newTestTokens(t)
	expired.now = func() time.Time { return time.Now().Add(-100 * time.Hour) }
	expiredToken, _ := expired.IssueAccessToken(user)

	other, _ := NewTokenManager(&config.SecurityConfig{JWTSecret: "ffffffffffffffffffffffffffffffff"})
	foreignToken, _ := other.IssueAccessToken(user)

	noneToken, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 1}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	emailToken, _ := m.IssueEmailToken("a@example.com")

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expiredToken},
		{"wrong secret", foreignToken},
		{"alg none", noneToken},
		{"garbage", "not-a-token"},
		{"email token used as access token", emailToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.ParseAccessToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestEmailToken(t *testing.T) {
	m := newTestTokens(t)

	token, err := m.IssueEmailToken("reader@example.com")
	if err != nil {
		t.Fatalf("IssueEmailToken() error = %v", err)
	}
	email, err := m.ParseEmailToken(token)
	if err != nil || email != "reader@example.com" {
		t.Fatalf("ParseEmailToken() = %q, %v", email, err)
	}

	access, _ := m.IssueAccessToken(&models.User{ID: 3, Username: "x"})
	if _, err := m.ParseEmailToken(access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access token must not verify email, got %v", err)
	}

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := m.ParseEmailToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("token older than one hour must be rejected, got %v", err)
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !CheckPassword(hash, "hunter22") {
		t.Error("expected password to match")
	}
	if CheckPassword(hash, "hunter23") {
		t.Error("expected mismatch")
	}
}
