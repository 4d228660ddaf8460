// Package auth issues and validates tokens and runs the account flows.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/toonranks/toonranks/internal/models"
	"github.com/toonranks/toonranks/pkg/config"
)

const emailVerifyPurpose = "email-verify"

// ErrInvalidToken is returned for malformed, expired or tampered tokens
var ErrInvalidToken = errors.New("invalid token")

// Claims are carried by access tokens
type Claims struct {
	UserID int64  `json:"id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// EmailClaims are carried by email verification tokens
type EmailClaims struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenManager signs and validates HS256 tokens
type TokenManager struct {
	secret   []byte
	ttl      time.Duration
	emailTTL time.Duration
	now      func() time.Time
}

// NewTokenManager creates a token manager; the secret must be at least 32 bytes
func NewTokenManager(cfg *config.SecurityConfig) (*TokenManager, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	emailTTL := cfg.EmailTokenTTL
	if emailTTL <= 0 {
		emailTTL = time.Hour
	}
	return &TokenManager{secret: []byte(cfg.JWTSecret), ttl: ttl, emailTTL: emailTTL, now: time.Now}, nil
}

// IssueAccessToken creates an access token for user
func (m *TokenManager) IssueAccessToken(user *models.User) (string, error) {
	now := m.now()
	claims := &Claims{
		UserID: user.ID,
		Role:   string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return m.sign(claims)
}

// ParseAccessToken validates an access token
func (m *TokenManager) ParseAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := m.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.UserID == 0 {
		// Tokens without the id claim fall back to a numeric subject
		id, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			return nil, ErrInvalidToken
		}
		claims.UserID = id
	}
	return claims, nil
}

// IssueEmailToken creates an email verification token
func (m *TokenManager) IssueEmailToken(email string) (string, error) {
	now := m.now()
	claims := &EmailClaims{
		Email:   email,
		Purpose: emailVerifyPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.emailTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return m.sign(claims)
}

// ParseEmailToken validates an email verification token and returns the email
func (m *TokenManager) ParseEmailToken(tokenString string) (string, error) {
	claims := &EmailClaims{}
	if err := m.parse(tokenString, claims); err != nil {
		return "", err
	}
	if claims.Purpose != emailVerifyPurpose || claims.Email == "" {
		return "", ErrInvalidToken
	}
	return claims.Email, nil
}

func (m *TokenManager) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (m *TokenManager) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
