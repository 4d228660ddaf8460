package auth

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/toonranks/toonranks/internal/apperr"
	"github.com/toonranks/toonranks/internal/models"
	"github.com/toonranks/toonranks/pkg/logging"
)

const userContextKey = "auth.user"

// UserLoader resolves a user by id
type UserLoader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// Middleware authenticates requests with bearer tokens
type Middleware struct {
	tokens *TokenManager
	users  UserLoader
}

// NewMiddleware creates the authentication middleware
func NewMiddleware(tokens *TokenManager, users UserLoader) *Middleware {
	return &Middleware{tokens: tokens, users: users}
}

// bearerToken extracts the token from "Authorization: Bearer <token>"
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func (m *Middleware) resolve(c *gin.Context) (*models.User, error) {
	raw := bearerToken(c)
	if raw == "" {
		return nil, apperr.Unauthorized("Not authenticated")
	}
	claims, err := m.tokens.ParseAccessToken(raw)
	if err != nil {
		return nil, apperr.Unauthorized("Could not validate credentials")
	}
	user, err := m.users.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.Unauthorized("Could not validate credentials")
	}
	return user, nil
}

func abort(c *gin.Context, err error) {
	if apperr.KindOf(err) == apperr.KindUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(apperr.HTTPStatus(err), apperr.ToPayload(err))
}

func setUser(c *gin.Context, user *models.User) {
	c.Set(userContextKey, user)
	c.Set(logging.UserIDKey, user.ID)
}

// RequireUser rejects requests without a valid token
func (m *Middleware) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := m.resolve(c)
		if err != nil {
			abort(c, err)
			return
		}
		setUser(c, user)
		c.Next()
	}
}

// OptionalUser attaches the user when a valid token is present and never rejects
func (m *Middleware) OptionalUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if bearerToken(c) != "" {
			if user, err := m.resolve(c); err == nil {
				setUser(c, user)
			}
		}
		c.Next()
	}
}

// RequireAdmin must run after RequireUser
func (m *Middleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentUser(c).IsAdmin() {
			abort(c, apperr.Forbidden("Admin access required"))
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userContextKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}
