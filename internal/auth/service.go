package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/toonranks/toonranks/internal/apperr"
	"github.com/toonranks/toonranks/internal/db"
	"github.com/toonranks/toonranks/internal/models"
	"github.com/toonranks/toonranks/pkg/logging"
	"github.com/toonranks/toonranks/pkg/telemetry"
)

// SignupInput is the payload of a signup request
type SignupInput struct {
	Username     string
	Email        string
	Password     string
	CaptchaToken string
	RemoteIP     string
}

// SignupResult is returned after a successful signup
type SignupResult struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// LoginInput is the payload of a login request
type LoginInput struct {
	Username     string
	Password     string
	CaptchaToken string
	RemoteIP     string
}

// UserOut is the public view of an account
type UserOut struct {
	ID       int64       `json:"id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

// LoginResult carries the issued access token
type LoginResult struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
	User        UserOut `json:"user"`
}

// ResendMessage is returned whether or not the address is known
const ResendMessage = "If that email is registered and not yet verified, a new verification link has been sent."

// Service runs the account flows
type Service struct {
	repo          *db.Repository
	users         *db.UserRepository
	tokens        *TokenManager
	captcha       CaptchaVerifier
	mailer        EmailSender
	verifyURLBase string
	logger        *zap.Logger
}

// NewService creates the account service
func NewService(repo *db.Repository, tokens *TokenManager, captcha CaptchaVerifier, mailer EmailSender, verifyURLBase string) *Service {
	return &Service{
		repo:          repo,
		users:         db.NewUserRepository(repo),
		tokens:        tokens,
		captcha:       captcha,
		mailer:        mailer,
		verifyURLBase: verifyURLBase,
		logger:        logging.WithComponent("auth"),
	}
}

// Users exposes the user repository for the middleware
func (s *Service) Users() *db.UserRepository {
	return s.users
}

// Tokens exposes the token manager
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

func (s *Service) verificationBody(token string) string {
	link := s.verifyURLBase + "?token=" + url.QueryEscape(token)
	return "Welcome to Toon Ranks!\n\nConfirm your email address by opening the link below within one hour:\n\n" + link + "\n"
}

// Signup creates an unverified account and sends the verification email.
// The account is rolled back when the email cannot be sent.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "auth.Signup")
	defer span.End()

	if err := s.captcha.Verify(ctx, in.CaptchaToken, in.RemoteIP); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" || email == "" || strings.TrimSpace(in.Password) == "" {
		return nil, apperr.Validation("Username, email and password are required")
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	var token string
	err = s.repo.Transaction(ctx, func(tx *db.Repository) error {
		users := db.NewUserRepository(tx)

		if existing, err := users.GetByEmail(ctx, email); err != nil {
			return err
		} else if existing != nil {
			return apperr.Conflict("Email already exists")
		}
		if existing, err := users.GetByUsername(ctx, username); err != nil {
			return err
		} else if existing != nil {
			return apperr.Conflict("Username already exists")
		}

		user := &models.User{
			Username:     username,
			PasswordHash: hash,
			Email:        &email,
			Role:         models.RoleGeneral,
			RegisteredAt: time.Now().UTC(),
		}
		if err := users.Create(ctx, user); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.Conflict("Username or email already exists")
			}
			return fmt.Errorf("create user: %w", err)
		}

		token, err = s.tokens.IssueEmailToken(email)
		if err != nil {
			return err
		}
		if err := s.mailer.Send(ctx, email, "Verify your Toon Ranks account", s.verificationBody(token)); err != nil {
			return apperr.Upstream("Signup failed during email sending", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("User signed up", zap.String("username", username))
	return &SignupResult{
		Message: "User created successfully. Please verify your email.",
		Token:   token,
	}, nil
}

// Login checks credentials and issues an access token
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "auth.Login")
	defer span.End()

	if err := s.captcha.Verify(ctx, in.CaptchaToken, in.RemoteIP); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Username) == "" || strings.TrimSpace(in.Password) == "" {
		return nil, apperr.Validation("Username and password are required")
	}

	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(in.Username))
	if err != nil {
		return nil, err
	}
	if user == nil || !CheckPassword(user.PasswordHash, in.Password) {
		return nil, apperr.Unauthorized("Invalid credentials")
	}
	if !user.IsVerified {
		return nil, apperr.Forbidden("Email not verified")
	}

	token, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken: token,
		TokenType:   "bearer",
		User:        UserOut{ID: user.ID, Username: user.Username, Role: user.Role},
	}, nil
}

// VerifyEmail marks the account behind a verification token as verified
func (s *Service) VerifyEmail(ctx context.Context, token string) (string, error) {
	email, err := s.tokens.ParseEmailToken(token)
	if err != nil {
		return "", apperr.Validation("Invalid or expired token")
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", apperr.NotFound("User not found")
	}
	if user.IsVerified {
		return "Email already verified", nil
	}
	if err := s.users.MarkVerified(ctx, user.ID); err != nil {
		return "", err
	}
	return "Email verified successfully", nil
}

// ResendVerification sends a fresh link to unverified accounts. The reply never
// reveals whether the address is registered.
func (s *Service) ResendVerification(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user == nil || user.IsVerified {
		return ResendMessage, nil
	}

	token, err := s.tokens.IssueEmailToken(email)
	if err != nil {
		return "", err
	}
	if err := s.mailer.Send(ctx, email, "Verify your Toon Ranks account", s.verificationBody(token)); err != nil {
		s.logger.Warn("Failed to resend verification email", zap.Error(err))
	}
	return ResendMessage, nil
}

// SetRole changes another user's role
func (s *Service) SetRole(ctx context.Context, actor *models.User, userID int64, role string) (*UserOut, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("Admin access required")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("User not found")
	}
	parsed := models.ParseRole(role)
	if err := s.users.SetRole(ctx, userID, parsed); err != nil {
		return nil, err
	}
	s.logger.Info("Role changed", zap.Int64("user_id", userID), zap.String("role", string(parsed)), zap.Int64("by", actor.ID))
	return &UserOut{ID: user.ID, Username: user.Username, Role: parsed}, nil
}
