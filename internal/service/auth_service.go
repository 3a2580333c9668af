package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"tidepool-web/internal/domain"
	"tidepool-web/internal/observability"
	"tidepool-web/internal/ratelimit"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// RegisterInput is the registration form.
type RegisterInput struct {
	Email           string `form:"email" validate:"required,email,max=255"`
	Password        string `form:"password" validate:"required,min=8,max=100"`
	ConfirmPassword string `form:"confirmPassword" validate:"required,eqfield=Password"`
}

// LoginInput is the login form.
type LoginInput struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

type AuthService struct {
	userRepo    domain.UserRepository
	sessionRepo domain.SessionRepository
	limiter     ratelimit.Limiter
	validate    *validator.Validate
}

// NewAuthService wires the auth use cases. The limiter is the reset
// capability for success paths; a nil limiter disables resets.
func NewAuthService(userRepo domain.UserRepository, sessionRepo domain.SessionRepository, limiter ratelimit.Limiter) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		limiter:     limiter,
		validate:    newValidator(),
	}
}

// NormalizeEmail lowercases and trims an email address. The stored email and
// the rate limit identifier both use this form, so "Alice@Example.com " and
// "alice@example.com" are the same account.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account. Failures come back as *domain.Error:
// validation problems carry per-field messages, a taken email is a conflict.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	input.Email = NormalizeEmail(input.Email)

	if err := s.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), 12)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:        input.Email,
		PasswordHash: string(hashedPassword),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailExists) {
			return nil, domain.NewConflict("email already registered").WithCause(err)
		}
		return nil, err
	}

	return user, nil
}

// Login verifies credentials and opens a session. Wrong email and wrong
// password produce the same unauthorized error so responses cannot be used
// to probe for accounts.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.Session, *domain.User, error) {
	input.Email = NormalizeEmail(input.Email)

	if err := s.validate.Struct(input); err != nil {
		return nil, nil, validationError(err)
	}

	user, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, nil, domain.NewUnauthorized("unknown email").WithCause(err)
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword(
		[]byte(user.PasswordHash), []byte(input.Password),
	); err != nil {
		return nil, nil, domain.NewUnauthorized("wrong password")
	}

	session := &domain.Session{
		UserID:    user.ID,
		Token:     uuid.New().String(),
		ExpiresAt: time.Now().Add(domain.SessionMaxAge),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, nil, err
	}

	// A clean login clears the account's failure budget so a legitimate
	// user is not still paying for an attacker's attempts.
	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, input.Email, ratelimit.ActionLogin); err != nil {
			observability.Warn("failed to reset login rate limit", "error", err)
		}
	}

	return session, user, nil
}

// Logout revokes a session. Revoking an absent or already-revoked token is
// not an error: the caller's cookies get cleared either way.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessionRepo.Delete(ctx, token)
}

// ValidateSession resolves a session token to a live session.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, domain.NewUnauthorized("missing session token")
	}

	session, err := s.sessionRepo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrSessionExpired) {
			return nil, domain.NewUnauthorized("invalid session").WithCause(err)
		}
		return nil, err
	}

	// Expired sessions are unauthorized even when the store returns one.
	if time.Now().After(session.ExpiresAt) {
		return nil, domain.NewUnauthorized("expired session").WithCause(domain.ErrSessionExpired)
	}

	return session, nil
}

func (s *AuthService) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.NewNotFound("user not found").WithCause(err)
		}
		return nil, err
	}
	return user, nil
}
