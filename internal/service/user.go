// Package service — account business logic.
//
// UserService sits between the HTTP handlers and the dual-store repository:
//
//	handlers (HTTP) → UserService (rules) → repository.UserRepository (dual store)
//	               ↘ TokenService (JWT) / PasswordService (bcrypt)
//
// It owns the rules — what makes a registration valid, what a login must
// verify, when an admin gets seeded — and leaves storage semantics (which
// backend answered, whether both writes landed) entirely to the repository.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rahat/vulnarena/internal/apperror"
	"github.com/rahat/vulnarena/internal/auth"
	"github.com/rahat/vulnarena/internal/model"
	"github.com/rahat/vulnarena/internal/repository"
)

// UserService handles account business logic.
type UserService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewUserService creates a UserService with all dependencies injected.
func NewUserService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user record and the issued JWT so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates a new account and signs the caller in.
//
// Uniqueness is NOT pre-checked here — each backend enforces its own unique
// constraints, and the repository surfaces a conflict if both reject. A
// pre-check would just be a race with other registrations anyway.
func (s *UserService) Register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperror.ValidationFailed("email", "a valid email is required")
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/user: hashing password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, repository.CreateUserInput{
		Username:         username,
		Email:            email,
		CredentialSecret: hash,
	})
	if err != nil {
		return nil, fmt.Errorf("service/user: registering %s: %w", username, err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	token, err := s.tokens.Generate(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("service/user: issuing token for %s: %w", user.ID, err)
	}

	return &AuthResult{User: user, Token: token}, nil
}

// Login authenticates by email or username plus password.
//
// Wrong identifier and wrong password produce the same error — a login form
// that distinguishes them is an account-enumeration oracle (there is a
// seeded challenge about that, and it does not live here).
func (s *UserService) Login(ctx context.Context, login, password string) (*AuthResult, error) {
	user, err := s.users.FindUserByEmail(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("service/user: looking up %s: %w", login, err)
	}
	if user == nil {
		user, err = s.users.FindUserByUsername(ctx, login)
		if err != nil {
			return nil, fmt.Errorf("service/user: looking up %s: %w", login, err)
		}
	}
	if user == nil {
		return nil, apperror.Forbidden("invalid credentials")
	}

	if !user.IsActive {
		return nil, apperror.Forbidden("account is disabled")
	}

	if err := s.passwords.Verify(user.CredentialSecret, password); err != nil {
		return nil, apperror.Forbidden("invalid credentials")
	}

	// Best-effort: a login must not fail because the stamp didn't land.
	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to stamp last login",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}

	token, err := s.tokens.Generate(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("service/user: issuing token for %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return &AuthResult{User: user, Token: token}, nil
}

// Logout stamps the logout time into the user's profile. Best-effort like
// every dual write; an unknown id is still an error to the caller.
func (s *UserService) Logout(ctx context.Context, userID string) error {
	if err := s.users.RecordLogout(ctx, userID); err != nil {
		return fmt.Errorf("service/user: recording logout for %s: %w", userID, err)
	}
	return nil
}

// Profile returns the account for the given id.
func (s *UserService) Profile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/user: loading profile %s: %w", userID, err)
	}
	if user == nil {
		return nil, apperror.NotFound("user", userID)
	}
	return user, nil
}

// CompleteFlag records a captured flag on the user's account and returns the
// updated record. Re-submitting a flag is fine — the set never duplicates.
func (s *UserService) CompleteFlag(ctx context.Context, userID, flagID string) (*model.User, error) {
	flagID = strings.TrimSpace(flagID)
	if flagID == "" {
		return nil, apperror.ValidationFailed("flagId", "flag id is required")
	}

	user, err := s.users.AddFlag(ctx, userID, flagID)
	if err != nil {
		return nil, fmt.Errorf("service/user: adding flag %s for %s: %w", flagID, userID, err)
	}
	if user == nil {
		return nil, apperror.NotFound("user", userID)
	}

	s.logger.Info("flag captured",
		slog.String("userID", userID),
		slog.String("flag", flagID),
		slog.Int("total", len(user.FlagsFound)),
	)
	return user, nil
}

// Search runs the admin user search. The result schema is backend-dependent
// beyond the canonical attributes — callers get whatever the answering
// backend holds.
func (s *UserService) Search(ctx context.Context, term string) ([]model.User, error) {
	results, err := s.users.SearchUsers(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("service/user: searching %q: %w", term, err)
	}
	return results, nil
}

// EnsureAdmin seeds the built-in admin account if it does not exist yet.
// Called on every cold start; a concurrent instance winning the race shows
// up as a conflict, which is success from our point of view.
func (s *UserService) EnsureAdmin(ctx context.Context, password string) error {
	existing, err := s.users.FindUserByUsername(ctx, "admin")
	if err != nil {
		return fmt.Errorf("service/user: checking for admin: %w", err)
	}
	if existing != nil {
		return nil
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return fmt.Errorf("service/user: hashing admin password: %w", err)
	}

	_, err = s.users.CreateUser(ctx, repository.CreateUserInput{
		Username:         "admin",
		Email:            "admin@vulnarena.local",
		CredentialSecret: hash,
		Role:             model.RoleAdmin,
	})
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil
		}
		return fmt.Errorf("service/user: seeding admin: %w", err)
	}

	s.logger.Info("admin account seeded")
	return nil
}
