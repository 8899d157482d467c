package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"log/slog"

	"github.com/nmiculinic/rzne/internal/domain"
	"github.com/nmiculinic/rzne/internal/repository"
	"github.com/nmiculinic/rzne/pkg/crypto"
)

const maxUsernameLength = 64

var (
	ErrUnauthenticated = errors.New("auth: invalid credentials")
	ErrUserExists      = errors.New("auth: username exists")
	ErrUserNotFound    = errors.New("auth: user not found")
	ErrForbidden       = errors.New("auth: caller may not manage this user")
	ErrInvalidUsername = errors.New("auth: invalid username")
	ErrInvalidPassword = errors.New("auth: password is required")
)

// DeleteHook runs after a user and its notes have been removed. noteIDs lists the removed notes.
type DeleteHook func(ctx context.Context, user domain.User, noteIDs []int64)

// Service handles registration, authentication and user management.
type Service struct {
	users    repository.UserRepository
	hasher   crypto.Hasher
	logger   *slog.Logger
	onDelete []DeleteHook
}

// New constructs a Service.
func New(users repository.UserRepository, hasher crypto.Hasher, logger *slog.Logger, hooks ...DeleteHook) Service {
	return Service{users: users, hasher: hasher, logger: logger, onDelete: hooks}
}

// Register creates a user with a fresh salt and derived hash.
func (s Service) Register(ctx context.Context, name, password string) (*domain.User, error) {
	if err := ValidateUsername(name); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ErrInvalidPassword
	}
	salt, hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{Name: name, Salt: salt, Hash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.logger.Warn("username exists", "user", name)
			return nil, ErrUserExists
		}
		return nil, err
	}
	s.logger.Info("user registered", "user_id", user.ID, "user", name)
	return user, nil
}

// Authenticate verifies credentials. Unknown users and wrong passwords both yield ErrUnauthenticated.
func (s Service) Authenticate(ctx context.Context, name, password string) (domain.Identity, error) {
	user, err := s.users.GetUserByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("user not found", "user", name)
			return domain.Identity{}, ErrUnauthenticated
		}
		return domain.Identity{}, err
	}
	if !s.hasher.Verify(password, user.Salt, user.Hash) {
		s.logger.Warn("invalid password", "user", name)
		return domain.Identity{}, ErrUnauthenticated
	}
	return user.Identity(), nil
}

// Lookup returns the named user or ErrUserNotFound.
func (s Service) Lookup(ctx context.Context, name string) (*domain.User, error) {
	user, err := s.users.GetUserByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// ListUsers returns all usernames.
func (s Service) ListUsers(ctx context.Context) ([]string, error) {
	return s.users.ListUserNames(ctx)
}

// DeleteUser removes target and all its notes. Only the user itself may do so.
func (s Service) DeleteUser(ctx context.Context, caller domain.Identity, target string) error {
	user, err := s.Lookup(ctx, target)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.logger.Warn("user not found", "user", target)
		}
		return err
	}
	if user.ID != caller.UserID {
		s.logger.Warn("user deletion by another account refused", "user", target, "caller", caller.Name)
		return ErrForbidden
	}
	noteIDs, err := s.users.DeleteUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	s.logger.Info("user deleted", "user_id", user.ID, "user", user.Name, "notes", len(noteIDs))
	for _, hook := range s.onDelete {
		hook(ctx, *user, noteIDs)
	}
	return nil
}

// ValidateUsername enforces the accepted username shape.
func ValidateUsername(name string) error {
	if name == "" || strings.TrimSpace(name) != name {
		return ErrInvalidUsername
	}
	if utf8.RuneCountInString(name) > maxUsernameLength || strings.ContainsAny(name, "/?#") {
		return ErrInvalidUsername
	}
	return nil
}
