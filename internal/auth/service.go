package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/streamchat-server/internal/chat"
	"github.com/vovakirdan/streamchat-server/internal/store"
)

// Service is the persistent authentication backend over a credential store.
// Passwords are bcrypt-hashed; uniqueness of logins and usernames rests on
// the store's atomic insert.
type Service struct {
	store store.UserStore
}

// NewService creates a store-backed authentication service.
func NewService(userStore store.UserStore) *Service {
	return &Service{store: userStore}
}

// Authenticate verifies credentials and resolves the stored chat profile.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*chat.UserProfile, error) {
	cred, err := s.store.GetUserByLogin(ctx, login)
	if errors.Is(err, store.ErrNotFound) {
		return nil, chat.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get credential: %v", chat.ErrBackendUnavailable, err)
	}

	if ComparePassword(cred.PasswordHash, password) != nil {
		return nil, chat.ErrInvalidCredentials
	}

	role := chat.Role(cred.Role)
	if !role.Valid() {
		// A corrupt role column must not grant a fallback privilege level.
		return nil, fmt.Errorf("%w: corrupt role %q for login %q", chat.ErrBackendUnavailable, cred.Role, login)
	}

	return &chat.UserProfile{Username: cred.Username, Role: role}, nil
}

// Register creates a new account with the user role.
func (s *Service) Register(ctx context.Context, login, password, username string) (*chat.UserProfile, error) {
	login = strings.TrimSpace(login)
	username = strings.TrimSpace(username)
	if err := validateRegistration(login, password, username); err != nil {
		return nil, err
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrBackendUnavailable, err)
	}

	cred, err := s.store.CreateUser(ctx, login, hashedPassword, username, string(chat.RoleUser))
	switch {
	case errors.Is(err, store.ErrLoginExists):
		return nil, chat.ErrLoginTaken
	case errors.Is(err, store.ErrUsernameExists):
		return nil, chat.ErrUsernameTaken
	case err != nil:
		return nil, fmt.Errorf("%w: create credential: %v", chat.ErrBackendUnavailable, err)
	}

	return &chat.UserProfile{Username: cred.Username, Role: chat.Role(cred.Role)}, nil
}

// EnsureSeedUsers inserts the given accounts if their logins are absent.
// Existing accounts are left untouched, so a restart never resets passwords.
func (s *Service) EnsureSeedUsers(ctx context.Context, users []SeedUser) error {
	for _, u := range users {
		if _, err := s.store.GetUserByLogin(ctx, u.Login); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("check seed login %q: %w", u.Login, err)
		}

		hashedPassword, err := HashPassword(u.Password)
		if err != nil {
			return fmt.Errorf("hash seed password for %q: %w", u.Login, err)
		}
		_, err = s.store.CreateUser(ctx, u.Login, hashedPassword, u.Username, string(u.Role))
		if err != nil && !errors.Is(err, store.ErrLoginExists) {
			return fmt.Errorf("create seed user %q: %w", u.Login, err)
		}
	}
	return nil
}
