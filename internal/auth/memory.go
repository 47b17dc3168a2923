package auth

import (
	"context"
	"sync"

	"github.com/vovakirdan/streamchat-server/internal/chat"
)

// SeedUser is a fixture account for the in-memory backend.
type SeedUser struct {
	Login    string
	Password string
	Username string
	Role     chat.Role
}

// DefaultUsers returns the out-of-the-box fixture accounts, including one
// admin so moderation commands are usable without a persistent backend.
func DefaultUsers() []SeedUser {
	return []SeedUser{
		{Login: "root", Password: "rootpass", Username: "Root", Role: chat.RoleAdmin},
		{Login: "user1", Password: "pass1", Username: "Ivanov", Role: chat.RoleUser},
		{Login: "user2", Password: "pass2", Username: "Petrov", Role: chat.RoleUser},
		{Login: "user3", Password: "pass3", Username: "Sidoroff", Role: chat.RoleUser},
	}
}

// Memory is the in-memory authentication backend: a fixed seeded user list
// plus whatever registers at runtime. Nothing survives a restart. One mutex
// covers both operations, so concurrent registrations cannot both claim the
// same login or username.
type Memory struct {
	mu    sync.Mutex
	users []SeedUser
}

// NewMemory creates an in-memory backend with the given fixture accounts.
func NewMemory(seed ...SeedUser) *Memory {
	users := make([]SeedUser, len(seed))
	copy(users, seed)
	return &Memory{users: users}
}

// Authenticate verifies a login/password pair against the user list.
func (m *Memory) Authenticate(_ context.Context, login, password string) (*chat.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Login == login && u.Password == password {
			return &chat.UserProfile{Username: u.Username, Role: u.Role}, nil
		}
	}
	return nil, chat.ErrInvalidCredentials
}

// Register adds a new account with the user role.
func (m *Memory) Register(_ context.Context, login, password, username string) (*chat.UserProfile, error) {
	if err := validateRegistration(login, password, username); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Login == login {
			return nil, chat.ErrLoginTaken
		}
		if u.Username == username {
			return nil, chat.ErrUsernameTaken
		}
	}
	m.users = append(m.users, SeedUser{
		Login:    login,
		Password: password,
		Username: username,
		Role:     chat.RoleUser,
	})
	return &chat.UserProfile{Username: username, Role: chat.RoleUser}, nil
}

// validateRegistration enforces the credential format shared by all backends.
func validateRegistration(login, password, username string) error {
	if len(login) < 3 || len(password) < 6 || len(username) < 3 {
		return chat.ErrWeakCredentials
	}
	return nil
}
