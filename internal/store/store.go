package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no credential matches the lookup.
	ErrNotFound = errors.New("not found")
	// ErrLoginExists is returned when inserting a credential with a taken login.
	ErrLoginExists = errors.New("login already exists")
	// ErrUsernameExists is returned when inserting a credential with a taken username.
	ErrUsernameExists = errors.New("username already exists")
)

// Credential is a stored account record: the login/password pair a user
// authenticates with and the chat identity it resolves to.
type Credential struct {
	ID           int64
	Login        string
	PasswordHash string
	Username     string
	Role         string
	CreatedAt    time.Time
}

// UserStore handles credential persistence. Implementations must make
// CreateUser atomic with respect to concurrent inserts: of two racing
// registrations with the same login or username, exactly one succeeds.
type UserStore interface {
	// CreateUser inserts a new credential record.
	CreateUser(ctx context.Context, login, passwordHash, username, role string) (*Credential, error)

	// GetUserByLogin retrieves a credential by login.
	GetUserByLogin(ctx context.Context, login string) (*Credential, error)

	// GetUserByUsername retrieves a credential by chat username.
	GetUserByUsername(ctx context.Context, username string) (*Credential, error)

	// Close releases the underlying storage.
	Close() error
}
