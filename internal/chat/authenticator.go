package chat

import "context"

// Authenticator is the port the session core consults for credentials.
// Backend choice (in-memory fixture vs. persistent store) never leaks into
// session logic. Authenticate and Register on a given backend are atomic
// with respect to each other: two concurrent registrations cannot both
// succeed with the same login or the same username.
type Authenticator interface {
	// Authenticate verifies a login/password pair. It returns the user's
	// profile or ErrInvalidCredentials; persistent backends may also return
	// ErrBackendUnavailable.
	Authenticate(ctx context.Context, login, password string) (*UserProfile, error)

	// Register creates a new account and returns its profile. Failure modes:
	// ErrWeakCredentials, ErrLoginTaken, ErrUsernameTaken, ErrBackendUnavailable.
	Register(ctx context.Context, login, password, username string) (*UserProfile, error)
}
