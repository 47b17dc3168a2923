package chat

import "errors"

var (
	// ErrInvalidCredentials is returned when login/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrWeakCredentials is returned when login, password or username are too short.
	ErrWeakCredentials = errors.New("weak credentials")
	// ErrLoginTaken is returned when registering with an existing login.
	ErrLoginTaken = errors.New("login already taken")
	// ErrUsernameTaken is returned when a username is already bound, either in
	// the credential backend or by a live session in the registry.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrBackendUnavailable is returned on transient authentication backend
	// failures. Sessions report it to clients as a generic auth failure.
	ErrBackendUnavailable = errors.New("authentication backend unavailable")
	// ErrUsernameNotFound is returned by whisper/kick when no session holds
	// the target username.
	ErrUsernameNotFound = errors.New("username not found")
	// ErrSessionTerminated is returned when an operation would move a session
	// out of the terminal state.
	ErrSessionTerminated = errors.New("session terminated")
)
