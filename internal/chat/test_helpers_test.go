package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeTransport is a channel-backed Transport for driving sessions in tests.
type fakeTransport struct {
	in        chan string
	out       chan string
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan string, 16),
		out:    make(chan string, 128),
		closed: make(chan struct{}),
	}
}

func (t *fakeTransport) Send(message string) error {
	select {
	case <-t.closed:
		return errors.New("transport closed")
	default:
	}
	select {
	case t.out <- message:
		return nil
	default:
		return errors.New("outbound buffer full")
	}
}

func (t *fakeTransport) Receive() (string, error) {
	select {
	case message := <-t.in:
		return message, nil
	case <-t.closed:
		return "", io.EOF
	}
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

func (t *fakeTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// stubAuthenticator implements the Authenticator port over a fixed table.
type stubUser struct {
	password string
	username string
	role     Role
}

type stubAuthenticator struct {
	mu    sync.Mutex
	users map[string]stubUser // keyed by login
	err   error               // forced failure, when non-nil
}

func newStubAuthenticator() *stubAuthenticator {
	return &stubAuthenticator{
		users: map[string]stubUser{
			"root":  {password: "rootpass", username: "Root", role: RoleAdmin},
			"alice": {password: "pw123456", username: "Alice", role: RoleUser},
			"bob":   {password: "pw654321", username: "Bob", role: RoleUser},
		},
	}
}

func (a *stubAuthenticator) Authenticate(_ context.Context, login, password string) (*UserProfile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	u, ok := a.users[login]
	if !ok || u.password != password {
		return nil, ErrInvalidCredentials
	}
	return &UserProfile{Username: u.username, Role: u.role}, nil
}

func (a *stubAuthenticator) Register(_ context.Context, login, password, username string) (*UserProfile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	if len(login) < 3 || len(password) < 6 || len(username) < 3 {
		return nil, ErrWeakCredentials
	}
	if _, exists := a.users[login]; exists {
		return nil, ErrLoginTaken
	}
	for _, u := range a.users {
		if u.username == username {
			return nil, ErrUsernameTaken
		}
	}
	a.users[login] = stubUser{password: password, username: username, role: RoleUser}
	return &UserProfile{Username: username, Role: RoleUser}, nil
}

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// startSession spawns a running session wired to a fresh fake transport.
func startSession(t *testing.T, ctx context.Context, registry *Registry, authenticator Authenticator) (*Session, *fakeTransport) {
	t.Helper()

	tr := newFakeTransport()
	sess := NewSession(tr, registry, authenticator, testLogger())
	go sess.Run(ctx)
	return sess, tr
}

// mustNotice waits for an outbound message containing want.
func mustNotice(t *testing.T, tr *fakeTransport, want string) string {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case message := <-tr.out:
			if strings.Contains(message, want) {
				return message
			}
		case <-deadline:
			t.Fatalf("expected notice containing %q not received", want)
			return ""
		}
	}
}

// mustNoNotice asserts that nothing containing the given substring arrives
// within a short window.
func mustNoNotice(t *testing.T, tr *fakeTransport, unwanted string) {
	t.Helper()

	deadline := time.After(150 * time.Millisecond)
	for {
		select {
		case message := <-tr.out:
			if strings.Contains(message, unwanted) {
				t.Fatalf("unexpected notice %q", message)
			}
		case <-deadline:
			return
		}
	}
}

// authenticate drives a session through /auth and waits for the confirmation.
func authenticate(t *testing.T, tr *fakeTransport, login, password string) {
	t.Helper()

	tr.in <- cmdAuth + " " + login + " " + password
	mustNotice(t, tr, "authenticated as")
}

// waitState polls until the session reaches the wanted state.
func waitState(t *testing.T, sess *Session, want SessionState) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sess.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session did not reach state %v (current %v)", want, sess.State())
}

// waitRegistered polls until the registry holds exactly n sessions.
func waitRegistered(t *testing.T, registry *Registry, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if registry.Len() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("registry size is %d, want %d", registry.Len(), n)
}
