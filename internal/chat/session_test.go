package chat

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUnauthenticatedPlainMessageRejected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	registry := NewRegistry(testLogger())
	sess, tr := startSession(t, ctx, registry, newStubAuthenticator())

	tr.in <- "hello everyone"
	mustNotice(t, tr, "not authenticated")

	if sess.State() != StateUnauthenticated {
		t.Fatalf("state changed to %v", sess.State())
	}
	if registry.Len() != 0 {
		t.Fatalf("registry should be empty, has %d", registry.Len())
	}
}

func TestUnauthenticatedCommandsRejected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	registry := NewRegistry(testLogger())
	sess, tr := startSession(t, ctx, registry, newStubAuthenticator())

	tr.in <- "/w Bob psst"
	mustNotice(t, tr, "not authenticated")
	tr.in <- "/kick Bob"
	mustNotice(t, tr, "not authenticated")
	tr.in <- "/frobnicate"
	mustNotice(t, tr, "not authenticated")

	if sess.State() != StateUnauthenticated {
		t.Fatalf("state changed to %v", sess.State())
	}
}

func TestAuthSuccessRegistersAndAnnounces(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	registry := NewRegistry(testLogger())
	authn := newStubAuthenticator()

	_, observer := startSession(t, ctx, registry, authn)
	authenticate(t, observer, "bob", "pw654321")

	sess, tr := startSession(t, ctx, registry, authn)
	tr.in <- "/auth alice pw123456"
	mustNotice(t, tr, "authenticated as Alice")
	mustNotice(t, observer, "Alice joined the chat")

	waitState(t, sess, StateAuthenticated)
	if got := sess.Username(); got != "Alice" {
		t.Fatalf("bound username = %q, want Alice", got)
	}
	waitRegistered(t, registry, 2)
}

func TestAuthWrongPasswordThreeTimesKeepsConnectionOpen(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	registry := NewRegistry(testLogger())
	sess, tr := startSession(t, ctx, registry, newStubAuthenticator())

	for i := 0; i < 3; i++ {
		tr.in <- "/auth alice wrongpw"
		mustNotice(t, tr, "incorrect login or password")
	}

	if sess.State() != StateUnauthenticated {
		t.Fatalf("state = %v, want unauthenticated", sess.State())
	}
	if tr.isClosed() {
		t.Fatal("transport closed after failed auth attempts")
	}
}

func TestRegisterSuccess(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	registry := NewRegistry(testLogger())
	sess, tr := startSession(t, ctx, registry, newStubAuthenticator())

	tr.in <- "/reg Carol carol1 pw123456"
	mustNotice(t, tr, "authenticated as Carol")
	waitState(t, sess, StateAuthenticated)

	if got := sess.Profile().Role; got != RoleUser {
		t.Fatalf("registered role = %q, want %q", got, RoleUser)
	}
}

func TestRegisterFailureNotices(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	registry := NewRegistry(testLogger())
	_, tr := startSession(t, ctx, registry, newStubAuthenticator())

	tr.in <- "/reg Ca ca p"
	mustNotice(t, tr, "login must be 3+ chars")

	tr.in <- "/reg Carol alice pw123456"
	mustNotice(t, tr, "login is already taken")

	tr.in <- "/reg Alice carol1 pw123456"
	mustNotice(t, tr, "username is already taken")
}

func TestBackendFailureIsGenericToClient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	registry := NewRegistry(testLogger())
	authn := newStubAuthenticator()
	authn.err = ErrBackendUnavailable
	_, tr := startSession(t, ctx, registry, authn)

	tr.in <- "/auth alice pw123456"
	if got := mustNotice(t, tr, "authentication failed"); got != "authentication failed" {
		t.Fatalf("backend cause leaked to client: %q", got)
	}
}

func TestChatBroadcastTaggedWithSender(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	registry := NewRegistry(testLogger())
	authn := newStubAuthenticator()

	_, trA := startSession(t, ctx, registry, authn)
	authenticate(t, trA, "alice", "pw123456")
	_, trB := startSession(t, ctx, registry, authn)
	authenticate(t, trB, "bob", "pw654321")

	trA.in <- "hello there"
	mustNotice(t, trB, "Alice: hello there")
	mustNotice(t, trA, "Alice: hello there")
}

func TestWhisperEchoAndDelivery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	registry := NewRegistry(testLogger())
	authn := newStubAuthenticator()

	_, trA := startSession(t, ctx, registry, authn)
	authenticate(t, trA, "alice", "pw123456")
	_, trB := startSession(t, ctx, registry, authn)
	authenticate(t, trB, "bob", "pw654321")
	_, trC := startSession(t, ctx, registry, authn)
	authenticate(t, trC, "root", "rootpass")

	trA.in <- "/w Bob hello   over there"
	mustNotice(t, trB, "whisper from Alice: hello over there")
	mustNotice(t, trA, "whisper to Bob: hello over there")
	mustNoNotice(t, trC, "hello over there")
}

func TestWhisperUnknownTarget(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	registry := NewRegistry(testLogger())
	authn := newStubAuthenticator()

	_, trA := startSession(t, ctx, registry, authn)
	authenticate(t, trA, "alice", "pw123456")

	trA.in <- "/w Bob hello"
	mustNotice(t, trA, "no such user: Bob")
}

func TestKickDeniedForUserRole(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	registry := NewRegistry(testLogger())
	authn := newStubAuthenticator()

	_, trA := startSession(t, ctx, registry, authn)
	authenticate(t, trA, "alice", "pw123456")
	sessB, trB := startSession(t, ctx, registry, authn)
	authenticate(t, trB, "bob", "pw654321")

	trA.in <- "/kick Bob"
	mustNotice(t, trA, "permission denied")

	if sessB.State() != StateAuthenticated {
		t.Fatalf("target state = %v, want authenticated", sessB.State())
	}
	waitRegistered(t, registry, 2)
}

func TestAdminKick(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	registry := NewRegistry(testLogger())
	authn := newStubAuthenticator()

	_, trRoot := startSession(t, ctx, registry, authn)
	authenticate(t, trRoot, "root", "rootpass")
	sessA, trA := startSession(t, ctx, registry, authn)
	authenticate(t, trA, "alice", "pw123456")
	_, trB := startSession(t, ctx, registry, authn)
	authenticate(t, trB, "bob", "pw654321")

	trRoot.in <- "/kick Alice"

	mustNotice(t, trA, "you have been kicked by Root")
	mustNotice(t, trA, noticeBye)
	mustNotice(t, trB, "Alice was kicked by Root")
	mustNotice(t, trRoot, "Alice was kicked by Root")

	waitState(t, sessA, StateTerminated)
	waitRegistered(t, registry, 2)
	// The eviction already announced the departure; teardown must not
	// announce it again.
	mustNoNotice(t, trB, "Alice left the chat")
}

func TestExitSendsByeAndUnregisters(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	registry := NewRegistry(testLogger())
	authn := newStubAuthenticator()

	_, trA := startSession(t, ctx, registry, authn)
	authenticate(t, trA, "alice", "pw123456")
	sessB, trB := startSession(t, ctx, registry, authn)
	authenticate(t, trB, "bob", "pw654321")

	trB.in <- "/exit"
	mustNotice(t, trB, noticeBye)
	mustNotice(t, trA, "Bob left the chat")

	waitState(t, sessB, StateTerminated)
	waitRegistered(t, registry, 1)
}

func TestExitWhileUnauthenticated(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	registry := NewRegistry(testLogger())
	sess, tr := startSession(t, ctx, registry, newStubAuthenticator())

	tr.in <- "/exit"
	mustNotice(t, tr, noticeBye)
	waitState(t, sess, StateTerminated)
}

func TestTransportFailureTearsDownSingleSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	registry := NewRegistry(testLogger())
	authn := newStubAuthenticator()

	_, trA := startSession(t, ctx, registry, authn)
	authenticate(t, trA, "alice", "pw123456")
	sessB, trB := startSession(t, ctx, registry, authn)
	authenticate(t, trB, "bob", "pw654321")

	// Peer drops the connection.
	_ = trB.Close()

	mustNotice(t, trA, "Bob left the chat")
	waitState(t, sessB, StateTerminated)
	waitRegistered(t, registry, 1)

	// The survivor is unaffected.
	trA.in <- "still here"
	mustNotice(t, trA, "Alice: still here")
}

func TestReauthSwitchesIdentity(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	registry := NewRegistry(testLogger())
	authn := newStubAuthenticator()

	sess, tr := startSession(t, ctx, registry, authn)
	authenticate(t, tr, "alice", "pw123456")
	_, observer := startSession(t, ctx, registry, authn)
	authenticate(t, observer, "root", "rootpass")

	tr.in <- "/auth bob pw654321"
	mustNotice(t, tr, "authenticated as Bob")
	mustNotice(t, observer, "Alice left the chat")
	mustNotice(t, observer, "Bob joined the chat")

	if got := sess.Username(); got != "Bob" {
		t.Fatalf("username after re-auth = %q, want Bob", got)
	}
	waitRegistered(t, registry, 2)
}

func TestReauthUsernameTakenRevertsToUnauthenticated(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	registry := NewRegistry(testLogger())
	authn := newStubAuthenticator()

	_, trBob := startSession(t, ctx, registry, authn)
	authenticate(t, trBob, "bob", "pw654321")

	sess, tr := startSession(t, ctx, registry, authn)
	authenticate(t, tr, "alice", "pw123456")

	// Valid credentials, but Bob's username is bound to a live session.
	tr.in <- "/auth bob pw654321"
	mustNotice(t, tr, "already connected")

	waitState(t, sess, StateUnauthenticated)
	if sess.Profile() != nil {
		t.Fatal("stale profile kept after failed identity swap")
	}

	// The old identity was dropped before the attempt.
	tr.in <- "anyone?"
	mustNotice(t, tr, "not authenticated")
	waitRegistered(t, registry, 1)
}

func TestTerminatedSessionRefusesLogin(t *testing.T) {
	registry := NewRegistry(testLogger())
	sess := NewSession(newFakeTransport(), registry, newStubAuthenticator(), testLogger())

	// A kick that lands while authentication is still in flight terminates
	// the session before the auth result arrives. The late result must not
	// rebind the dead session.
	sess.shutdown()

	err := sess.Login(&UserProfile{Username: "Alice", Role: RoleUser})
	if !errors.Is(err, ErrSessionTerminated) {
		t.Fatalf("Login on terminated session = %v, want ErrSessionTerminated", err)
	}
	if got := sess.State(); got != StateTerminated {
		t.Fatalf("state = %v, want StateTerminated", got)
	}
	if sess.Profile() != nil {
		t.Fatal("terminated session holds a profile")
	}
	if registry.Len() != 0 {
		t.Fatalf("registry len = %d, want 0", registry.Len())
	}

	// The dispatcher's failure path must not leave the terminal state either.
	sess.clearProfile()
	if got := sess.State(); got != StateTerminated {
		t.Fatalf("state after clearProfile = %v, want StateTerminated", got)
	}
}

// gatedAuthenticator parks the auth attempt for one login so a test can
// terminate the session while authentication is in flight.
type gatedAuthenticator struct {
	inner     Authenticator
	gateLogin string
	entered   chan struct{}
	release   chan struct{}
}

func (a *gatedAuthenticator) Authenticate(ctx context.Context, login, password string) (*UserProfile, error) {
	if login == a.gateLogin {
		close(a.entered)
		<-a.release
	}
	return a.inner.Authenticate(ctx, login, password)
}

func (a *gatedAuthenticator) Register(ctx context.Context, login, password, username string) (*UserProfile, error) {
	return a.inner.Register(ctx, login, password, username)
}

func TestShutdownDuringReauthIsNotUndone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := NewRegistry(testLogger())
	gate := &gatedAuthenticator{
		inner:     newStubAuthenticator(),
		gateLogin: "bob",
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}

	sess, tr := startSession(t, ctx, registry, gate)
	authenticate(t, tr, "alice", "pw123456")

	tr.in <- "/auth bob pw654321"
	<-gate.entered

	// Cancellation lands while the backend call is in flight.
	cancel()
	waitState(t, sess, StateTerminated)
	close(gate.release)

	// The successful auth result arrives on a dead session: it must not
	// register Bob or resurrect the state machine.
	deadline := time.After(300 * time.Millisecond)
	for {
		if n := registry.Len(); n != 0 {
			t.Fatalf("terminated session re-registered itself, registry len = %d", n)
		}
		if sess.State() != StateTerminated {
			t.Fatal("terminated session left the terminal state")
		}
		select {
		case <-deadline:
			return
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestUnrecognizedCommandWhenAuthenticated(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	registry := NewRegistry(testLogger())
	sess, tr := startSession(t, ctx, registry, newStubAuthenticator())
	authenticate(t, tr, "alice", "pw123456")

	tr.in <- "/frobnicate now"
	mustNotice(t, tr, "unrecognized command: /frobnicate")

	if sess.State() != StateAuthenticated {
		t.Fatalf("state = %v, want authenticated", sess.State())
	}
}

func TestWrongArgumentCountsAreProtocolErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	registry := NewRegistry(testLogger())
	sess, tr := startSession(t, ctx, registry, newStubAuthenticator())

	tr.in <- "/auth onlylogin"
	mustNotice(t, tr, "usage: /auth")
	tr.in <- "/reg toofew args"
	mustNotice(t, tr, "usage: /reg")

	authenticate(t, tr, "alice", "pw123456")
	tr.in <- "/w Bob"
	mustNotice(t, tr, "usage: /w")
	tr.in <- "/kick"
	mustNotice(t, tr, "usage: /kick")

	if sess.State() != StateAuthenticated {
		t.Fatalf("state = %v, want authenticated", sess.State())
	}
}

func TestContextCancellationTerminatesSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	registry := NewRegistry(testLogger())
	authn := newStubAuthenticator()

	sessA, trA := startSession(t, ctx, registry, authn)
	authenticate(t, trA, "alice", "pw123456")
	sessB, _ := startSession(t, ctx, registry, authn)

	cancel()

	mustNotice(t, trA, noticeBye)
	waitState(t, sessA, StateTerminated)
	waitState(t, sessB, StateTerminated)
	waitRegistered(t, registry, 0)
}
