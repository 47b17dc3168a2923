package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat-server/internal/utils"
)

// SessionState tracks where a session is in its lifecycle.
type SessionState int

const (
	// StateUnauthenticated accepts only /auth, /reg and /exit.
	StateUnauthenticated SessionState = iota
	// StateAuthenticated accepts chat messages and the full command set.
	StateAuthenticated
	// StateTerminated is terminal; no transition leaves it.
	StateTerminated
)

const (
	cmdAuth    = "/auth"
	cmdReg     = "/reg"
	cmdWhisper = "/w"
	cmdKick    = "/kick"
	cmdExit    = "/exit"

	commandPrefix = "/"

	// noticeBye is sent right before a graceful close so clients can tell it
	// apart from a dropped connection.
	noticeBye = "/bye"

	noticeNotAuthenticated = "you are not authenticated, use /auth or /reg"

	// outboundQueueSize bounds the per-session FIFO delivery queue.
	outboundQueueSize = 32
)

// Session owns one client connection: its protocol state machine, its
// command dispatcher and its outbound delivery queue. All blocking I/O stays
// on the session's own goroutines; the registry only ever hands messages to
// the queue.
type Session struct {
	id        string
	transport Transport
	registry  *Registry
	auth      Authenticator
	log       zerolog.Logger

	outbound chan string
	stopped  chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	profile *UserProfile
	state   SessionState
}

// NewSession builds a session over the given transport. The session is idle
// until Run is called.
func NewSession(transport Transport, registry *Registry, authenticator Authenticator, logger *zerolog.Logger) *Session {
	id := utils.NewID()
	return &Session{
		id:        id,
		transport: transport,
		registry:  registry,
		auth:      authenticator,
		log:       logger.With().Str("session_id", id).Logger(),
		outbound:  make(chan string, outboundQueueSize),
		stopped:   make(chan struct{}),
	}
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Profile returns the bound profile, or nil while unauthenticated.
func (s *Session) Profile() *UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Username returns the bound username, or "" while unauthenticated.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return ""
	}
	return s.profile.Username
}

// Run drives the session until the client exits, is kicked, the transport
// fails or ctx is cancelled. It blocks; callers run it on its own goroutine.
func (s *Session) Run(ctx context.Context) {
	go s.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			s.shutdown()
		case <-s.stopped:
		}
	}()
	defer s.teardown()

	for {
		message, err := s.transport.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.isStopped() {
				s.log.Warn().Err(err).Msg("transport receive failed")
			}
			return
		}
		s.handle(ctx, message)
		if s.State() == StateTerminated {
			return
		}
	}
}

// Login binds a profile and registers the username. It is used by the
// dispatcher after a successful /auth or /reg, and by transports that
// pre-authenticate a connection (e.g. with a resume token) before Run.
// A terminated session refuses the transition: a kick or cancellation that
// lands mid-authentication must not be undone by the late result.
func (s *Session) Login(profile *UserProfile) error {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return ErrSessionTerminated
	}
	s.profile = profile
	s.state = StateAuthenticated
	s.mu.Unlock()

	if err := s.registry.Register(profile.Username, s); err != nil {
		s.clearProfile()
		return err
	}
	return nil
}

// Terminate signals the session to stop. It is safe to call from any
// goroutine; the owning goroutines observe it at their next I/O boundary.
func (s *Session) Terminate() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// handle interprets one inbound message: a command if it starts with the
// prefix character, a chat message otherwise.
func (s *Session) handle(ctx context.Context, message string) {
	if !strings.HasPrefix(message, commandPrefix) {
		s.handleChat(message)
		return
	}

	fields := strings.Fields(message)
	command := fields[0]
	args := fields[1:]

	switch command {
	case cmdExit:
		s.shutdown()
	case cmdAuth:
		s.handleAuth(ctx, args)
	case cmdReg:
		s.handleRegister(ctx, args)
	case cmdWhisper:
		s.handleWhisper(args)
	case cmdKick:
		s.handleKick(args)
	default:
		if s.State() != StateAuthenticated {
			s.deliver(noticeNotAuthenticated)
			return
		}
		s.deliver("unrecognized command: " + command)
	}
}

func (s *Session) handleChat(text string) {
	s.mu.Lock()
	profile, state := s.profile, s.state
	s.mu.Unlock()

	if state != StateAuthenticated || profile == nil {
		s.deliver(noticeNotAuthenticated)
		return
	}
	s.registry.Broadcast(profile.Username + ": " + text)
}

func (s *Session) handleAuth(ctx context.Context, args []string) {
	if len(args) != 2 {
		s.deliver("usage: /auth <login> <password>")
		return
	}
	s.attemptLogin(ctx, func(ctx context.Context) (*UserProfile, error) {
		return s.auth.Authenticate(ctx, args[0], args[1])
	})
}

func (s *Session) handleRegister(ctx context.Context, args []string) {
	if len(args) != 3 {
		s.deliver("usage: /reg <username> <login> <password>")
		return
	}
	username, login, password := args[0], args[1], args[2]
	s.attemptLogin(ctx, func(ctx context.Context) (*UserProfile, error) {
		return s.auth.Register(ctx, login, password, username)
	})
}

// attemptLogin runs the shared auth/reg path. Re-authentication drops the
// current identity first: if the new attempt fails, the session stays
// unauthenticated rather than keeping a stale profile.
func (s *Session) attemptLogin(ctx context.Context, authenticate func(context.Context) (*UserProfile, error)) {
	if s.State() == StateAuthenticated {
		s.registry.Unregister(s)
		s.clearProfile()
	}

	profile, err := authenticate(ctx)
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			s.log.Error().Err(err).Msg("authentication backend failure")
		}
		s.deliver(authFailureNotice(err))
		return
	}

	if err := s.Login(profile); err != nil {
		if !errors.Is(err, ErrSessionTerminated) {
			s.deliver("username " + profile.Username + " is already connected, pick another identity")
		}
		return
	}
	s.deliver("authenticated as " + profile.Username)
}

func (s *Session) handleWhisper(args []string) {
	if !s.requireAuth() {
		return
	}
	if len(args) < 2 {
		s.deliver("usage: /w <username> <message>")
		return
	}
	target := args[0]
	body := strings.Join(args[1:], " ")
	from := s.Username()

	if err := s.registry.Whisper(target, "whisper from "+from+": "+body); err != nil {
		s.deliver("no such user: " + target)
		return
	}
	s.deliver("whisper to " + target + ": " + body)
}

func (s *Session) handleKick(args []string) {
	if !s.requireAuth() {
		return
	}
	if len(args) != 1 {
		s.deliver("usage: /kick <username>")
		return
	}
	profile := s.Profile()
	if !profile.Role.Allows("kick") {
		s.deliver("permission denied: /kick requires the admin role")
		return
	}
	if err := s.registry.Kick(args[0], profile.Username); err != nil {
		s.deliver("no such user: " + args[0])
	}
}

func (s *Session) requireAuth() bool {
	if s.State() != StateAuthenticated {
		s.deliver(noticeNotAuthenticated)
		return false
	}
	return true
}

// deliver queues one outbound message without blocking. It reports false for
// a stopped session or a full queue; delivery is best effort by contract.
func (s *Session) deliver(message string) bool {
	select {
	case <-s.stopped:
		return false
	default:
	}
	select {
	case s.outbound <- message:
		return true
	default:
		return false
	}
}

// shutdown moves the session to Terminated, queues the terminal notice and
// signals the write loop to flush and close. Used by /exit, kick and
// service-wide cancellation.
func (s *Session) shutdown() {
	s.mu.Lock()
	s.state = StateTerminated
	s.mu.Unlock()
	s.deliver(noticeBye)
	s.Terminate()
}

// teardown runs exactly once when Run returns: the registry binding goes
// away (a no-op if a kick already removed it) and the transport is released.
func (s *Session) teardown() {
	s.mu.Lock()
	s.state = StateTerminated
	s.mu.Unlock()
	s.registry.Unregister(s)
	s.Terminate()
}

// clearProfile drops the bound identity. Terminated stays terminal.
func (s *Session) clearProfile() {
	s.mu.Lock()
	s.profile = nil
	if s.state != StateTerminated {
		s.state = StateUnauthenticated
	}
	s.mu.Unlock()
}

func (s *Session) isStopped() bool {
	select {
	case <-s.stopped:
		return true
	default:
		return false
	}
}

// writeLoop is the only goroutine that touches the transport for writes.
// On the stop signal it flushes whatever is already queued, then closes the
// transport, which also unblocks a pending Receive.
func (s *Session) writeLoop() {
	defer func() {
		if err := s.transport.Close(); err != nil {
			s.log.Debug().Err(err).Msg("transport close")
		}
	}()

	for {
		select {
		case message := <-s.outbound:
			if err := s.transport.Send(message); err != nil {
				s.log.Warn().Err(err).Msg("transport send failed")
				s.Terminate()
				return
			}
		case <-s.stopped:
			for {
				select {
				case message := <-s.outbound:
					if err := s.transport.Send(message); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// authFailureNotice maps an Authenticator failure to the client-facing
// notice. Backend failures are deliberately indistinct to the end user.
func authFailureNotice(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "authentication failed: incorrect login or password"
	case errors.Is(err, ErrWeakCredentials):
		return "registration failed: login must be 3+ chars, password 6+ chars, username 3+ chars"
	case errors.Is(err, ErrLoginTaken):
		return "registration failed: login is already taken"
	case errors.Is(err, ErrUsernameTaken):
		return "registration failed: username is already taken"
	default:
		return "authentication failed"
	}
}
