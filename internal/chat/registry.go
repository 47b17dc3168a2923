package chat

import (
	"sync"

	"github.com/rs/zerolog"
)

// Registry is the process-wide directory of username -> active session.
// Every operation runs under one mutex: registration state and routing share
// a single critical section, so a broadcast can never observe a half-applied
// register or unregister. Delivery inside the critical section is a
// non-blocking queue handoff, never transport I/O.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	log      *zerolog.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		log:      logger,
	}
}

// Register binds a username to a session and announces the join.
// It fails with ErrUsernameTaken if any session already holds the username;
// callers must unregister before re-registering under a different name.
func (r *Registry) Register(username string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.sessions[username]; taken {
		return ErrUsernameTaken
	}
	r.sessions[username] = s
	r.log.Info().Str("username", username).Str("session_id", s.ID()).Msg("session registered")
	r.broadcastLocked(username + " joined the chat")
	return nil
}

// Unregister removes the session's binding and announces the departure.
// It is an idempotent no-op when the session is not the current holder of
// its own username, which absorbs races with kicks and repeated teardowns.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	username := s.Username()
	if r.removeLocked(username, s, username+" left the chat") {
		r.log.Info().Str("username", username).Str("session_id", s.ID()).Msg("session unregistered")
	}
}

// Broadcast sends a message to every registered session. Delivery is best
// effort: a full or stopped session is skipped and the rest still receive
// the message.
func (r *Registry) Broadcast(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(message)
}

// Whisper delivers a message to the named session only.
func (r *Registry) Whisper(target, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[target]
	if !ok {
		return ErrUsernameNotFound
	}
	s.deliver(message)
	return nil
}

// Kick evicts the named session: it is told who kicked it, removed through
// the same path as a voluntary departure (so there is exactly one
// announcement and no dangling entry), and its termination is signalled.
// The owning goroutine observes the signal at its next I/O boundary.
func (r *Registry) Kick(target, kicker string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[target]
	if !ok {
		return ErrUsernameNotFound
	}
	s.deliver("you have been kicked by " + kicker)
	r.removeLocked(target, s, target+" was kicked by "+kicker)
	s.shutdown()
	r.log.Info().Str("username", target).Str("kicked_by", kicker).Msg("session kicked")
	return nil
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// removeLocked deletes the mapping if s is its current holder and broadcasts
// the departure notice. Both Unregister and Kick funnel through here.
func (r *Registry) removeLocked(username string, s *Session, notice string) bool {
	if username == "" || r.sessions[username] != s {
		return false
	}
	delete(r.sessions, username)
	r.broadcastLocked(notice)
	return true
}

func (r *Registry) broadcastLocked(message string) {
	for username, s := range r.sessions {
		if !s.deliver(message) {
			r.log.Warn().Str("username", username).Msg("dropped message for slow or stopped session")
		}
	}
}
