package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat-server/internal/chat"
)

// Server accepts raw TCP connections and runs a chat session per connection.
// The accept loop never blocks on per-connection work.
type Server struct {
	addr     string
	registry *chat.Registry
	auth     chat.Authenticator
	log      *zerolog.Logger
}

// NewServer builds a TCP chat listener.
func NewServer(addr string, registry *chat.Registry, authenticator chat.Authenticator, logger *zerolog.Logger) *Server {
	return &Server{
		addr:     addr,
		registry: registry,
		auth:     authenticator,
		log:      logger,
	}
}

// Run listens on the configured address and serves until ctx is cancelled.
// A bind or accept failure is fatal and returned; per-connection failures
// only tear down their own session.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("tcp listener started")

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			// In-flight sessions finish their own teardown before we return.
			wg.Wait()
			if ctx.Err() != nil {
				s.log.Info().Msg("tcp listener stopped")
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		sess := chat.NewSession(NewLineTransport(conn), s.registry, s.auth, s.log)
		s.log.Debug().
			Str("session_id", sess.ID()).
			Str("remote", conn.RemoteAddr().String()).
			Msg("connection accepted")

		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.Run(ctx)
		}()
	}
}
