package http

import (
	"context"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat-server/internal/auth"
	"github.com/vovakirdan/streamchat-server/internal/chat"
)

// WSHandler upgrades HTTP connections and runs a chat session over each.
// A valid ?token= query parameter (from /api/login or /api/register) starts
// the session already authenticated; the registry bind still applies, so a
// second connection under the same username is refused the usual way.
type WSHandler struct {
	registry *chat.Registry
	auth     chat.Authenticator
	jwt      *auth.JWTConfig
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(registry *chat.Registry, authenticator chat.Authenticator, jwtConfig *auth.JWTConfig, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		registry: registry,
		auth:     authenticator,
		jwt:      jwtConfig,
		log:      logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	tr := newWSTransport(ctx, conn)
	sess := chat.NewSession(tr, h.registry, h.auth, h.log)

	if token := r.URL.Query().Get("token"); token != "" {
		h.preAuthenticate(sess, tr, token)
	}

	sess.Run(ctx)
}

// preAuthenticate binds a token-carried profile before the session starts.
// Failures are reported in-band and leave the session unauthenticated.
func (h *WSHandler) preAuthenticate(sess *chat.Session, tr *wsTransport, token string) {
	profile, err := auth.ValidateToken(h.jwt, token)
	if err != nil {
		h.log.Warn().Err(err).Msg("rejected ws resume token")
		_ = tr.Send("invalid token, authenticate with /auth or /reg")
		return
	}
	if err := sess.Login(profile); err != nil {
		_ = tr.Send("username " + profile.Username + " is already connected, pick another identity")
		return
	}
	_ = tr.Send("authenticated as " + profile.Username)
}

// wsTransport adapts a websocket connection to the session core's Transport
// port. Each text frame is one discrete message.
type wsTransport struct {
	ctx  context.Context
	conn *websocket.Conn
}

func newWSTransport(ctx context.Context, conn *websocket.Conn) *wsTransport {
	return &wsTransport{ctx: ctx, conn: conn}
}

func (t *wsTransport) Send(message string) error {
	return t.conn.Write(t.ctx, websocket.MessageText, []byte(message))
}

func (t *wsTransport) Receive() (string, error) {
	_, data, err := t.conn.Read(t.ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "closing")
}
