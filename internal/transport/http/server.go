package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat-server/internal/auth"
	"github.com/vovakirdan/streamchat-server/internal/chat"
	"github.com/vovakirdan/streamchat-server/internal/config"
)

// NewServer builds the HTTP server: health probe, WebSocket chat endpoint
// and the resume-token API.
func NewServer(registry *chat.Registry, authenticator chat.Authenticator, jwtConfig *auth.JWTConfig, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	api := &APIHandler{auth: authenticator, jwt: jwtConfig, log: logger}
	router.POST("/api/register", api.Register)
	router.POST("/api/login", api.Login)

	router.GET("/ws", gin.WrapH(NewWSHandler(registry, authenticator, jwtConfig, logger)))

	return &stdhttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
