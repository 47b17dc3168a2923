package http

import (
	"errors"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat-server/internal/auth"
	"github.com/vovakirdan/streamchat-server/internal/chat"
)

// APIHandler serves the resume-token endpoints. They drive the same
// Authentication Port as the in-band /auth and /reg commands; the token
// lets a WebSocket client connect pre-authenticated.
type APIHandler struct {
	auth chat.Authenticator
	jwt  *auth.JWTConfig
	log  *zerolog.Logger
}

// ErrorResponse is the JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

type registerRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
	Username string `json:"username" binding:"required"`
}

type loginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Register creates an account and returns a resume token.
func (h *APIHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(stdhttp.StatusBadRequest, ErrorResponse{Error: "login, password and username are required"})
		return
	}

	profile, err := h.auth.Register(c.Request.Context(), req.Login, req.Password, req.Username)
	if err != nil {
		h.writeAuthError(c, err)
		return
	}
	h.writeToken(c, profile)
}

// Login verifies credentials and returns a resume token.
func (h *APIHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(stdhttp.StatusBadRequest, ErrorResponse{Error: "login and password are required"})
		return
	}

	profile, err := h.auth.Authenticate(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		h.writeAuthError(c, err)
		return
	}
	h.writeToken(c, profile)
}

func (h *APIHandler) writeToken(c *gin.Context, profile *chat.UserProfile) {
	token, err := auth.GenerateToken(h.jwt, profile)
	if err != nil {
		h.log.Error().Err(err).Msg("generate token")
		c.JSON(stdhttp.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(stdhttp.StatusOK, tokenResponse{
		Token:    token,
		Username: profile.Username,
		Role:     string(profile.Role),
	})
}

func (h *APIHandler) writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidCredentials):
		c.JSON(stdhttp.StatusUnauthorized, ErrorResponse{Error: "incorrect login or password"})
	case errors.Is(err, chat.ErrWeakCredentials):
		c.JSON(stdhttp.StatusBadRequest, ErrorResponse{Error: "login must be 3+ chars, password 6+ chars, username 3+ chars"})
	case errors.Is(err, chat.ErrLoginTaken):
		c.JSON(stdhttp.StatusConflict, ErrorResponse{Error: "login is already taken"})
	case errors.Is(err, chat.ErrUsernameTaken):
		c.JSON(stdhttp.StatusConflict, ErrorResponse{Error: "username is already taken"})
	default:
		// Backend causes stay in the logs, not in the response.
		h.log.Error().Err(err).Msg("authentication backend failure")
		c.JSON(stdhttp.StatusServiceUnavailable, ErrorResponse{Error: "authentication failed"})
	}
}
