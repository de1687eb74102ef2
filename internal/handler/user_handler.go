package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"sugang/internal/model"
	"sugang/internal/service"
)

// UserHandler serves the signed-in student's profile.
type UserHandler struct {
	svc service.UserService
	log *zap.Logger
}

// NewUserHandler creates a handler layer.
func NewUserHandler(svc service.UserService, log *zap.Logger) *UserHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserHandler{svc: svc, log: log}
}

// ProfileResponse is the current user plus the session clock.
type ProfileResponse struct {
	User             *model.User `json:"user"`
	LoginAt          time.Time   `json:"login_at"`
	SessionExpiresAt time.Time   `json:"session_expires_at"`
}

// GetMe godoc
// @Summary Current user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ProfileResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /me [get]
func (h *UserHandler) GetMe(c echo.Context) error {
	state, err := sessionState(c)
	if err != nil {
		return err
	}

	user, err := h.svc.GetUser(c.Request().Context(), state.UserID)
	if err != nil {
		return failure(c, h.log, err)
	}
	return c.JSON(http.StatusOK, ProfileResponse{
		User:             user,
		LoginAt:          state.LoginAt,
		SessionExpiresAt: state.ExpiresAt(),
	})
}
