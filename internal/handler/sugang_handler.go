package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"sugang/internal/model"
	"sugang/internal/service"
)

// SugangHandler serves the registration simulation.
type SugangHandler struct {
	sugangService service.SugangService
	sessions      SessionStore
	log           *zap.Logger
}

// NewSugangHandler creates a new sugang handler.
func NewSugangHandler(sugangService service.SugangService, sessions SessionStore, log *zap.Logger) *SugangHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SugangHandler{sugangService: sugangService, sessions: sessions, log: log}
}

// CourseIDRequest names the course an action targets.
type CourseIDRequest struct {
	CourseID uint `json:"course_id" validate:"required"`
}

// RemoveResponse reports a removal. Hidden is set when the course was kept
// in the store and only dropped from the results view.
type RemoveResponse struct {
	Success bool          `json:"success"`
	Deleted bool          `json:"deleted"`
	Hidden  bool          `json:"hidden"`
	Course  *model.Course `json:"course"`
}

// GetSugang godoc
// @Summary Registration page data
// @Tags sugang
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.SugangData
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /sugang [get]
func (h *SugangHandler) GetSugang(c echo.Context) error {
	state, err := sessionState(c)
	if err != nil {
		return err
	}

	data, err := h.sugangService.ListSugangData(c.Request().Context(), state.UserID, state)
	if err != nil {
		return failure(c, h.log, err)
	}
	return c.JSON(http.StatusOK, data)
}

// Apply godoc
// @Summary Attempt to register for a course
// @Description Conflicts and simulated failures answer 200 with success=false.
// @Tags sugang
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CourseIDRequest true "Target course"
// @Success 200 {object} service.ApplyResult
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /sugang/apply [post]
func (h *SugangHandler) Apply(c echo.Context) error {
	state, err := sessionState(c)
	if err != nil {
		return err
	}
	var req CourseIDRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.sugangService.AttemptApply(c.Request().Context(), state.UserID, req.CourseID, state)
	if err != nil {
		return failure(c, h.log, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Remove godoc
// @Summary Remove a registration result
// @Description Applied courses are deleted. Pre-seeded courses stay in the store and are hidden for this session.
// @Tags sugang
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CourseIDRequest true "Target course"
// @Success 200 {object} RemoveResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /sugang/delete [post]
func (h *SugangHandler) Remove(c echo.Context) error {
	state, err := sessionState(c)
	if err != nil {
		return err
	}
	var req CourseIDRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	result, err := h.sugangService.RemoveApplied(ctx, state.UserID, req.CourseID)
	if err != nil {
		return failure(c, h.log, err)
	}

	resp := RemoveResponse{Success: true, Deleted: result.Deleted, Course: result.Course}
	if !result.Deleted && result.Course.Status == model.CourseStatusAutoApplied {
		courseID := result.Course.ID
		if _, err := h.sessions.Update(ctx, state.ID, func(s *model.SessionState) {
			s.Hide(courseID)
		}); err != nil {
			return failure(c, h.log, err)
		}
		resp.Hidden = true
	}
	return c.JSON(http.StatusOK, resp)
}
