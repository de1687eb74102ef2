package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"sugang/internal/model"
	"sugang/internal/service"
)

// SettingHandler serves the course list and simulation settings.
type SettingHandler struct {
	settingService service.SettingService
	sessions       SessionStore
	log            *zap.Logger
}

// NewSettingHandler creates a new setting handler.
func NewSettingHandler(settingService service.SettingService, sessions SessionStore, log *zap.Logger) *SettingHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SettingHandler{settingService: settingService, sessions: sessions, log: log}
}

// CourseRequest is the editable part of a course.
type CourseRequest struct {
	OrderNo    int    `json:"order_no" validate:"gte=0"`
	CourseName string `json:"course_name" validate:"required,max=255"`
	CourseCode string `json:"course_code" validate:"max=50"`
	ClassNo    string `json:"class_no" validate:"max=20"`
	CourseType string `json:"course_type" validate:"max=50"`
	Credit     int    `json:"credit" validate:"gte=0,lte=30"`
	Professor  string `json:"professor" validate:"max=100"`
	Department string `json:"department" validate:"max=100"`
	TimeInfo   string `json:"time_info" validate:"max=255"`
	Memo       string `json:"memo"`
	Status     int    `json:"status" validate:"gte=0,lte=2"`
}

func (r CourseRequest) fields() model.CourseFields {
	return model.CourseFields{
		OrderNo:    r.OrderNo,
		CourseName: r.CourseName,
		CourseCode: r.CourseCode,
		ClassNo:    r.ClassNo,
		CourseType: r.CourseType,
		Credit:     r.Credit,
		Professor:  r.Professor,
		Department: r.Department,
		TimeInfo:   r.TimeInfo,
		Memo:       r.Memo,
		Status:     model.CourseStatus(r.Status),
	}
}

// EnvironmentRequest configures a simulation run.
type EnvironmentRequest struct {
	MaxCredit int `json:"max_credit" validate:"required,min=1,max=30"`
	// FailRate is "min-max" in percent, e.g. "0-20".
	FailRate string `json:"fail_rate" validate:"max=32"`
}

// EnvironmentResponse echoes the saved configuration.
type EnvironmentResponse struct {
	Success    bool           `json:"success"`
	MaxCredit  int            `json:"max_credit"`
	FailRate   model.FailRate `json:"fail_rate"`
	TimerStart *time.Time     `json:"timer_start"`
}

// GetSetting godoc
// @Summary Settings page data
// @Description Moves every Applied course back to the wish-list, then lists all courses.
// @Tags setting
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.SettingData
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /setting [get]
func (h *SettingHandler) GetSetting(c echo.Context) error {
	state, err := sessionState(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	data, err := h.settingService.RenderSettingData(ctx, state.UserID, state)
	if err != nil {
		return failure(c, h.log, err)
	}
	loginAt := state.LoginAt
	if _, err := h.sessions.Update(ctx, state.ID, func(s *model.SessionState) {
		s.EnsureLoginAt(loginAt)
	}); err != nil {
		return failure(c, h.log, err)
	}
	return c.JSON(http.StatusOK, data)
}

// CreateCourse godoc
// @Summary Add a course
// @Tags setting
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CourseRequest true "Course"
// @Success 201 {object} model.Course
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /setting/course [post]
func (h *SettingHandler) CreateCourse(c echo.Context) error {
	state, err := sessionState(c)
	if err != nil {
		return err
	}
	var req CourseRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	course, err := h.settingService.CreateCourse(c.Request().Context(), state.UserID, req.fields())
	if err != nil {
		return failure(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, course)
}

// UpdateCourse godoc
// @Summary Edit a course
// @Tags setting
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Course ID"
// @Param request body CourseRequest true "Course"
// @Success 200 {object} model.Course
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /setting/course/{id} [put]
func (h *SettingHandler) UpdateCourse(c echo.Context) error {
	state, err := sessionState(c)
	if err != nil {
		return err
	}
	id, err := courseIDParam(c)
	if err != nil {
		return err
	}
	var req CourseRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	course, err := h.settingService.UpdateCourse(c.Request().Context(), state.UserID, id, req.fields())
	if err != nil {
		return failure(c, h.log, err)
	}
	return c.JSON(http.StatusOK, course)
}

// DeleteCourse godoc
// @Summary Delete a course
// @Tags setting
// @Produce json
// @Security BearerAuth
// @Param id path int true "Course ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /setting/course/{id} [delete]
func (h *SettingHandler) DeleteCourse(c echo.Context) error {
	state, err := sessionState(c)
	if err != nil {
		return err
	}
	id, err := courseIDParam(c)
	if err != nil {
		return err
	}

	if err := h.settingService.DeleteCourse(c.Request().Context(), state.UserID, id); err != nil {
		return failure(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// SaveEnvironment godoc
// @Summary Save simulation settings and start the escalation timer
// @Tags setting
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body EnvironmentRequest true "Environment"
// @Success 200 {object} EnvironmentResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /setting/env [post]
func (h *SettingHandler) SaveEnvironment(c echo.Context) error {
	state, err := sessionState(c)
	if err != nil {
		return err
	}
	var req EnvironmentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	env := service.EnvironmentInput{MaxCredit: req.MaxCredit, FailRate: req.FailRate}
	if err := h.settingService.SaveEnvironment(ctx, state.UserID, env, state); err != nil {
		return failure(c, h.log, err)
	}
	saved, err := h.sessions.Update(ctx, state.ID, func(s *model.SessionState) {
		s.FailRate = state.FailRate
		s.TimerStart = state.TimerStart
	})
	if err != nil {
		return failure(c, h.log, err)
	}

	return c.JSON(http.StatusOK, EnvironmentResponse{
		Success:    true,
		MaxCredit:  req.MaxCredit,
		FailRate:   saved.Rate(),
		TimerStart: saved.TimerStart,
	})
}

func courseIDParam(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest("invalid course id", "INVALID_ID")
	}
	return uint(id), nil
}
