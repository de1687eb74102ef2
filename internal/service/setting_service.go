package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"k8s.io/utils/clock"

	apperrors "sugang/internal/errors"
	"sugang/internal/model"
	"sugang/internal/repository"
)

// SettingData is everything the settings page shows.
type SettingData struct {
	User       *model.User    `json:"user"`
	Courses    []model.Course `json:"courses"`
	FailRate   model.FailRate `json:"fail_rate"`
	LoginAt    time.Time      `json:"login_at"`
	TimerStart *time.Time     `json:"timer_start,omitempty"`
	// ResetCount is how many Applied courses were moved back to the wish-list.
	ResetCount int64 `json:"reset_count"`
}

// EnvironmentInput is the simulation configuration a user saves.
type EnvironmentInput struct {
	MaxCredit int
	// FailRate is "min-max" in percent. Empty keeps the current range.
	FailRate string
}

// SettingService manages a user's courses and simulation settings.
type SettingService interface {
	RenderSettingData(ctx context.Context, userID string, state *model.SessionState) (*SettingData, error)
	CreateCourse(ctx context.Context, userID string, fields model.CourseFields) (*model.Course, error)
	UpdateCourse(ctx context.Context, userID string, id uint, fields model.CourseFields) (*model.Course, error)
	DeleteCourse(ctx context.Context, userID string, id uint) error
	SaveEnvironment(ctx context.Context, userID string, env EnvironmentInput, state *model.SessionState) error
}

type settingService struct {
	courseRepo repository.CourseRepository
	users      UserService
	clock      clock.PassiveClock
	log        *zap.Logger
}

// NewSettingService creates a settings service.
func NewSettingService(courseRepo repository.CourseRepository, users UserService, clk clock.PassiveClock, log *zap.Logger) SettingService {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &settingService{
		courseRepo: courseRepo,
		users:      users,
		clock:      clk,
		log:        log,
	}
}

// RenderSettingData resets the user's Applied courses to the wish-list so a
// new run starts clean, then loads the page data. AutoApplied courses are kept.
// It may set state.LoginAt; the caller persists state.
func (s *settingService) RenderSettingData(ctx context.Context, userID string, state *model.SessionState) (*SettingData, error) {
	if state == nil {
		return nil, apperrors.ErrSessionNotFound
	}
	state.EnsureLoginAt(s.clock.Now())

	reset, err := s.courseRepo.ResetStatus(ctx, userID, model.CourseStatusApplied, model.CourseStatusWishList)
	if err != nil {
		return nil, fmt.Errorf("reset applied courses: %w", err)
	}
	if reset > 0 {
		s.log.Info("reset applied courses", zap.String("user_id", userID), zap.Int64("count", reset))
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	courses, err := s.courseRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}

	return &SettingData{
		User:       user,
		Courses:    courses,
		FailRate:   state.Rate(),
		LoginAt:    state.LoginAt,
		TimerStart: state.TimerStart,
		ResetCount: reset,
	}, nil
}

// CreateCourse adds a course for userID.
func (s *settingService) CreateCourse(ctx context.Context, userID string, fields model.CourseFields) (*model.Course, error) {
	if !fields.Status.Valid() {
		return nil, apperrors.ErrInvalidStatus
	}
	if fields.Credit == 0 {
		fields.Credit = model.DefaultCredit
	}

	course := &model.Course{UserID: userID}
	fields.Apply(course)
	if err := s.courseRepo.Create(ctx, course); err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}
	return course, nil
}

// UpdateCourse overwrites every editable field of the course, status included.
func (s *settingService) UpdateCourse(ctx context.Context, userID string, id uint, fields model.CourseFields) (*model.Course, error) {
	if !fields.Status.Valid() {
		return nil, apperrors.ErrInvalidStatus
	}

	course, err := s.findCourse(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	fields.Apply(course)
	if err := s.courseRepo.Update(ctx, course); err != nil {
		return nil, fmt.Errorf("update course: %w", err)
	}
	return course, nil
}

// DeleteCourse removes a course regardless of its status.
func (s *settingService) DeleteCourse(ctx context.Context, userID string, id uint) error {
	if _, err := s.findCourse(ctx, userID, id); err != nil {
		return err
	}
	if _, err := s.courseRepo.Delete(ctx, userID, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}

// SaveEnvironment stores the credit cap, applies a new fail rate range to the
// session and restarts the escalation timer. The caller persists state.
func (s *settingService) SaveEnvironment(ctx context.Context, userID string, env EnvironmentInput, state *model.SessionState) error {
	if state == nil {
		return apperrors.ErrSessionNotFound
	}
	rate, err := ParseFailRate(env.FailRate)
	if err != nil {
		return err
	}

	if err := s.users.UpdateMaxCredit(ctx, userID, env.MaxCredit); err != nil {
		return err
	}

	if rate != nil {
		state.FailRate = rate
	}
	now := s.clock.Now()
	state.TimerStart = &now
	return nil
}

func (s *settingService) findCourse(ctx context.Context, userID string, id uint) (*model.Course, error) {
	course, err := s.courseRepo.FindByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCourseNotFound
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return course, nil
}

// ParseFailRate parses "min-max" percentages. An empty string yields nil.
func ParseFailRate(raw string) (*model.FailRate, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	lo, hi, ok := strings.Cut(raw, "-")
	if !ok {
		return nil, apperrors.ErrInvalidFailRate
	}
	minRate, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return nil, apperrors.ErrInvalidFailRate
	}
	maxRate, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return nil, apperrors.ErrInvalidFailRate
	}
	if math.IsNaN(minRate) || math.IsNaN(maxRate) || minRate < 0 || maxRate > 100 || minRate > maxRate {
		return nil, apperrors.ErrInvalidFailRate
	}
	return &model.FailRate{Min: minRate, Max: maxRate}, nil
}
