package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"k8s.io/utils/clock"

	apperrors "sugang/internal/errors"
	"sugang/internal/metrics"
	"sugang/internal/model"
	"sugang/internal/repository"
)

const (
	// MessageConflict is returned when the target clashes with a committed course.
	MessageConflict = "already applied or time conflict"
	// MessageCourseFull is returned when the random draw rejects the attempt.
	MessageCourseFull = "the course is full"
	// MessageApplied is returned for an accepted attempt.
	MessageApplied = "registration completed"
)

// Rejection reasons.
const (
	ReasonConflict         = "conflict"
	ReasonSimulatedFailure = "simulated_failure"
)

var tracer = otel.Tracer("sugang/internal/service")

// SugangData is everything the registration page shows.
type SugangData struct {
	// WishList holds the attemptable list: WishList and AutoApplied courses.
	WishList []model.Course `json:"wish_list"`
	// Applied holds committed courses minus those hidden in the session.
	Applied          []model.Course `json:"applied"`
	HiddenCount      int            `json:"hidden_count"`
	EarnedCredit     int            `json:"earned_credit"`
	MaxCredit        int            `json:"max_credit"`
	LoginAt          time.Time      `json:"login_at"`
	SessionExpiresAt time.Time      `json:"session_expires_at"`
}

// ApplyResult is the outcome of one attempt. Rejections are results, not errors.
type ApplyResult struct {
	Accepted bool          `json:"success"`
	Message  string        `json:"message"`
	Reason   string        `json:"reason,omitempty"`
	Rate     float64       `json:"fail_rate"`
	Course   *model.Course `json:"course,omitempty"`
}

// RemoveResult reports what removing an attempt did.
type RemoveResult struct {
	Course  *model.Course `json:"course"`
	Deleted bool          `json:"deleted"`
}

// SugangService runs the registration simulation.
type SugangService interface {
	ListSugangData(ctx context.Context, userID string, state *model.SessionState) (*SugangData, error)
	AttemptApply(ctx context.Context, userID string, courseID uint, state *model.SessionState) (*ApplyResult, error)
	RemoveApplied(ctx context.Context, userID string, courseID uint) (*RemoveResult, error)
}

type sugangService struct {
	courseRepo repository.CourseRepository
	users      UserService
	clock      clock.PassiveClock
	random     RandomSource
	log        *zap.Logger
}

// NewSugangService creates a registration service. Nil clock, random source
// and logger fall back to the real clock, DefaultRandom and a no-op logger.
func NewSugangService(
	courseRepo repository.CourseRepository,
	users UserService,
	clk clock.PassiveClock,
	random RandomSource,
	log *zap.Logger,
) SugangService {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if random == nil {
		random = DefaultRandom
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &sugangService{
		courseRepo: courseRepo,
		users:      users,
		clock:      clk,
		random:     random,
		log:        log,
	}
}

// ListSugangData loads the wish-list and the visible results for the session.
func (s *sugangService) ListSugangData(ctx context.Context, userID string, state *model.SessionState) (*SugangData, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	wish, err := s.courseRepo.ListByUserAndStatus(ctx, userID, model.CourseStatusWishList, model.CourseStatusAutoApplied)
	if err != nil {
		return nil, fmt.Errorf("list wish list: %w", err)
	}
	committed, err := s.courseRepo.ListByUserAndStatus(ctx, userID, model.CourseStatusAutoApplied, model.CourseStatusApplied)
	if err != nil {
		return nil, fmt.Errorf("list applied: %w", err)
	}

	data := &SugangData{
		WishList:  wish,
		Applied:   make([]model.Course, 0, len(committed)),
		MaxCredit: user.MaxCredit,
	}
	for _, c := range committed {
		if state != nil && state.IsHidden(c.ID) {
			data.HiddenCount++
			continue
		}
		data.Applied = append(data.Applied, c)
		data.EarnedCredit += c.Credit
	}
	if state != nil {
		data.LoginAt = state.LoginAt
		data.SessionExpiresAt = state.ExpiresAt()
	}
	return data, nil
}

// AttemptApply runs one registration attempt. The conflict check and the
// commit share a transaction and the target row is locked for its duration.
func (s *sugangService) AttemptApply(ctx context.Context, userID string, courseID uint, state *model.SessionState) (*ApplyResult, error) {
	ctx, span := tracer.Start(ctx, "sugang.AttemptApply")
	defer span.End()
	span.SetAttributes(
		attribute.String("sugang.user_id", userID),
		attribute.Int64("sugang.course_id", int64(courseID)),
	)

	var result *ApplyResult
	err := s.courseRepo.WithTransaction(ctx, func(ctx context.Context, tx repository.CourseRepository) error {
		target, err := tx.FindByIDForUpdate(ctx, userID, courseID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrCourseNotFound
			}
			return fmt.Errorf("find course: %w", err)
		}

		// Re-applying to a committed course is treated as a duplicate.
		if target.Status.Committed() {
			result = rejectConflict()
			return nil
		}

		committed, err := tx.ListByUserAndStatus(ctx, userID, model.CourseStatusAutoApplied, model.CourseStatusApplied)
		if err != nil {
			return fmt.Errorf("list committed courses: %w", err)
		}
		if clash := findConflict(target, committed); clash != nil {
			s.log.Debug("attempt conflicts",
				zap.String("user_id", userID),
				zap.Uint("course_id", courseID),
				zap.Uint("conflict_id", clash.ID),
			)
			result = rejectConflict()
			return nil
		}

		rate := s.currentRate(state)
		metrics.EffectiveFailRate.Observe(rate)
		if drawFails(s.random.Float64(), rate) {
			result = &ApplyResult{Message: MessageCourseFull, Reason: ReasonSimulatedFailure, Rate: rate}
			return nil
		}

		if err := tx.UpdateStatus(ctx, userID, courseID, model.CourseStatusApplied); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		updated, err := tx.FindByID(ctx, userID, courseID)
		if err != nil {
			return fmt.Errorf("reload course: %w", err)
		}
		result = &ApplyResult{Accepted: true, Message: MessageApplied, Rate: rate, Course: updated}
		return nil
	})
	if err != nil {
		metrics.AttemptCounter.WithLabelValues(metrics.OutcomeError).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	outcome := metrics.OutcomeAccepted
	if !result.Accepted {
		outcome = result.Reason
	}
	metrics.AttemptCounter.WithLabelValues(outcome).Inc()
	span.SetAttributes(
		attribute.String("sugang.outcome", outcome),
		attribute.Float64("sugang.fail_rate", result.Rate),
	)
	s.log.Info("registration attempt",
		zap.String("user_id", userID),
		zap.Uint("course_id", courseID),
		zap.String("outcome", outcome),
		zap.Float64("fail_rate", result.Rate),
	)
	return result, nil
}

// RemoveApplied deletes an Applied course. Any other status leaves the row in
// place; the course is still returned so the caller can report on it.
func (s *sugangService) RemoveApplied(ctx context.Context, userID string, courseID uint) (*RemoveResult, error) {
	course, err := s.courseRepo.FindByID(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCourseNotFound
		}
		return nil, fmt.Errorf("find course: %w", err)
	}

	if course.Status != model.CourseStatusApplied {
		return &RemoveResult{Course: course}, nil
	}

	n, err := s.courseRepo.Delete(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("delete course: %w", err)
	}
	return &RemoveResult{Course: course, Deleted: n > 0}, nil
}

// currentRate is the failure rate for state at the current clock reading.
// Before the simulation is configured the rate stays at the range minimum.
func (s *sugangService) currentRate(state *model.SessionState) float64 {
	rate := model.DefaultFailRate
	if state == nil {
		return rate.Min
	}
	rate = state.Rate()
	if state.TimerStart == nil {
		return rate.Min
	}
	return EffectiveRate(rate.Min, rate.Max, s.clock.Since(*state.TimerStart))
}

func rejectConflict() *ApplyResult {
	return &ApplyResult{Message: MessageConflict, Reason: ReasonConflict}
}
