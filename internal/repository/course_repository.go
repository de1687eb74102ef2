package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sugang/internal/model"
)

// CourseRepository defines course persistence operations. Every method is
// scoped to the owning user.
type CourseRepository interface {
	Create(ctx context.Context, course *model.Course) error
	Update(ctx context.Context, course *model.Course) error
	FindByID(ctx context.Context, userID string, id uint) (*model.Course, error)
	FindByIDForUpdate(ctx context.Context, userID string, id uint) (*model.Course, error)
	ListByUser(ctx context.Context, userID string) ([]model.Course, error)
	ListByUserAndStatus(ctx context.Context, userID string, statuses ...model.CourseStatus) ([]model.Course, error)
	UpdateStatus(ctx context.Context, userID string, id uint, status model.CourseStatus) error
	ResetStatus(ctx context.Context, userID string, from, to model.CourseStatus) (int64, error)
	Delete(ctx context.Context, userID string, id uint) (int64, error)
	// WithTransaction runs fn against a repository bound to one transaction.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, repo CourseRepository) error) error
}

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository creates a new course repository.
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

// Create inserts a course; the store assigns its ID.
func (r *courseRepository) Create(ctx context.Context, course *model.Course) error {
	return r.db.WithContext(ctx).Create(course).Error
}

// Update writes the owner-editable columns of course.
func (r *courseRepository) Update(ctx context.Context, course *model.Course) error {
	return r.db.WithContext(ctx).Model(&model.Course{}).
		Where("id = ? AND user_id = ?", course.ID, course.UserID).
		Select("order_no", "course_name", "course_code", "class_no", "course_type",
			"credit", "professor", "department", "time_info", "memo", "status").
		Updates(course).Error
}

// FindByID returns gorm.ErrRecordNotFound when the course does not exist for userID.
func (r *courseRepository) FindByID(ctx context.Context, userID string, id uint) (*model.Course, error) {
	var course model.Course
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&course).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

// FindByIDForUpdate is FindByID with a row lock; use it inside WithTransaction.
func (r *courseRepository) FindByIDForUpdate(ctx context.Context, userID string, id uint) (*model.Course, error) {
	var course model.Course
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND user_id = ?", id, userID).
		First(&course).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

// ListByUser lists all courses of userID ordered by order_no.
func (r *courseRepository) ListByUser(ctx context.Context, userID string) ([]model.Course, error) {
	var courses []model.Course
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("order_no ASC").Order("id ASC").
		Find(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

// ListByUserAndStatus lists the courses of userID in any of statuses ordered by order_no.
func (r *courseRepository) ListByUserAndStatus(ctx context.Context, userID string, statuses ...model.CourseStatus) ([]model.Course, error) {
	var courses []model.Course
	if len(statuses) == 0 {
		return courses, nil
	}
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, statuses).
		Order("order_no ASC").Order("id ASC").
		Find(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

// UpdateStatus sets the status of one course.
func (r *courseRepository) UpdateStatus(ctx context.Context, userID string, id uint, status model.CourseStatus) error {
	return r.db.WithContext(ctx).Model(&model.Course{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("status", status).Error
}

// ResetStatus moves every course of userID in status from to status to and
// returns how many rows changed.
func (r *courseRepository) ResetStatus(ctx context.Context, userID string, from, to model.CourseStatus) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Course{}).
		Where("user_id = ? AND status = ?", userID, from).
		Update("status", to)
	return result.RowsAffected, result.Error
}

// Delete removes one course and returns how many rows were deleted.
func (r *courseRepository) Delete(ctx context.Context, userID string, id uint) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&model.Course{})
	return result.RowsAffected, result.Error
}

// WithTransaction executes a function within a database transaction.
func (r *courseRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo CourseRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &courseRepository{db: tx}
		return fn(ctx, txRepo)
	})
}
