package service

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"sugang/internal/model"
	"sugang/internal/repository"
)

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) UpdateMaxCredit(ctx context.Context, id string, maxCredit int) error {
	args := m.Called(ctx, id, maxCredit)
	return args.Error(0)
}

// MockSessionStore is a mock implementation of SessionStore.
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Create(ctx context.Context, userID string) (*model.SessionState, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SessionState), args.Error(1)
}

func (m *MockSessionStore) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// memoryCourseRepository keeps courses in a map. Transactions snapshot the
// map and restore it when fn fails.
type memoryCourseRepository struct {
	mu      sync.Mutex
	courses map[uint]model.Course
	nextID  uint

	// failOn makes the named method return errStorage.
	failOn string
	// txCount counts WithTransaction calls.
	txCount int
}

var errStorage = errors.New("storage unavailable")

var _ repository.CourseRepository = (*memoryCourseRepository)(nil)

func newMemoryCourseRepository(courses ...model.Course) *memoryCourseRepository {
	r := &memoryCourseRepository{courses: make(map[uint]model.Course)}
	for _, c := range courses {
		if c.ID == 0 {
			r.nextID++
			c.ID = r.nextID
		}
		if c.ID > r.nextID {
			r.nextID = c.ID
		}
		r.courses[c.ID] = c
	}
	return r
}

func (r *memoryCourseRepository) fail(method string) error {
	if r.failOn == method {
		return errStorage
	}
	return nil
}

func (r *memoryCourseRepository) Create(_ context.Context, course *model.Course) error {
	if err := r.fail("Create"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	course.ID = r.nextID
	r.courses[course.ID] = *course
	return nil
}

func (r *memoryCourseRepository) Update(_ context.Context, course *model.Course) error {
	if err := r.fail("Update"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.courses[course.ID]; ok && c.UserID == course.UserID {
		r.courses[course.ID] = *course
	}
	return nil
}

func (r *memoryCourseRepository) FindByID(_ context.Context, userID string, id uint) (*model.Course, error) {
	if err := r.fail("FindByID"); err != nil {
		return nil, err
	}
	return r.find(userID, id)
}

func (r *memoryCourseRepository) FindByIDForUpdate(_ context.Context, userID string, id uint) (*model.Course, error) {
	if err := r.fail("FindByIDForUpdate"); err != nil {
		return nil, err
	}
	return r.find(userID, id)
}

func (r *memoryCourseRepository) find(userID string, id uint) (*model.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.courses[id]
	if !ok || c.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r *memoryCourseRepository) ListByUser(ctx context.Context, userID string) ([]model.Course, error) {
	return r.ListByUserAndStatus(ctx, userID, model.CourseStatusWishList, model.CourseStatusAutoApplied, model.CourseStatusApplied)
}

func (r *memoryCourseRepository) ListByUserAndStatus(_ context.Context, userID string, statuses ...model.CourseStatus) ([]model.Course, error) {
	if err := r.fail("ListByUserAndStatus"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Course{}
	for _, c := range r.courses {
		if c.UserID == userID && slices.Contains(statuses, c.Status) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderNo != out[j].OrderNo {
			return out[i].OrderNo < out[j].OrderNo
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memoryCourseRepository) UpdateStatus(_ context.Context, userID string, id uint, status model.CourseStatus) error {
	if err := r.fail("UpdateStatus"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.courses[id]; ok && c.UserID == userID {
		c.Status = status
		r.courses[id] = c
	}
	return nil
}

func (r *memoryCourseRepository) ResetStatus(_ context.Context, userID string, from, to model.CourseStatus) (int64, error) {
	if err := r.fail("ResetStatus"); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, c := range r.courses {
		if c.UserID == userID && c.Status == from {
			c.Status = to
			r.courses[id] = c
			n++
		}
	}
	return n, nil
}

func (r *memoryCourseRepository) Delete(_ context.Context, userID string, id uint) (int64, error) {
	if err := r.fail("Delete"); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.courses[id]; ok && c.UserID == userID {
		delete(r.courses, id)
		return 1, nil
	}
	return 0, nil
}

func (r *memoryCourseRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo repository.CourseRepository) error) error {
	r.mu.Lock()
	r.txCount++
	snapshot := make(map[uint]model.Course, len(r.courses))
	for id, c := range r.courses {
		snapshot[id] = c
	}
	r.mu.Unlock()

	if err := fn(ctx, r); err != nil {
		r.mu.Lock()
		r.courses = snapshot
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *memoryCourseRepository) get(id uint) (model.Course, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.courses[id]
	return c, ok
}

// fixedRandom always draws the same value.
type fixedRandom float64

func (f fixedRandom) Float64() float64 { return float64(f) }
