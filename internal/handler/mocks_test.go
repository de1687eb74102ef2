package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"

	"sugang/internal/auth"
	apperrors "sugang/internal/errors"
	"sugang/internal/model"
	"sugang/internal/service"
)

type testValidator struct{ v *validator.Validate }

func (tv *testValidator) Validate(i interface{}) error { return tv.v.Struct(i) }

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = &testValidator{v: validator.New()}
	return e
}

// newContext builds a request context carrying a parsed token for userID and sessionID.
func newContext(e *echo.Echo, method, target, body, userID, sessionID string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != "" {
		claims := &auth.Claims{UserID: userID, RegisteredClaims: jwt.RegisteredClaims{ID: sessionID}}
		c.Set("user", &jwt.Token{Claims: claims, Valid: true})
	}
	return c, rec
}

// memorySessions is an in-memory SessionStore.
type memorySessions struct {
	mu      sync.Mutex
	states  map[string]model.SessionState
	saves   int
	err     error
	loadErr error
}

func newMemorySessions(states ...*model.SessionState) *memorySessions {
	m := &memorySessions{states: make(map[string]model.SessionState)}
	for _, s := range states {
		m.states[s.ID] = *s
	}
	return m
}

func (m *memorySessions) Load(_ context.Context, id string) (*model.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	s, ok := m.states[id]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return &s, nil
}

func (m *memorySessions) Update(_ context.Context, id string, mutate func(*model.SessionState)) (*model.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.states[id]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	mutate(&s)
	m.saves++
	m.states[id] = s
	return &s, nil
}

func (m *memorySessions) get(id string) model.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[id]
}

// MockAuthService is a mock implementation of AuthService.
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Register(ctx context.Context, studentID, name, password string) (*model.User, error) {
	args := m.Called(ctx, studentID, name, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockAuthService) Login(ctx context.Context, studentID, password string) (string, *model.SessionState, *model.User, error) {
	args := m.Called(ctx, studentID, password)
	var state *model.SessionState
	if s := args.Get(1); s != nil {
		state = s.(*model.SessionState)
	}
	var user *model.User
	if u := args.Get(2); u != nil {
		user = u.(*model.User)
	}
	return args.String(0), state, user, args.Error(3)
}

func (m *MockAuthService) Logout(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

// MockSettingService is a mock implementation of SettingService.
type MockSettingService struct {
	mock.Mock
}

func (m *MockSettingService) RenderSettingData(ctx context.Context, userID string, state *model.SessionState) (*service.SettingData, error) {
	args := m.Called(ctx, userID, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SettingData), args.Error(1)
}

func (m *MockSettingService) CreateCourse(ctx context.Context, userID string, fields model.CourseFields) (*model.Course, error) {
	args := m.Called(ctx, userID, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Course), args.Error(1)
}

func (m *MockSettingService) UpdateCourse(ctx context.Context, userID string, id uint, fields model.CourseFields) (*model.Course, error) {
	args := m.Called(ctx, userID, id, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Course), args.Error(1)
}

func (m *MockSettingService) DeleteCourse(ctx context.Context, userID string, id uint) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *MockSettingService) SaveEnvironment(ctx context.Context, userID string, env service.EnvironmentInput, state *model.SessionState) error {
	args := m.Called(ctx, userID, env, state)
	return args.Error(0)
}

// MockSugangService is a mock implementation of SugangService.
type MockSugangService struct {
	mock.Mock
}

func (m *MockSugangService) ListSugangData(ctx context.Context, userID string, state *model.SessionState) (*service.SugangData, error) {
	args := m.Called(ctx, userID, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SugangData), args.Error(1)
}

func (m *MockSugangService) AttemptApply(ctx context.Context, userID string, courseID uint, state *model.SessionState) (*service.ApplyResult, error) {
	args := m.Called(ctx, userID, courseID, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ApplyResult), args.Error(1)
}

func (m *MockSugangService) RemoveApplied(ctx context.Context, userID string, courseID uint) (*service.RemoveResult, error) {
	args := m.Called(ctx, userID, courseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RemoveResult), args.Error(1)
}

// MockUserService is a mock implementation of UserService.
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) GetUser(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserService) UpdateMaxCredit(ctx context.Context, id string, maxCredit int) error {
	args := m.Called(ctx, id, maxCredit)
	return args.Error(0)
}
