package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "sugang/internal/errors"
	"sugang/internal/model"
	"sugang/internal/service"
)

const student = "20231234"

var created = time.Date(2026, 2, 16, 10, 0, 0, 0, time.UTC)

func testSession() *model.SessionState {
	return &model.SessionState{ID: "sess-1", UserID: student, CreatedAt: created, LoginAt: created}
}

func assertHTTPError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he), "expected *echo.HTTPError, got %v", err)
	assert.Equal(t, status, he.Code)
	if code != "" {
		resp, ok := he.Message.(apperrors.ErrorResponse)
		require.True(t, ok)
		assert.Equal(t, code, resp.Code)
	}
}

func TestSessionMiddleware(t *testing.T) {
	e := newEcho()
	sessions := newMemorySessions(testSession())
	ok := func(c echo.Context) error {
		state, err := sessionState(c)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, state.UserID)
	}

	tests := []struct {
		name      string
		userID    string
		sessionID string
		status    int
		code      string
	}{
		{name: "valid session", userID: student, sessionID: "sess-1", status: http.StatusOK},
		{name: "no token", status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "unknown session", userID: student, sessionID: "gone", status: http.StatusUnauthorized, code: "SESSION_EXPIRED"},
		{name: "session of another user", userID: "20230001", sessionID: "sess-1", status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext(e, http.MethodGet, "/sugang", "", tt.userID, tt.sessionID)
			err := SessionMiddleware(sessions, nil)(ok)(c)
			if tt.status == http.StatusOK {
				require.NoError(t, err)
				assert.Equal(t, student, rec.Body.String())
				return
			}
			assertHTTPError(t, err, tt.status, tt.code)
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	e := newEcho()
	authSvc := new(MockAuthService)
	state := testSession()
	authSvc.On("Login", mock.Anything, student, "password123").
		Return("signed.token", state, &model.User{ID: student, Name: "Kim"}, nil)
	authSvc.On("Login", mock.Anything, student, "wrong").
		Return("", nil, nil, service.ErrInvalidCredentials)

	h := NewAuthHandler(authSvc, true, nil)

	c, rec := newContext(e, http.MethodPost, "/login", `{"student_id":"20231234","password":"password123"}`, "", "")
	require.NoError(t, h.Login(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "signed.token", resp.Token)
	assert.Equal(t, state.ExpiresAt(), resp.ExpiresAt)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.Equal(t, "signed.token", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, int(model.SessionLifetime.Seconds()), cookies[0].MaxAge)

	c, _ = newContext(e, http.MethodPost, "/login", `{"student_id":"20231234","password":"wrong"}`, "", "")
	assertHTTPError(t, h.Login(c), http.StatusUnauthorized, "INVALID_CREDENTIALS")

	c, _ = newContext(e, http.MethodPost, "/login", `{"student_id":""}`, "", "")
	assertHTTPError(t, h.Login(c), http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestAuthHandler_Register(t *testing.T) {
	e := newEcho()
	authSvc := new(MockAuthService)
	authSvc.On("Register", mock.Anything, student, "Kim", "password123").Return(&model.User{ID: student, Name: "Kim", PasswordHash: "secret-hash"}, nil)
	authSvc.On("Register", mock.Anything, "20230001", "Lee", "password123").Return(nil, service.ErrUserAlreadyExists)

	h := NewAuthHandler(authSvc, false, nil)

	c, rec := newContext(e, http.MethodPost, "/register", `{"student_id":"20231234","name":"Kim","password":"password123"}`, "", "")
	require.NoError(t, h.Register(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret-hash")

	c, _ = newContext(e, http.MethodPost, "/register", `{"student_id":"20230001","name":"Lee","password":"password123"}`, "", "")
	assertHTTPError(t, h.Register(c), http.StatusConflict, "USER_EXISTS")

	c, _ = newContext(e, http.MethodPost, "/register", `{"student_id":"2023-1","name":"Lee","password":"password123"}`, "", "")
	assertHTTPError(t, h.Register(c), http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestAuthHandler_Logout(t *testing.T) {
	e := newEcho()
	authSvc := new(MockAuthService)
	authSvc.On("Logout", mock.Anything, "sess-1").Return(nil)

	h := NewAuthHandler(authSvc, false, nil)
	c, rec := newContext(e, http.MethodPost, "/logout", "", student, "sess-1")
	require.NoError(t, h.Logout(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
	authSvc.AssertExpectations(t)
}

func TestSettingHandler_GetSettingPersistsSession(t *testing.T) {
	e := newEcho()
	state := testSession()
	state.LoginAt = time.Time{}
	sessions := newMemorySessions(state)
	svc := new(MockSettingService)
	svc.On("RenderSettingData", mock.Anything, student, mock.AnythingOfType("*model.SessionState")).
		Run(func(args mock.Arguments) {
			args.Get(2).(*model.SessionState).LoginAt = created.Add(time.Minute)
		}).
		Return(&service.SettingData{ResetCount: 2}, nil)

	h := NewSettingHandler(svc, sessions, nil)
	c, rec := newContext(e, http.MethodGet, "/setting", "", student, "sess-1")
	require.NoError(t, SessionMiddleware(sessions, nil)(h.GetSetting)(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reset_count":2`)
	assert.Equal(t, created.Add(time.Minute), sessions.get("sess-1").LoginAt)
}

func TestSettingHandler_CourseCRUD(t *testing.T) {
	e := newEcho()
	sessions := newMemorySessions(testSession())
	svc := new(MockSettingService)
	h := NewSettingHandler(svc, sessions, nil)
	run := func(handler echo.HandlerFunc, c echo.Context) error {
		return SessionMiddleware(sessions, nil)(handler)(c)
	}

	svc.On("CreateCourse", mock.Anything, student, model.CourseFields{CourseName: "Databases", TimeInfo: "Wed 13:30", Status: model.CourseStatusAutoApplied}).
		Return(&model.Course{ID: 7, CourseName: "Databases"}, nil)
	c, rec := newContext(e, http.MethodPost, "/setting/course", `{"course_name":"Databases","time_info":"Wed 13:30","status":1}`, student, "sess-1")
	require.NoError(t, run(h.CreateCourse, c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	c, _ = newContext(e, http.MethodPost, "/setting/course", `{"course_name":"Databases","status":3}`, student, "sess-1")
	assertHTTPError(t, run(h.CreateCourse, c), http.StatusBadRequest, "VALIDATION_ERROR")

	svc.On("UpdateCourse", mock.Anything, student, uint(9), mock.AnythingOfType("model.CourseFields")).Return(nil, apperrors.ErrCourseNotFound)
	c, _ = newContext(e, http.MethodPut, "/setting/course/9", `{"course_name":"Databases"}`, student, "sess-1")
	c.SetParamNames("id")
	c.SetParamValues("9")
	assertHTTPError(t, run(h.UpdateCourse, c), http.StatusNotFound, "COURSE_NOT_FOUND")

	c, _ = newContext(e, http.MethodDelete, "/setting/course/abc", "", student, "sess-1")
	c.SetParamNames("id")
	c.SetParamValues("abc")
	assertHTTPError(t, run(h.DeleteCourse, c), http.StatusBadRequest, "INVALID_ID")

	svc.On("DeleteCourse", mock.Anything, student, uint(7)).Return(nil)
	c, rec = newContext(e, http.MethodDelete, "/setting/course/7", "", student, "sess-1")
	c.SetParamNames("id")
	c.SetParamValues("7")
	require.NoError(t, run(h.DeleteCourse, c))
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	svc.AssertExpectations(t)
}

func TestSettingHandler_SaveEnvironment(t *testing.T) {
	e := newEcho()
	sessions := newMemorySessions(testSession())
	svc := new(MockSettingService)
	start := created.Add(2 * time.Minute)
	svc.On("SaveEnvironment", mock.Anything, student, service.EnvironmentInput{MaxCredit: 21, FailRate: "5-40"}, mock.AnythingOfType("*model.SessionState")).
		Run(func(args mock.Arguments) {
			s := args.Get(3).(*model.SessionState)
			s.FailRate = &model.FailRate{Min: 5, Max: 40}
			s.TimerStart = &start
		}).
		Return(nil)
	svc.On("SaveEnvironment", mock.Anything, student, service.EnvironmentInput{MaxCredit: 21, FailRate: "40-5"}, mock.Anything).
		Return(apperrors.ErrInvalidFailRate)

	h := NewSettingHandler(svc, sessions, nil)

	c, rec := newContext(e, http.MethodPost, "/setting/env", `{"max_credit":21,"fail_rate":"5-40"}`, student, "sess-1")
	require.NoError(t, SessionMiddleware(sessions, nil)(h.SaveEnvironment)(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	saved := sessions.get("sess-1")
	require.NotNil(t, saved.TimerStart)
	assert.Equal(t, start, *saved.TimerStart)
	assert.Equal(t, model.FailRate{Min: 5, Max: 40}, saved.Rate())

	c, _ = newContext(e, http.MethodPost, "/setting/env", `{"max_credit":21,"fail_rate":"40-5"}`, student, "sess-1")
	assertHTTPError(t, SessionMiddleware(sessions, nil)(h.SaveEnvironment)(c), http.StatusBadRequest, "INVALID_FAIL_RATE")

	c, _ = newContext(e, http.MethodPost, "/setting/env", `{"max_credit":0}`, student, "sess-1")
	assertHTTPError(t, SessionMiddleware(sessions, nil)(h.SaveEnvironment)(c), http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestSugangHandler_Apply(t *testing.T) {
	e := newEcho()
	sessions := newMemorySessions(testSession())
	svc := new(MockSugangService)
	svc.On("AttemptApply", mock.Anything, student, uint(3), mock.AnythingOfType("*model.SessionState")).
		Return(&service.ApplyResult{Message: service.MessageConflict, Reason: service.ReasonConflict}, nil)
	svc.On("AttemptApply", mock.Anything, student, uint(4), mock.Anything).
		Return(nil, errors.New("dial tcp: i/o timeout"))

	h := NewSugangHandler(svc, sessions, nil)

	c, rec := newContext(e, http.MethodPost, "/sugang/apply", `{"course_id":3}`, student, "sess-1")
	require.NoError(t, SessionMiddleware(sessions, nil)(h.Apply)(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, false, result["success"])
	assert.Equal(t, "already applied or time conflict", result["message"])

	c, _ = newContext(e, http.MethodPost, "/sugang/apply", `{"course_id":4}`, student, "sess-1")
	assertHTTPError(t, SessionMiddleware(sessions, nil)(h.Apply)(c), http.StatusInternalServerError, "INTERNAL_ERROR")

	c, _ = newContext(e, http.MethodPost, "/sugang/apply", `{}`, student, "sess-1")
	assertHTTPError(t, SessionMiddleware(sessions, nil)(h.Apply)(c), http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestSugangHandler_RemoveHidesRetainedCourse(t *testing.T) {
	e := newEcho()
	sessions := newMemorySessions(testSession())
	svc := new(MockSugangService)
	svc.On("RemoveApplied", mock.Anything, student, uint(1)).
		Return(&service.RemoveResult{Course: &model.Course{ID: 1, Status: model.CourseStatusApplied}, Deleted: true}, nil)
	svc.On("RemoveApplied", mock.Anything, student, uint(2)).
		Return(&service.RemoveResult{Course: &model.Course{ID: 2, Status: model.CourseStatusAutoApplied}}, nil)

	h := NewSugangHandler(svc, sessions, nil)

	c, rec := newContext(e, http.MethodPost, "/sugang/delete", `{"course_id":1}`, student, "sess-1")
	require.NoError(t, SessionMiddleware(sessions, nil)(h.Remove)(c))
	var resp RemoveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Deleted)
	assert.False(t, resp.Hidden)
	assert.Equal(t, 0, sessions.saves)

	c, rec = newContext(e, http.MethodPost, "/sugang/delete", `{"course_id":2}`, student, "sess-1")
	require.NoError(t, SessionMiddleware(sessions, nil)(h.Remove)(c))
	resp = RemoveResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Deleted)
	assert.True(t, resp.Hidden)

	saved := sessions.get("sess-1")
	assert.True(t, saved.IsHidden(2))
}

func TestSugangHandler_GetSugang(t *testing.T) {
	e := newEcho()
	sessions := newMemorySessions(testSession())
	svc := new(MockSugangService)
	svc.On("ListSugangData", mock.Anything, student, mock.AnythingOfType("*model.SessionState")).
		Return(&service.SugangData{EarnedCredit: 6, MaxCredit: 18}, nil)

	h := NewSugangHandler(svc, sessions, nil)
	c, rec := newContext(e, http.MethodGet, "/sugang", "", student, "sess-1")
	require.NoError(t, SessionMiddleware(sessions, nil)(h.GetSugang)(c))
	assert.Contains(t, rec.Body.String(), `"earned_credit":6`)
}

func TestUserHandler_GetMe(t *testing.T) {
	e := newEcho()
	sessions := newMemorySessions(testSession())
	svc := new(MockUserService)
	svc.On("GetUser", mock.Anything, student).Return(&model.User{ID: student, Name: "Kim", MaxCredit: 18}, nil)

	h := NewUserHandler(svc, nil)
	c, rec := newContext(e, http.MethodGet, "/me", "", student, "sess-1")
	require.NoError(t, SessionMiddleware(sessions, nil)(h.GetMe)(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ProfileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Kim", resp.User.Name)
	assert.Equal(t, 18, resp.User.MaxCredit)
	assert.True(t, resp.SessionExpiresAt.Equal(created.Add(model.SessionLifetime)))
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestUserHandler_GetMeUnknownUser(t *testing.T) {
	e := newEcho()
	sessions := newMemorySessions(testSession())
	svc := new(MockUserService)
	svc.On("GetUser", mock.Anything, student).Return(nil, apperrors.ErrUserNotFound)

	h := NewUserHandler(svc, nil)
	c, _ := newContext(e, http.MethodGet, "/me", "", student, "sess-1")
	err := SessionMiddleware(sessions, nil)(h.GetMe)(c)
	assertHTTPError(t, err, http.StatusNotFound, "USER_NOT_FOUND")
}

func TestSessionMiddleware_StoreOutageIsServerError(t *testing.T) {
	e := newEcho()
	sessions := newMemorySessions(testSession())
	sessions.loadErr = fmt.Errorf("load session: %w", errors.New("redis get: connection refused"))
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	c, _ := newContext(e, http.MethodGet, "/sugang", "", student, "sess-1")
	assertHTTPError(t, SessionMiddleware(sessions, nil)(next)(c), http.StatusInternalServerError, "INTERNAL_ERROR")
}

func TestSettingHandler_SaveEnvironmentReportsLostWrite(t *testing.T) {
	e := newEcho()
	sessions := newMemorySessions(testSession())
	sessions.err = errors.New("update session: redis set: connection refused")
	svc := new(MockSettingService)
	start := created.Add(time.Minute)
	svc.On("SaveEnvironment", mock.Anything, student, mock.Anything, mock.AnythingOfType("*model.SessionState")).
		Run(func(args mock.Arguments) {
			s := args.Get(3).(*model.SessionState)
			s.FailRate = &model.FailRate{Min: 50, Max: 90}
			s.TimerStart = &start
		}).
		Return(nil)

	h := NewSettingHandler(svc, sessions, nil)
	c, rec := newContext(e, http.MethodPost, "/setting/env", `{"max_credit":18,"fail_rate":"50-90"}`, student, "sess-1")
	err := SessionMiddleware(sessions, nil)(h.SaveEnvironment)(c)
	assertHTTPError(t, err, http.StatusInternalServerError, "INTERNAL_ERROR")
	assert.NotContains(t, rec.Body.String(), `"success":true`)
	assert.Nil(t, sessions.get("sess-1").TimerStart)
}

func TestSugangHandler_RemoveKeepsConcurrentSessionChanges(t *testing.T) {
	e := newEcho()
	sessions := newMemorySessions(testSession())
	svc := new(MockSugangService)
	svc.On("RemoveApplied", mock.Anything, student, uint(2)).
		Return(&service.RemoveResult{Course: &model.Course{ID: 2, Status: model.CourseStatusAutoApplied}}, nil).
		Run(func(mock.Arguments) {
			// Another request in the same session saves the environment meanwhile.
			start := created.Add(time.Minute)
			_, err := sessions.Update(context.Background(), "sess-1", func(s *model.SessionState) {
				s.TimerStart = &start
				s.FailRate = &model.FailRate{Min: 30, Max: 70}
			})
			require.NoError(t, err)
		})

	h := NewSugangHandler(svc, sessions, nil)
	c, _ := newContext(e, http.MethodPost, "/sugang/delete", `{"course_id":2}`, student, "sess-1")
	require.NoError(t, SessionMiddleware(sessions, nil)(h.Remove)(c))

	saved := sessions.get("sess-1")
	assert.True(t, saved.IsHidden(2))
	require.NotNil(t, saved.TimerStart)
	assert.Equal(t, model.FailRate{Min: 30, Max: 70}, saved.Rate())
}
