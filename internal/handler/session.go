package handler

import (
	"context"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"sugang/internal/auth"
	"sugang/internal/errors"
	"sugang/internal/model"
)

// SessionCookieName is the cookie that carries the session token.
const SessionCookieName = "session"

const sessionContextKey = "session_state"

// SessionStore loads and updates session state. *session.Store satisfies it.
type SessionStore interface {
	Load(ctx context.Context, id string) (*model.SessionState, error)
	// Update applies mutate to the stored session atomically.
	Update(ctx context.Context, id string, mutate func(*model.SessionState)) (*model.SessionState, error)
}

// SessionMiddleware resolves the token's session id to its server-side state.
// It must run after the JWT middleware.
func SessionMiddleware(sessions SessionStore, log *zap.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := tokenClaims(c)
			if !ok {
				return unauthorized()
			}

			state, err := sessions.Load(c.Request().Context(), claims.ID)
			if err != nil {
				return failure(c, log, err)
			}
			if state.UserID != claims.UserID {
				return unauthorized()
			}

			c.Set(sessionContextKey, state)
			return next(c)
		}
	}
}

func tokenClaims(c echo.Context) (*auth.Claims, bool) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return nil, false
	}
	claims, ok := token.Claims.(*auth.Claims)
	return claims, ok
}

func sessionState(c echo.Context) (*model.SessionState, error) {
	state, ok := c.Get(sessionContextKey).(*model.SessionState)
	if !ok {
		return nil, unauthorized()
	}
	return state, nil
}

func unauthorized() error {
	return echo.NewHTTPError(http.StatusUnauthorized, errors.ErrorResponse{
		Error: "missing or invalid session",
		Code:  "UNAUTHORIZED",
	})
}

func badRequest(message, code string) error {
	return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// bindAndValidate binds the request body into req and runs the validator.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return badRequest("invalid request body", "INVALID_REQUEST")
	}
	if err := c.Validate(req); err != nil {
		return badRequest(err.Error(), "VALIDATION_ERROR")
	}
	return nil
}

// failure maps err to an HTTP error and logs anything that is not a client error.
func failure(c echo.Context, log *zap.Logger, err error) error {
	httpErr := errors.MapErrorToHTTP(err)
	if httpErr.StatusCode >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
}
