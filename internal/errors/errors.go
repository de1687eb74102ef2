package errors

import (
	"errors"
	"net/http"
)

var (
	// ErrCourseNotFound is returned when a course does not exist for the user.
	ErrCourseNotFound = errors.New("course not found")
	// ErrUserNotFound is returned when a user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidFailRate is returned when a fail rate range is malformed or out of [0,100].
	ErrInvalidFailRate = errors.New("invalid fail rate range")
	// ErrInvalidStatus is returned when a course status is not 0, 1 or 2.
	ErrInvalidStatus = errors.New("invalid course status")
	// ErrSessionNotFound is returned when a session is missing or expired.
	ErrSessionNotFound = errors.New("session not found or expired")
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: e.Message,
		Code:  e.Code,
	}
}

// MapErrorToHTTP maps domain errors to HTTP errors. Anything unknown is a
// storage failure and is reported generically.
func MapErrorToHTTP(err error) *HTTPError {
	switch {
	case errors.Is(err, ErrCourseNotFound):
		return NewHTTPError(http.StatusNotFound, ErrCourseNotFound.Error(), "COURSE_NOT_FOUND")
	case errors.Is(err, ErrUserNotFound):
		return NewHTTPError(http.StatusNotFound, ErrUserNotFound.Error(), "USER_NOT_FOUND")
	case errors.Is(err, ErrInvalidFailRate):
		return NewHTTPError(http.StatusBadRequest, ErrInvalidFailRate.Error(), "INVALID_FAIL_RATE")
	case errors.Is(err, ErrInvalidStatus):
		return NewHTTPError(http.StatusBadRequest, ErrInvalidStatus.Error(), "INVALID_STATUS")
	case errors.Is(err, ErrSessionNotFound):
		return NewHTTPError(http.StatusUnauthorized, ErrSessionNotFound.Error(), "SESSION_EXPIRED")
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
