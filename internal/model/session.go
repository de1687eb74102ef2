package model

import (
	"slices"
	"time"
)

// SessionLifetime is the fixed total lifetime of a login session. Activity
// does not extend it.
const SessionLifetime = 30 * time.Minute

// FailRate is a failure probability range in percent.
type FailRate struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultFailRate applies until the user saves a range.
var DefaultFailRate = FailRate{Min: 0, Max: 20}

// SessionState is the server-side state of one login session. It is passed
// into and returned from service calls rather than read from the request.
type SessionState struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	CreatedAt     time.Time  `json:"created_at"`
	LoginAt       time.Time  `json:"login_at"`
	TimerStart    *time.Time `json:"timer_start,omitempty"`
	FailRate      *FailRate  `json:"fail_rate,omitempty"`
	HiddenApplied []uint     `json:"hidden_applied,omitempty"`
}

// ExpiresAt is when the session ends.
func (s *SessionState) ExpiresAt() time.Time {
	return s.CreatedAt.Add(SessionLifetime)
}

// Rate returns the configured range or DefaultFailRate.
func (s *SessionState) Rate() FailRate {
	if s.FailRate == nil {
		return DefaultFailRate
	}
	return *s.FailRate
}

// EnsureLoginAt sets LoginAt to now if it was never set. It reports whether
// the state changed.
func (s *SessionState) EnsureLoginAt(now time.Time) bool {
	if !s.LoginAt.IsZero() {
		return false
	}
	s.LoginAt = now
	return true
}

// IsHidden reports whether courseID is filtered from the results view.
func (s *SessionState) IsHidden(courseID uint) bool {
	return slices.Contains(s.HiddenApplied, courseID)
}

// Hide adds courseID to the results view filter.
func (s *SessionState) Hide(courseID uint) {
	if !s.IsHidden(courseID) {
		s.HiddenApplied = append(s.HiddenApplied, courseID)
	}
}
