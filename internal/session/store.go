package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	apperrors "sugang/internal/errors"
	"sugang/internal/model"
)

const keyPrefix = "session:"

// KV is the key/value backend sessions are stored in. It must report backend
// errors; a missing key reads as nil. *cache.Strict satisfies it.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Update atomically replaces the value of key with what fn returns.
	Update(ctx context.Context, key string, fn func(current []byte) ([]byte, time.Duration, error)) error
}

// Store keeps SessionState values for their fixed lifetime.
type Store struct {
	kv    KV
	clock clock.PassiveClock
}

// NewStore creates a session store. A nil clock means the real clock.
func NewStore(kv KV, clk clock.PassiveClock) *Store {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Store{kv: kv, clock: clk}
}

// Create starts a new session for userID with LoginAt set to now.
func (s *Store) Create(ctx context.Context, userID string) (*model.SessionState, error) {
	now := s.clock.Now()
	state := &model.SessionState{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		LoginAt:   now,
	}
	if err := s.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Load returns the session or ErrSessionNotFound if it is missing or past
// its lifetime.
func (s *Store) Load(ctx context.Context, id string) (*model.SessionState, error) {
	data, err := s.kv.Get(ctx, keyPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if data == nil {
		return nil, apperrors.ErrSessionNotFound
	}

	return s.decode(data)
}

func (s *Store) decode(data []byte) (*model.SessionState, error) {
	var state model.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if !s.clock.Now().Before(state.ExpiresAt()) {
		return nil, apperrors.ErrSessionNotFound
	}
	return &state, nil
}

// Save writes the whole session with whatever remains of its lifetime as TTL.
func (s *Store) Save(ctx context.Context, state *model.SessionState) error {
	payload, ttl, err := s.encode(state)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, keyPrefix+state.ID, payload, ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Update applies mutate to the stored session and writes it back atomically,
// so concurrent requests in one session do not overwrite each other's fields.
// It returns the session as written.
func (s *Store) Update(ctx context.Context, id string, mutate func(*model.SessionState)) (*model.SessionState, error) {
	var updated *model.SessionState
	err := s.kv.Update(ctx, keyPrefix+id, func(current []byte) ([]byte, time.Duration, error) {
		if current == nil {
			return nil, 0, apperrors.ErrSessionNotFound
		}
		state, err := s.decode(current)
		if err != nil {
			return nil, 0, err
		}
		mutate(state)
		updated = state
		return s.encode(state)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update session: %w", err)
	}
	return updated, nil
}

func (s *Store) encode(state *model.SessionState) ([]byte, time.Duration, error) {
	ttl := state.ExpiresAt().Sub(s.clock.Now())
	if ttl <= 0 {
		return nil, 0, apperrors.ErrSessionNotFound
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, 0, fmt.Errorf("encode session: %w", err)
	}
	return payload, ttl, nil
}

// Delete ends the session.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.kv.Delete(ctx, keyPrefix+id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
