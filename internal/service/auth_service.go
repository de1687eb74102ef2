package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"sugang/internal/auth"
	"sugang/internal/model"
	"sugang/internal/repository"
)

var (
	// ErrInvalidCredentials is returned when the student id or password is incorrect.
	ErrInvalidCredentials = errors.New("invalid student id or password")
	// ErrUserAlreadyExists is returned when trying to register an existing student id.
	ErrUserAlreadyExists = errors.New("user already exists")
)

// SessionStore creates and ends login sessions. *session.Store satisfies it.
type SessionStore interface {
	Create(ctx context.Context, userID string) (*model.SessionState, error)
	Delete(ctx context.Context, id string) error
}

// AuthService handles authentication operations.
type AuthService interface {
	Register(ctx context.Context, studentID, name, password string) (*model.User, error)
	Login(ctx context.Context, studentID, password string) (token string, state *model.SessionState, user *model.User, err error)
	Logout(ctx context.Context, sessionID string) error
}

type authService struct {
	userRepo   repository.UserRepository
	jwtService *auth.JWTService
	sessions   SessionStore
}

// NewAuthService creates a new authentication service.
func NewAuthService(userRepo repository.UserRepository, jwtService *auth.JWTService, sessions SessionStore) AuthService {
	return &authService{
		userRepo:   userRepo,
		jwtService: jwtService,
		sessions:   sessions,
	}
}

// Register creates a new user with hashed password.
func (s *authService) Register(ctx context.Context, studentID, name, password string) (*model.User, error) {
	existing, err := s.userRepo.FindByID(ctx, studentID)
	if err == nil && existing != nil {
		return nil, ErrUserAlreadyExists
	}
	// Anything but "record not found" is a database error.
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check user existence: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           studentID,
		Name:         name,
		PasswordHash: hash,
		MaxCredit:    model.DefaultMaxCredit,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// A concurrent registration can win between the check and the insert.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login checks credentials, opens a session and returns a token that expires
// with it.
func (s *authService) Login(ctx context.Context, studentID, password string) (string, *model.SessionState, *model.User, error) {
	user, err := s.userRepo.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, nil, ErrInvalidCredentials
		}
		return "", nil, nil, fmt.Errorf("find user: %w", err)
	}

	if !auth.CheckPassword(password, user.PasswordHash) {
		return "", nil, nil, ErrInvalidCredentials
	}

	state, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return "", nil, nil, fmt.Errorf("create session: %w", err)
	}

	token, err := s.jwtService.GenerateSessionToken(user.ID, user.Name, state.ID, state.CreatedAt, state.ExpiresAt())
	if err != nil {
		return "", nil, nil, fmt.Errorf("generate token: %w", err)
	}
	return token, state, user, nil
}

// Logout ends a session.
func (s *authService) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(ctx, sessionID)
}
