package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"sugang/internal/cache"
	apperrors "sugang/internal/errors"
	"sugang/internal/model"
	"sugang/internal/repository"
)

const userCacheTTL = 5 * time.Minute

// UserService reads users through a Redis cache.
type UserService interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	UpdateMaxCredit(ctx context.Context, id string, maxCredit int) error
}

type userService struct {
	repo  repository.UserRepository
	cache *cache.Client
}

// NewUserService builds a UserService with repository and cache. A nil cache
// reads straight from the repository.
func NewUserService(repo repository.UserRepository, cache *cache.Client) UserService {
	return &userService{repo: repo, cache: cache}
}

func (s *userService) cacheKey(id string) string {
	return "user:" + id
}

// GetUser returns ErrUserNotFound for unknown ids. The cached copy carries no
// password hash.
func (s *userService) GetUser(ctx context.Context, id string) (*model.User, error) {
	if data, _ := s.cache.Get(ctx, s.cacheKey(id)); data != nil {
		var cached model.User
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if payload, err := json.Marshal(user); err == nil {
		_ = s.cache.Set(ctx, s.cacheKey(id), payload, userCacheTTL)
	}
	return user, nil
}

func (s *userService) UpdateMaxCredit(ctx context.Context, id string, maxCredit int) error {
	if err := s.repo.UpdateMaxCredit(ctx, id, maxCredit); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrUserNotFound
		}
		return fmt.Errorf("update max credit: %w", err)
	}
	_ = s.cache.Delete(ctx, s.cacheKey(id))
	return nil
}
