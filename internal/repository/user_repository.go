package repository

import (
	"context"

	"gorm.io/gorm"

	"sugang/internal/model"
)

// UserRepository defines user persistence operations.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	UpdateMaxCredit(ctx context.Context, id string, maxCredit int) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository builds a GORM-backed repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// FindByID returns gorm.ErrRecordNotFound when the user does not exist.
func (r *userRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateMaxCredit returns gorm.ErrRecordNotFound when the user does not exist.
func (r *userRepository) UpdateMaxCredit(ctx context.Context, id string, maxCredit int) error {
	db := r.db.WithContext(ctx)
	result := db.Model(&model.User{}).
		Where("id = ?", id).
		Update("max_credit", maxCredit)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// MySQL counts changed rows, so an unchanged value also affects none.
	var count int64
	if err := db.Model(&model.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
