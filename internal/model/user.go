package model

import "time"

// DefaultMaxCredit is the credit cap assigned to new users.
const DefaultMaxCredit = 18

// User is a student account. ID is the student number used to log in.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:20"`
	Name         string    `json:"name" gorm:"size:100;not null"`
	PasswordHash string    `json:"-" gorm:"column:password;size:255;not null"` // Never expose in JSON
	MaxCredit    int       `json:"max_credit" gorm:"not null;default:18"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Courses []Course `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}
