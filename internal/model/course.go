package model

import "time"

// DefaultCredit is used when a course is created or seeded without credit hours.
const DefaultCredit = 3

// CourseStatus is the registration state of a course.
type CourseStatus int

const (
	// CourseStatusWishList is a course the user intends to register for.
	CourseStatusWishList CourseStatus = 0
	// CourseStatusAutoApplied is a pre-seeded success. Attempts never produce it
	// and attempt removal never deletes it.
	CourseStatusAutoApplied CourseStatus = 1
	// CourseStatusApplied is a course registered by a successful attempt.
	CourseStatusApplied CourseStatus = 2
)

// Valid reports whether s is one of the known statuses.
func (s CourseStatus) Valid() bool {
	return s >= CourseStatusWishList && s <= CourseStatusApplied
}

// Committed reports whether the course counts as registered.
func (s CourseStatus) Committed() bool {
	return s == CourseStatusAutoApplied || s == CourseStatusApplied
}

func (s CourseStatus) String() string {
	switch s {
	case CourseStatusWishList:
		return "wish_list"
	case CourseStatusAutoApplied:
		return "auto_applied"
	case CourseStatusApplied:
		return "applied"
	default:
		return "unknown"
	}
}

// Course is a candidate or registered course owned by exactly one user.
type Course struct {
	ID         uint         `json:"id" gorm:"primaryKey"`
	UserID     string       `json:"user_id" gorm:"size:20;not null;index:idx_courses_user_order,priority:1"`
	OrderNo    int          `json:"order_no" gorm:"not null;default:0;index:idx_courses_user_order,priority:2"`
	CourseName string       `json:"course_name" gorm:"size:255;not null"`
	CourseCode string       `json:"course_code" gorm:"size:50"`
	ClassNo    string       `json:"class_no" gorm:"size:20"`
	CourseType string       `json:"course_type" gorm:"size:50"`
	Credit     int          `json:"credit" gorm:"not null;default:3"`
	Professor  string       `json:"professor" gorm:"size:100"`
	Department string       `json:"department" gorm:"size:100"`
	TimeInfo   string       `json:"time_info" gorm:"size:255"`
	Memo       string       `json:"memo" gorm:"type:text"`
	Status     CourseStatus `json:"status" gorm:"not null;default:0;index"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// CourseFields are the owner-editable columns of a course.
type CourseFields struct {
	OrderNo    int
	CourseName string
	CourseCode string
	ClassNo    string
	CourseType string
	Credit     int
	Professor  string
	Department string
	TimeInfo   string
	Memo       string
	Status     CourseStatus
}

// Apply copies f onto c.
func (f CourseFields) Apply(c *Course) {
	c.OrderNo = f.OrderNo
	c.CourseName = f.CourseName
	c.CourseCode = f.CourseCode
	c.ClassNo = f.ClassNo
	c.CourseType = f.CourseType
	c.Credit = f.Credit
	c.Professor = f.Professor
	c.Department = f.Department
	c.TimeInfo = f.TimeInfo
	c.Memo = f.Memo
	c.Status = f.Status
}
