package model

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"go-fleet-console/internal/permission"
)

// User represents an operator account. Grants come from the role.
type User struct {
	BaseModel
	Email        string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email" validate:"required,email"`
	Password     string     `gorm:"type:varchar(255);not null" json:"-"`
	FullName     string     `gorm:"type:varchar(255)" json:"full_name" validate:"required"`
	PhoneNumber  string     `gorm:"type:varchar(20)" json:"phone_number"`
	RoleID       *uint      `gorm:"index" json:"role_id"`
	Role         *Role      `gorm:"foreignKey:RoleID" json:"-"`
	IsActive     bool       `gorm:"not null" json:"is_active"`
	TokenVersion string     `gorm:"type:varchar(255);default:''" json:"-"` // single session enforcement
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`
}

// SetPassword hashes and sets the user's password
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword verifies if the provided password matches the stored hash
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// Grants returns the user's effective grants; none without a role
func (u *User) Grants() []permission.Grant {
	return u.Role.Grants()
}

func (u *User) RoleCode() string {
	if u.Role == nil {
		return ""
	}
	return u.Role.Code
}

// UserResponse is used for API responses (without sensitive data)
type UserResponse struct {
	ID          uuid.UUID          `json:"id"`
	Email       string             `json:"email"`
	FullName    string             `json:"full_name"`
	PhoneNumber string             `json:"phone_number"`
	RoleID      *uint              `json:"role_id,omitempty"`
	RoleCode    string             `json:"role_code,omitempty"`
	IsActive    bool               `json:"is_active"`
	LastSeenAt  *time.Time         `json:"last_seen_at,omitempty"`
	Grants      []permission.Grant `json:"grants"`
}

// ToResponse converts User to UserResponse
func (u *User) ToResponse() UserResponse {
	grants := u.Grants()
	if grants == nil {
		grants = []permission.Grant{}
	}
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		PhoneNumber: u.PhoneNumber,
		RoleID:      u.RoleID,
		RoleCode:    u.RoleCode(),
		IsActive:    u.IsActive,
		LastSeenAt:  u.LastSeenAt,
		Grants:      grants,
	}
}
