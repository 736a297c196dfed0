package model

import (
	"github.com/google/uuid"
)

// Employee is a directory entry, independent of operator accounts
type Employee struct {
	BaseModel
	FullName    string `gorm:"type:varchar(255);not null;index" json:"full_name" validate:"required"`
	Email       string `gorm:"type:varchar(255);index" json:"email" validate:"omitempty,email"`
	Phone       string `gorm:"type:varchar(30)" json:"phone"`
	Designation string `gorm:"type:varchar(100)" json:"designation"`
}

type EmployeeResponse struct {
	ID          uuid.UUID `json:"id"`
	FullName    string    `json:"full_name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Designation string    `json:"designation"`
}

func (e *Employee) ToResponse() EmployeeResponse {
	return EmployeeResponse{
		ID:          e.ID,
		FullName:    e.FullName,
		Email:       e.Email,
		Phone:       e.Phone,
		Designation: e.Designation,
	}
}
