package model

import (
	"time"

	"github.com/google/uuid"
)

// Department is an organizational grouping. Membership is many-to-many.
type Department struct {
	BaseModel
	Name      string     `gorm:"type:varchar(150);not null" json:"name" validate:"required"`
	Employees []Employee `gorm:"many2many:department_employees;" json:"-"`
}

// DepartmentEmployee is the membership join row. Members are listed by JoinedAt.
type DepartmentEmployee struct {
	DepartmentID uuid.UUID `gorm:"type:uuid;primaryKey"`
	EmployeeID   uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	JoinedAt     time.Time `gorm:"not null;index"`
}

type DepartmentResponse struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	EmployeeIDs []uuid.UUID `json:"employee_ids"`
}

func (d *Department) ToResponse() DepartmentResponse {
	ids := make([]uuid.UUID, len(d.Employees))
	for i, e := range d.Employees {
		ids[i] = e.ID
	}
	return DepartmentResponse{ID: d.ID, Name: d.Name, EmployeeIDs: ids}
}
