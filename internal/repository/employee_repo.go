package repository

import (
	"strings"

	"go-fleet-console/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EmployeeRepository interface {
	FindAll() ([]model.Employee, error)
	Search(query string, limit int) ([]model.Employee, error)
	FindByID(id uuid.UUID) (*model.Employee, error)
	Create(emp *model.Employee) error
	Update(emp *model.Employee) error
	Delete(id uuid.UUID, deletedBy string) error
}

type employeeRepo struct {
	db *gorm.DB
}

func NewEmployeeRepo(db *gorm.DB) EmployeeRepository {
	return &employeeRepo{db: db}
}

func (r *employeeRepo) FindAll() ([]model.Employee, error) {
	var emps []model.Employee
	err := r.db.Order("created_at").Order("id").Find(&emps).Error
	return emps, err
}

// Search matches name, email or designation, case-insensitively
func (r *employeeRepo) Search(query string, limit int) ([]model.Employee, error) {
	var emps []model.Employee
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	q := r.db.Where("LOWER(full_name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(designation) LIKE ?", pattern, pattern, pattern).
		Order("full_name")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&emps).Error
	return emps, err
}

func (r *employeeRepo) FindByID(id uuid.UUID) (*model.Employee, error) {
	var emp model.Employee
	if err := r.db.First(&emp, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &emp, nil
}

func (r *employeeRepo) Create(emp *model.Employee) error {
	return r.db.Create(emp).Error
}

func (r *employeeRepo) Update(emp *model.Employee) error {
	return r.db.Save(emp).Error
}

func (r *employeeRepo) Delete(id uuid.UUID, deletedBy string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Employee{}).Where("id = ?", id).Update("deleted_by", deletedBy)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Exec("DELETE FROM department_employees WHERE employee_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Employee{}, "id = ?", id).Error
	})
}
