package repository

import (
	"time"

	"go-fleet-console/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DepartmentRepository interface {
	FindAll() ([]model.Department, error)
	FindByID(id uuid.UUID) (*model.Department, error)
	Create(dept *model.Department) error
	Rename(id uuid.UUID, name, updatedBy string) error
	// Delete removes the department. With cascade its members are deleted too and
	// their ids returned.
	Delete(id uuid.UUID, cascade bool, deletedBy string) ([]uuid.UUID, error)
	AddEmployee(deptID uuid.UUID, emp *model.Employee) error
	// RemoveEmployee detaches a member; global also deletes the employee everywhere.
	RemoveEmployee(deptID, empID uuid.UUID, global bool, deletedBy string) error
}

type departmentRepo struct {
	db *gorm.DB
}

func NewDepartmentRepo(db *gorm.DB) DepartmentRepository {
	return &departmentRepo{db: db}
}

type departmentMember struct {
	model.Employee
	DepartmentID uuid.UUID
}

// attachMembers loads members of depts in the order they joined
func attachMembers(db *gorm.DB, depts []model.Department) error {
	if len(depts) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(depts))
	for i, d := range depts {
		ids[i] = d.ID
	}

	var rows []departmentMember
	err := db.Table("department_employees").
		Select("employees.*, department_employees.department_id").
		Joins("JOIN employees ON employees.id = department_employees.employee_id AND employees.deleted_at IS NULL").
		Where("department_employees.department_id IN ?", ids).
		Order("department_employees.joined_at, department_employees.employee_id").
		Scan(&rows).Error
	if err != nil {
		return err
	}

	members := make(map[uuid.UUID][]model.Employee, len(depts))
	for _, row := range rows {
		members[row.DepartmentID] = append(members[row.DepartmentID], row.Employee)
	}
	for i := range depts {
		depts[i].Employees = members[depts[i].ID]
	}
	return nil
}

func (r *departmentRepo) FindAll() ([]model.Department, error) {
	var depts []model.Department
	if err := r.db.Order("created_at").Find(&depts).Error; err != nil {
		return nil, err
	}
	if err := attachMembers(r.db, depts); err != nil {
		return nil, err
	}
	return depts, nil
}

func (r *departmentRepo) FindByID(id uuid.UUID) (*model.Department, error) {
	var dept model.Department
	if err := r.db.First(&dept, "id = ?", id).Error; err != nil {
		return nil, err
	}
	depts := []model.Department{dept}
	if err := attachMembers(r.db, depts); err != nil {
		return nil, err
	}
	return &depts[0], nil
}

func (r *departmentRepo) Create(dept *model.Department) error {
	return r.db.Omit("Employees.*").Create(dept).Error
}

func (r *departmentRepo) Rename(id uuid.UUID, name, updatedBy string) error {
	res := r.db.Model(&model.Department{}).Where("id = ?", id).
		Updates(map[string]interface{}{"name": name, "updated_by": updatedBy})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *departmentRepo) Delete(id uuid.UUID, cascade bool, deletedBy string) ([]uuid.UUID, error) {
	var removed []uuid.UUID
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var dept model.Department
		if err := tx.First(&dept, "id = ?", id).Error; err != nil {
			return err
		}

		if cascade {
			err := tx.Model(&model.DepartmentEmployee{}).
				Where("department_id = ?", id).
				Order("joined_at").
				Pluck("employee_id", &removed).Error
			if err != nil {
				return err
			}
			if len(removed) > 0 {
				if err := tx.Exec("DELETE FROM department_employees WHERE employee_id IN ?", removed).Error; err != nil {
					return err
				}
				if err := tx.Model(&model.Employee{}).Where("id IN ?", removed).Update("deleted_by", deletedBy).Error; err != nil {
					return err
				}
				if err := tx.Delete(&model.Employee{}, "id IN ?", removed).Error; err != nil {
					return err
				}
			}
		}

		if err := tx.Exec("DELETE FROM department_employees WHERE department_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Model(&dept).Update("deleted_by", deletedBy).Error; err != nil {
			return err
		}
		return tx.Delete(&dept).Error
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (r *departmentRepo) AddEmployee(deptID uuid.UUID, emp *model.Employee) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var dept model.Department
		if err := tx.First(&dept, "id = ?", deptID).Error; err != nil {
			return err
		}
		if emp.ID == uuid.Nil {
			if err := tx.Create(emp).Error; err != nil {
				return err
			}
		} else if err := tx.First(emp, "id = ?", emp.ID).Error; err != nil {
			return err
		}
		// a repeat keeps the member's original position
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.DepartmentEmployee{
			DepartmentID: dept.ID,
			EmployeeID:   emp.ID,
			JoinedAt:     time.Now(),
		}).Error
	})
}

func (r *departmentRepo) RemoveEmployee(deptID, empID uuid.UUID, global bool, deletedBy string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var dept model.Department
		if err := tx.First(&dept, "id = ?", deptID).Error; err != nil {
			return err
		}
		if !global {
			return tx.Exec("DELETE FROM department_employees WHERE department_id = ? AND employee_id = ?", deptID, empID).Error
		}
		if err := tx.Exec("DELETE FROM department_employees WHERE employee_id = ?", empID).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Employee{}).Where("id = ?", empID).Update("deleted_by", deletedBy).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Employee{}, "id = ?", empID).Error
	})
}
