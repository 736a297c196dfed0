package repository

import (
	"errors"

	"go-fleet-console/internal/model"

	"gorm.io/gorm"
)

type RoleRepository interface {
	FindAll() ([]model.Role, error)
	FindByID(id uint) (*model.Role, error)
	FindByCode(code string) (*model.Role, error)
	Create(role *model.Role) error
	ReplacePrivileges(roleID uint, privileges []model.Privilege) error
	SeedDefaults() error
}

type roleRepo struct {
	db *gorm.DB
}

func NewRoleRepo(db *gorm.DB) RoleRepository {
	return &roleRepo{db: db}
}

func preloadPrivileges(db *gorm.DB) *gorm.DB {
	return db.Order("privileges.id")
}

func (r *roleRepo) FindAll() ([]model.Role, error) {
	var roles []model.Role
	err := r.db.Preload("Privileges", preloadPrivileges).Order("id").Find(&roles).Error
	return roles, err
}

func (r *roleRepo) FindByID(id uint) (*model.Role, error) {
	var role model.Role
	err := r.db.Preload("Privileges", preloadPrivileges).First(&role, id).Error
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepo) FindByCode(code string) (*model.Role, error) {
	var role model.Role
	err := r.db.Preload("Privileges", preloadPrivileges).Where("code = ?", code).First(&role).Error
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepo) Create(role *model.Role) error {
	return r.db.Create(role).Error
}

func (r *roleRepo) ReplacePrivileges(roleID uint, privileges []model.Privilege) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var role model.Role
		if err := tx.First(&role, roleID).Error; err != nil {
			return err
		}
		return tx.Model(&role).Association("Privileges").Replace(privileges)
	})
}

// SeedDefaults creates missing default roles with their starting privileges.
// Privileges must be seeded first.
func (r *roleRepo) SeedDefaults() error {
	var catalogue []model.Privilege
	if err := r.db.Order("id").Find(&catalogue).Error; err != nil {
		return err
	}

	for _, defaultRole := range model.DefaultRoles {
		defaultRole := defaultRole
		var existingRole model.Role
		err := r.db.Where("code = ?", defaultRole.Code).First(&existingRole).Error
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			if err != nil {
				return err
			}
			continue
		}

		// Role doesn't exist, create it with its default grants
		for _, p := range catalogue {
			if model.DefaultRoleIncludes(defaultRole.Code, p) {
				defaultRole.Privileges = append(defaultRole.Privileges, p)
			}
		}
		if err := r.db.Create(&defaultRole).Error; err != nil {
			return err
		}
	}
	return nil
}
