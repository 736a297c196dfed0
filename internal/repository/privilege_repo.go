package repository

import (
	"errors"

	"go-fleet-console/internal/model"

	"gorm.io/gorm"
)

type PrivilegeRepository interface {
	FindByModuleAction(moduleKey, action string) (*model.Privilege, error)
	FindByIDs(ids []uint) ([]model.Privilege, error)
	FindAll() ([]model.Privilege, error)
	Create(privilege *model.Privilege) error
	SetActive(id uint, active bool) error
	SeedDefaults() error
}

type privilegeRepo struct {
	db *gorm.DB
}

func NewPrivilegeRepo(db *gorm.DB) PrivilegeRepository {
	return &privilegeRepo{db}
}

func (r *privilegeRepo) FindByModuleAction(moduleKey, action string) (*model.Privilege, error) {
	var privilege model.Privilege
	if err := r.db.Where("module_key = ? AND action = ?", moduleKey, action).First(&privilege).Error; err != nil {
		return nil, err
	}
	return &privilege, nil
}

func (r *privilegeRepo) FindByIDs(ids []uint) ([]model.Privilege, error) {
	var privileges []model.Privilege
	if len(ids) == 0 {
		return privileges, nil
	}
	if err := r.db.Where("id IN ?", ids).Order("id").Find(&privileges).Error; err != nil {
		return nil, err
	}
	return privileges, nil
}

// FindAll returns the catalogue in insertion order, which is the matrix display order
func (r *privilegeRepo) FindAll() ([]model.Privilege, error) {
	var privileges []model.Privilege
	if err := r.db.Order("id").Find(&privileges).Error; err != nil {
		return nil, err
	}
	return privileges, nil
}

func (r *privilegeRepo) Create(privilege *model.Privilege) error {
	return r.db.Create(privilege).Error
}

func (r *privilegeRepo) SetActive(id uint, active bool) error {
	res := r.db.Model(&model.Privilege{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SeedDefaults creates default privileges if they don't exist
func (r *privilegeRepo) SeedDefaults() error {
	for _, p := range model.DefaultPrivileges() {
		p := p
		var existing model.Privilege
		err := r.db.Where("module_key = ? AND action = ?", p.ModuleKey, p.Action).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := r.db.Create(&p).Error; err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
