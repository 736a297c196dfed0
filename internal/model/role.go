package model

import (
	"go-fleet-console/internal/permission"
)

// Role groups the privileges handed to its users
type Role struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Code         string      `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"` // MASTER_ADMIN, ADMIN, ...
	Name         string      `gorm:"type:varchar(100)" json:"name"`
	Description  string      `gorm:"type:text" json:"description"`
	IsAssignable bool        `gorm:"not null" json:"is_assignable"` // false for system roles
	Privileges   []Privilege `gorm:"many2many:role_privileges;" json:"-"`
}

// Role codes as constants
const (
	RoleMasterAdmin = "MASTER_ADMIN"
	RoleAdmin       = "ADMIN"
	RoleDispatcher  = "DISPATCHER"
	RoleViewer      = "VIEWER"
)

// Grants returns the role's active privileges grouped by module
func (r *Role) Grants() []permission.Grant {
	if r == nil {
		return nil
	}
	return GrantsFromPrivileges(r.Privileges)
}

// RoleResponse is used for API responses
type RoleResponse struct {
	ID           uint               `json:"id"`
	Code         string             `json:"code"`
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	IsAssignable bool               `json:"is_assignable"`
	Grants       []permission.Grant `json:"grants"`
}

func (r *Role) ToResponse() RoleResponse {
	grants := r.Grants()
	if grants == nil {
		grants = []permission.Grant{}
	}
	return RoleResponse{
		ID:           r.ID,
		Code:         r.Code,
		Name:         r.Name,
		Description:  r.Description,
		IsAssignable: r.IsAssignable,
		Grants:       grants,
	}
}

// DefaultRoles defines the default roles in the system
var DefaultRoles = []Role{
	{
		Code:        RoleMasterAdmin,
		Name:        "Master Administrator",
		Description: "Full system access with all privileges",
	},
	{
		Code:         RoleAdmin,
		Name:         "Administrator",
		Description:  "Manages the directory, fleet records and roles",
		IsAssignable: true,
	},
	{
		Code:         RoleDispatcher,
		Name:         "Dispatcher",
		Description:  "Works drivers, vehicles, escorts and shifts",
		IsAssignable: true,
	},
	{
		Code:         RoleViewer,
		Name:         "Viewer",
		Description:  "Read-only access",
		IsAssignable: true,
	},
}

var dispatcherModules = map[string]bool{
	permission.ModuleDriver:     true,
	permission.ModuleVehicle:    true,
	permission.ModuleEscort:     true,
	permission.ModuleShift:      true,
	permission.ModuleDepartment: true,
	permission.ModuleEmployee:   true,
}

// DefaultRoleIncludes reports whether a seeded role starts with the privilege
func DefaultRoleIncludes(roleCode string, p Privilege) bool {
	action := permission.Action(p.Action)
	switch roleCode {
	case RoleMasterAdmin:
		return true
	case RoleAdmin:
		return !(p.ModuleKey == permission.ModuleRole && action == permission.ActionDelete)
	case RoleDispatcher:
		return dispatcherModules[p.ModuleKey] && action != permission.ActionDelete
	case RoleViewer:
		return action == permission.ActionRead || action == permission.ActionView
	}
	return false
}
