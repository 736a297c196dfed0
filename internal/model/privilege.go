package model

import (
	"strings"

	"go-fleet-console/internal/permission"
)

// Privilege is one catalogue entry: an action a role may be granted on a module
type Privilege struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	ModuleKey string `gorm:"type:varchar(50);uniqueIndex:idx_privilege_module_action;not null" json:"module_key"`
	Action    string `gorm:"type:varchar(30);uniqueIndex:idx_privilege_module_action;not null" json:"action"`
	Name      string `gorm:"type:varchar(100)" json:"name"`
	IsActive  bool   `gorm:"not null" json:"is_active"`
}

// Code returns the "module:action" form used in logs and the reset tool
func (p Privilege) Code() string {
	return permission.Code(p.ModuleKey, permission.Action(p.Action))
}

func (p Privilege) ToCatalogueEntry() permission.CatalogueEntry {
	active := p.IsActive
	return permission.CatalogueEntry{
		ModuleKey: p.ModuleKey,
		Action:    permission.Action(p.Action),
		Name:      p.Name,
		IsActive:  &active,
	}
}

// Catalogue converts stored privileges in their stored order
func Catalogue(privileges []Privilege) []permission.CatalogueEntry {
	out := make([]permission.CatalogueEntry, len(privileges))
	for i, p := range privileges {
		out[i] = p.ToCatalogueEntry()
	}
	return out
}

// GrantsFromPrivileges groups active privileges into one grant per module,
// modules and actions in first-seen order
func GrantsFromPrivileges(privileges []Privilege) []permission.Grant {
	index := make(map[string]int)
	var grants []permission.Grant
	for _, p := range privileges {
		if !p.IsActive {
			continue
		}
		i, ok := index[p.ModuleKey]
		if !ok {
			i = len(grants)
			index[p.ModuleKey] = i
			grants = append(grants, permission.Grant{ModuleKey: p.ModuleKey})
		}
		action := permission.Action(p.Action)
		if !grants[i].Has(action) {
			grants[i].Actions = append(grants[i].Actions, action)
		}
	}
	return grants
}

// DefaultPrivileges is the catalogue seeded on a fresh install
func DefaultPrivileges() []Privilege {
	catalogue := permission.DefaultCatalogue()
	out := make([]Privilege, len(catalogue))
	for i, e := range catalogue {
		out[i] = Privilege{
			ModuleKey: e.ModuleKey,
			Action:    string(e.Action),
			Name:      privilegeName(e.ModuleKey, e.Action),
			IsActive:  true,
		}
	}
	return out
}

func privilegeName(module string, action permission.Action) string {
	return title(string(action)) + " " + title(module)
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
