package service

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"go-fleet-console/internal/model"
	"go-fleet-console/internal/permission"
	"go-fleet-console/internal/repository"
	"go-fleet-console/internal/ws"
	"go-fleet-console/pkg/validator"
)

var (
	ErrRoleNotFound      = errors.New("role not found")
	ErrRoleExists        = errors.New("role code already exists")
	ErrRoleNotAssignable = errors.New("role cannot be assigned to users")
	ErrRoleLocked        = errors.New("system role permissions cannot be edited")
	ErrInvalidGrants     = errors.New("invalid grants")
)

type RoleService interface {
	ListRoles() ([]model.RoleResponse, error)
	GetRole(id uint) (*model.RoleResponse, error)
	CreateRole(req *CreateRoleRequest, actor string) (*model.RoleResponse, error)
	Matrix(roleID uint) (*MatrixResponse, error)
	ToggleCell(roleID uint, req *ToggleRequest, actor string) (*MatrixResponse, error)
	UpdatePermissions(roleID uint, grants []permission.Grant, actor string) (*model.RoleResponse, error)
	Catalogue() ([]permission.CatalogueEntry, error)
}

type CreateRoleRequest struct {
	Code        string             `json:"code" validate:"required,max=50"`
	Name        string             `json:"name" validate:"required,max=100"`
	Description string             `json:"description"`
	Grants      []permission.Grant `json:"grants"`
}

type ToggleRequest struct {
	ModuleKey string            `json:"module_key" validate:"required,module_key"`
	Action    permission.Action `json:"action" validate:"required"`
	Enabled   bool              `json:"enabled"`
}

type MatrixResponse struct {
	Role    model.RoleResponse     `json:"role"`
	Modules []permission.ModuleRow `json:"modules"`
}

type roleService struct {
	roleRepo      repository.RoleRepository
	privilegeRepo repository.PrivilegeRepository
	userRepo      repository.UserRepository
	hub           ws.Publisher
	logger        *zap.Logger
}

func NewRoleService(roleRepo repository.RoleRepository, privilegeRepo repository.PrivilegeRepository, userRepo repository.UserRepository, hub ws.Publisher, logger *zap.Logger) RoleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &roleService{
		roleRepo:      roleRepo,
		privilegeRepo: privilegeRepo,
		userRepo:      userRepo,
		hub:           hub,
		logger:        logger,
	}
}

func (s *roleService) ListRoles() ([]model.RoleResponse, error) {
	roles, err := s.roleRepo.FindAll()
	if err != nil {
		return nil, err
	}
	out := make([]model.RoleResponse, len(roles))
	for i := range roles {
		out[i] = roles[i].ToResponse()
	}
	return out, nil
}

func (s *roleService) GetRole(id uint) (*model.RoleResponse, error) {
	role, err := s.roleRepo.FindByID(id)
	if err != nil {
		return nil, notFound(err, ErrRoleNotFound)
	}
	resp := role.ToResponse()
	return &resp, nil
}

func (s *roleService) Catalogue() ([]permission.CatalogueEntry, error) {
	privileges, err := s.privilegeRepo.FindAll()
	if err != nil {
		return nil, err
	}
	return model.Catalogue(privileges), nil
}

func (s *roleService) CreateRole(req *CreateRoleRequest, actor string) (*model.RoleResponse, error) {
	// 1. Validate request
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if err := validator.First(req); err != nil {
		return nil, invalid(err)
	}

	// 2. Code must be unique
	if existing, err := s.roleRepo.FindByCode(req.Code); err == nil && existing != nil {
		return nil, ErrRoleExists
	}

	// 3. Resolve grants against the catalogue
	privileges, err := s.resolve(req.Grants)
	if err != nil {
		return nil, err
	}

	// 4. Save
	role := &model.Role{
		Code:         req.Code,
		Name:         req.Name,
		Description:  req.Description,
		IsAssignable: true,
		Privileges:   privileges,
	}
	if err := s.roleRepo.Create(role); err != nil {
		return nil, err
	}
	s.logger.Info("role created", zap.String("role", role.Code), zap.Int("privileges", len(privileges)), zap.String("actor", actor))
	resp := role.ToResponse()
	return &resp, nil
}

func (s *roleService) Matrix(roleID uint) (*MatrixResponse, error) {
	role, err := s.roleRepo.FindByID(roleID)
	if err != nil {
		return nil, notFound(err, ErrRoleNotFound)
	}
	catalogue, err := s.Catalogue()
	if err != nil {
		return nil, err
	}
	return &MatrixResponse{
		Role:    role.ToResponse(),
		Modules: permission.BuildMatrix(catalogue, role.Grants()),
	}, nil
}

// ToggleCell flips one matrix cell and saves the role's resulting grants
func (s *roleService) ToggleCell(roleID uint, req *ToggleRequest, actor string) (*MatrixResponse, error) {
	if err := validator.First(req); err != nil {
		return nil, invalid(err)
	}
	current, err := s.Matrix(roleID)
	if err != nil {
		return nil, err
	}
	next := permission.ApplyToggle(current.Modules, req.ModuleKey, req.Action, req.Enabled)
	if _, err := s.UpdatePermissions(roleID, permission.GrantsFromMatrix(next), actor); err != nil {
		return nil, err
	}
	return s.Matrix(roleID)
}

func (s *roleService) UpdatePermissions(roleID uint, grants []permission.Grant, actor string) (*model.RoleResponse, error) {
	// 1. Find role
	role, err := s.roleRepo.FindByID(roleID)
	if err != nil {
		return nil, notFound(err, ErrRoleNotFound)
	}
	if role.Code == model.RoleMasterAdmin {
		return nil, ErrRoleLocked
	}

	// 2. Resolve grants to catalogue rows
	privileges, err := s.resolve(grants)
	if err != nil {
		return nil, err
	}

	// 3. Replace wholesale
	if err := s.roleRepo.ReplacePrivileges(roleID, privileges); err != nil {
		return nil, err
	}

	// 4. Tell every holder of the role to refetch
	users, err := s.userRepo.FindByRole(roleID)
	if err != nil {
		s.logger.Warn("list role holders failed", zap.Uint("role_id", roleID), zap.Error(err))
	}
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID.String()
	}
	s.hub.Publish(ws.Event{Type: ws.EventPermissionsChanged, Resource: "roles", IDs: ids})

	s.logger.Info("role permissions updated",
		zap.String("role", role.Code),
		zap.Int("privileges", len(privileges)),
		zap.Int("holders", len(ids)),
		zap.String("actor", actor),
	)
	return s.GetRole(roleID)
}

// resolve validates grants against the active catalogue and returns matching rows
func (s *roleService) resolve(grants []permission.Grant) ([]model.Privilege, error) {
	catalogue, err := s.privilegeRepo.FindAll()
	if err != nil {
		return nil, err
	}
	if err := permission.ValidateGrants(grants, model.Catalogue(catalogue)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrants, err)
	}

	set := permission.NewGrantSet(grants)
	var out []model.Privilege
	for _, p := range catalogue {
		if p.IsActive && set.CanPerform(p.ModuleKey, permission.Action(p.Action)) {
			out = append(out, p)
		}
	}
	return out, nil
}
