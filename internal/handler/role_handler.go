package handler

import (
	"go-fleet-console/internal/middleware"
	"go-fleet-console/internal/permission"
	"go-fleet-console/internal/service"

	"github.com/gofiber/fiber/v2"
)

type RoleHandler struct {
	roleService service.RoleService
}

func NewRoleHandler(roleService service.RoleService) *RoleHandler {
	return &RoleHandler{roleService: roleService}
}

// UpdatePermissionsRequest replaces a role's grants wholesale
type UpdatePermissionsRequest struct {
	Grants []permission.Grant `json:"grants"`
}

func roleID(c *fiber.Ctx) (uint, bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint(id), true
}

// GetRoles returns all available roles
// GET /api/v1/roles
func (h *RoleHandler) GetRoles(c *fiber.Ctx) error {
	roles, err := h.roleService.ListRoles()
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to fetch roles"})
	}
	return c.JSON(roles)
}

// POST /api/v1/roles
func (h *RoleHandler) CreateRole(c *fiber.Ctx) error {
	var req service.CreateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	role, err := h.roleService.CreateRole(&req, middleware.Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Role created", "data": role})
}

// GetMatrix returns the role-authoring matrix for one role
// GET /api/v1/roles/:id/matrix
func (h *RoleHandler) GetMatrix(c *fiber.Ctx) error {
	id, ok := roleID(c)
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid role ID"})
	}
	matrix, err := h.roleService.Matrix(id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(matrix)
}

// ToggleCell flips a single matrix cell
// PATCH /api/v1/roles/:id/matrix
func (h *RoleHandler) ToggleCell(c *fiber.Ctx) error {
	id, ok := roleID(c)
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid role ID"})
	}
	var req service.ToggleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	matrix, err := h.roleService.ToggleCell(id, &req, middleware.Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Permission updated", "data": matrix})
}

// PUT /api/v1/roles/:id/permissions
func (h *RoleHandler) UpdatePermissions(c *fiber.Ctx) error {
	id, ok := roleID(c)
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid role ID"})
	}
	var req UpdatePermissionsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	role, err := h.roleService.UpdatePermissions(id, req.Grants, middleware.Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Permissions updated", "data": role})
}

// GetPrivileges returns the flat permission catalogue
// GET /api/v1/privileges
func (h *RoleHandler) GetPrivileges(c *fiber.Ctx) error {
	catalogue, err := h.roleService.Catalogue()
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to fetch privileges"})
	}
	return c.JSON(catalogue)
}
