package handler

import (
	"go-fleet-console/internal/middleware"
	"go-fleet-console/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type DirectoryHandler struct {
	directory service.DirectoryService
}

func NewDirectoryHandler(directory service.DirectoryService) *DirectoryHandler {
	return &DirectoryHandler{directory: directory}
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	return id, err == nil
}

// GetDepartments returns all departments with their member ids
// GET /api/v1/departments
func (h *DirectoryHandler) GetDepartments(c *fiber.Ctx) error {
	depts, err := h.directory.ListDepartments()
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(depts)
}

// GET /api/v1/departments/:id
func (h *DirectoryHandler) GetDepartment(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid department ID"})
	}
	dept, err := h.directory.GetDepartment(id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dept)
}

// POST /api/v1/departments
func (h *DirectoryHandler) CreateDepartment(c *fiber.Ctx) error {
	var req service.DepartmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	dept, err := h.directory.CreateDepartment(&req, middleware.Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Department created", "data": dept})
}

// PUT /api/v1/departments/:id
func (h *DirectoryHandler) RenameDepartment(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid department ID"})
	}
	var req service.DepartmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	dept, err := h.directory.RenameDepartment(id, &req, middleware.Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Department updated", "data": dept})
}

// DeleteDepartment removes a department; ?cascade=true also deletes its members
// DELETE /api/v1/departments/:id
func (h *DirectoryHandler) DeleteDepartment(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid department ID"})
	}
	removed, err := h.directory.DeleteDepartment(id, c.QueryBool("cascade"), middleware.Actor(c))
	if err != nil {
		return fail(c, err)
	}
	if removed == nil {
		removed = []uuid.UUID{}
	}
	return c.JSON(fiber.Map{"message": "Department deleted", "removed_employee_ids": removed})
}

// POST /api/v1/departments/:id/employees
func (h *DirectoryHandler) AddEmployee(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid department ID"})
	}
	var req service.MemberRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	emp, err := h.directory.AddEmployeeToDepartment(id, &req, middleware.Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Employee added", "data": emp})
}

// RemoveEmployee detaches a member; ?global=true deletes the employee everywhere
// DELETE /api/v1/departments/:id/employees/:eid
func (h *DirectoryHandler) RemoveEmployee(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid department ID"})
	}
	empID, ok := paramUUID(c, "eid")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid employee ID"})
	}
	if err := h.directory.RemoveEmployeeFromDepartment(id, empID, c.QueryBool("global"), middleware.Actor(c)); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Employee removed"})
}

// GetEmployees lists employees, filtered by ?q= when present
// GET /api/v1/employees
func (h *DirectoryHandler) GetEmployees(c *fiber.Ctx) error {
	emps, err := h.directory.ListEmployees(c.Query("q"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(emps)
}

// POST /api/v1/employees
func (h *DirectoryHandler) CreateEmployee(c *fiber.Ctx) error {
	var req service.EmployeeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	emp, err := h.directory.CreateEmployee(&req, middleware.Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Employee created", "data": emp})
}

// PUT /api/v1/employees/:id
func (h *DirectoryHandler) UpdateEmployee(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid employee ID"})
	}
	var req service.EmployeeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	emp, err := h.directory.UpdateEmployee(id, &req, middleware.Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Employee updated", "data": emp})
}

// DELETE /api/v1/employees/:id
func (h *DirectoryHandler) DeleteEmployee(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid employee ID"})
	}
	if err := h.directory.DeleteEmployee(id, middleware.Actor(c)); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Employee deleted"})
}
