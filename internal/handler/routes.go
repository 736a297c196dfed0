package handler

import (
	"go-fleet-console/internal/middleware"
	"go-fleet-console/internal/permission"

	"github.com/gofiber/fiber/v2"
)

// Handlers bundles everything mounted under /api/v1
type Handlers struct {
	Auth      *AuthHandler
	Directory *DirectoryHandler
	Role      *RoleHandler
	User      *UserHandler
}

// Register mounts the REST API. Every protected route names the module action it needs.
func Register(app *fiber.App, h Handlers, auth middleware.Authenticator, guard *middleware.PermissionGuard) {
	api := app.Group("/api/v1")
	need := guard.RequirePermission

	// ============ PUBLIC ROUTES ============
	authGroup := api.Group("/auth")
	authGroup.Post("/login", h.Auth.Login)
	authGroup.Post("/reset-password", h.Auth.ResetPassword)

	// ============ PROTECTED ROUTES ============
	protected := api.Group("", middleware.RequireAuth(auth))

	// Session routes, available to every authenticated user
	protected.Post("/auth/logout", h.Auth.Logout)
	protected.Get("/auth/permissions", h.Auth.Permissions)
	protected.Post("/auth/heartbeat", h.Auth.Heartbeat)

	// Departments
	protected.Get("/departments", need(permission.ModuleDepartment, permission.ActionRead), h.Directory.GetDepartments)
	protected.Post("/departments", need(permission.ModuleDepartment, permission.ActionWrite), h.Directory.CreateDepartment)
	protected.Get("/departments/:id", need(permission.ModuleDepartment, permission.ActionRead), h.Directory.GetDepartment)
	protected.Put("/departments/:id", need(permission.ModuleDepartment, permission.ActionWrite), h.Directory.RenameDepartment)
	protected.Delete("/departments/:id", need(permission.ModuleDepartment, permission.ActionDelete), h.Directory.DeleteDepartment)
	protected.Post("/departments/:id/employees", need(permission.ModuleDepartment, permission.ActionWrite), h.Directory.AddEmployee)
	protected.Delete("/departments/:id/employees/:eid", need(permission.ModuleDepartment, permission.ActionWrite), h.Directory.RemoveEmployee)

	// Employees
	protected.Get("/employees", need(permission.ModuleEmployee, permission.ActionRead), h.Directory.GetEmployees)
	protected.Post("/employees", need(permission.ModuleEmployee, permission.ActionWrite), h.Directory.CreateEmployee)
	protected.Put("/employees/:id", need(permission.ModuleEmployee, permission.ActionWrite), h.Directory.UpdateEmployee)
	protected.Delete("/employees/:id", need(permission.ModuleEmployee, permission.ActionDelete), h.Directory.DeleteEmployee)

	// Roles and the permission catalogue
	protected.Get("/roles", need(permission.ModuleRole, permission.ActionRead), h.Role.GetRoles)
	protected.Post("/roles", need(permission.ModuleRole, permission.ActionWrite), h.Role.CreateRole)
	protected.Get("/roles/:id/matrix", need(permission.ModuleRole, permission.ActionRead), h.Role.GetMatrix)
	protected.Patch("/roles/:id/matrix", need(permission.ModuleRole, permission.ActionWrite), h.Role.ToggleCell)
	protected.Put("/roles/:id/permissions", need(permission.ModuleRole, permission.ActionWrite), h.Role.UpdatePermissions)
	protected.Get("/privileges", need(permission.ModuleRole, permission.ActionRead), h.Role.GetPrivileges)

	// Users
	protected.Get("/users", need(permission.ModuleUser, permission.ActionRead), h.User.GetUsers)
	protected.Get("/users/:id", need(permission.ModuleUser, permission.ActionRead), h.User.GetUser)
	protected.Post("/users", need(permission.ModuleUser, permission.ActionWrite), h.User.CreateUser)
	protected.Put("/users/:id", need(permission.ModuleUser, permission.ActionWrite), h.User.UpdateUser)
	protected.Delete("/users/:id", need(permission.ModuleUser, permission.ActionDelete), h.User.DeleteUser)
	protected.Put("/users/:id/role", guard.RequireAnyPermission("role:write", "user:write"), h.User.AssignRole)
}
