package middleware

import (
	"strings"

	"go-fleet-console/internal/model"
	"go-fleet-console/internal/obs"
	"go-fleet-console/internal/permission"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Locals keys set by RequireAuth
const (
	LocalUserID   = "user_id"
	LocalEmail    = "user_email"
	LocalName     = "user_name"
	LocalRoleCode = "role_code"
	LocalGrants   = "grants"
)

// Authenticator resolves a bearer token to a user with role privileges loaded
type Authenticator interface {
	Authenticate(token string) (*model.User, error)
}

// BearerToken extracts the token from "Authorization: Bearer <token>"
func BearerToken(c *fiber.Ctx) (string, bool) {
	parts := strings.Fields(c.Get("Authorization"))
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	return parts[1], true
}

// RequireAuth is middleware that validates JWT token and sets user info in context.
// The grant set is rebuilt from the user's role on every request.
func RequireAuth(auth Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("Authorization") == "" {
			return c.Status(401).JSON(fiber.Map{"error": "Missing authorization token"})
		}

		tokenString, ok := BearerToken(c)
		if !ok {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid authorization format. Use: Bearer <token>"})
		}

		user, err := auth.Authenticate(tokenString)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": err.Error()})
		}

		// Set user info in context for downstream handlers
		c.Locals(LocalUserID, user.ID.String())
		c.Locals(LocalEmail, user.Email)
		c.Locals(LocalName, user.FullName)
		c.Locals(LocalRoleCode, user.RoleCode())
		c.Locals(LocalGrants, permission.NewGrantSet(user.Grants()))

		return c.Next()
	}
}

// Grants returns the grant set stored by RequireAuth; the zero set denies everything
func Grants(c *fiber.Ctx) permission.GrantSet {
	set, _ := c.Locals(LocalGrants).(permission.GrantSet)
	return set
}

// Actor is the authenticated user id for audit fields, "system" otherwise
func Actor(c *fiber.Ctx) string {
	if id, ok := c.Locals(LocalUserID).(string); ok && id != "" {
		return id
	}
	return "system"
}

// PermissionGuard builds RequirePermission handlers that log and count denials
type PermissionGuard struct {
	logger  *zap.Logger
	metrics *obs.Metrics
}

func NewPermissionGuard(logger *zap.Logger, metrics *obs.Metrics) *PermissionGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionGuard{logger: logger, metrics: metrics}
}

// RequirePermission checks that the authenticated user may perform action on module
func (g *PermissionGuard) RequirePermission(moduleKey string, action permission.Action) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if Grants(c).CanPerform(moduleKey, action) {
			return c.Next()
		}
		g.deny(c, moduleKey, string(action))
		return c.Status(403).JSON(fiber.Map{
			"error": "Forbidden: requires '" + permission.Code(moduleKey, action) + "' permission",
		})
	}
}

// RequireAnyPermission passes when at least one "module:action" code is granted
func (g *PermissionGuard) RequireAnyPermission(codes ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		set := Grants(c)
		for _, code := range codes {
			if module, action, ok := permission.ParseCode(code); ok && set.CanPerform(module, action) {
				return c.Next()
			}
		}
		g.deny(c, strings.Join(codes, ","), "any")
		return c.Status(403).JSON(fiber.Map{
			"error": "Forbidden: requires one of " + strings.Join(codes, ", ") + " permissions",
		})
	}
}

func (g *PermissionGuard) deny(c *fiber.Ctx, module, action string) {
	g.metrics.PermissionDenied(module, action)
	g.logger.Warn("permission denied",
		zap.String("user_id", Actor(c)),
		zap.String("module", module),
		zap.String("action", action),
		zap.String("path", c.Path()),
	)
}
