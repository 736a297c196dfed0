package handler

import (
	"errors"

	"go-fleet-console/internal/service"

	"github.com/gofiber/fiber/v2"
)

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidGrants):
		return 400
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrSessionReplaced):
		return 401
	case errors.Is(err, service.ErrRoleLocked), errors.Is(err, service.ErrRoleNotAssignable), errors.Is(err, service.ErrUserInactive):
		return 403
	case errors.Is(err, service.ErrDepartmentNotFound), errors.Is(err, service.ErrEmployeeNotFound),
		errors.Is(err, service.ErrRoleNotFound), errors.Is(err, service.ErrUserNotFound):
		return 404
	case errors.Is(err, service.ErrEmailExists), errors.Is(err, service.ErrRoleExists):
		return 409
	}
	return 500
}

func fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == 500 {
		return c.Status(500).JSON(fiber.Map{"error": "Internal Server Error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
