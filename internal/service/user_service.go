package service

import (
	"errors"
	"fmt"

	"go-fleet-console/internal/model"
	"go-fleet-console/internal/repository"
	"go-fleet-console/internal/ws"
	"go-fleet-console/pkg/validator"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEmailExists = errors.New("email already exists")
)

type UserService interface {
	CreateUser(req *CreateUserRequest, creatorID string) (*model.User, error)
	UpdateUser(userID uuid.UUID, req *UpdateUserRequest, updaterID string) (*model.User, error)
	DeleteUser(userID uuid.UUID) error
	AssignRole(userID uuid.UUID, roleID uint, updaterID string) (*model.User, error)
	GetAllUsers() ([]model.UserResponse, error)
	GetUserByID(id uuid.UUID) (*model.UserResponse, error)
}

type CreateUserRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	FullName    string `json:"full_name" validate:"required"`
	PhoneNumber string `json:"phone_number"`
	RoleID      uint   `json:"role_id" validate:"required"`
}

type UpdateUserRequest struct {
	Email       string  `json:"email" validate:"required,email"`
	Password    *string `json:"password,omitempty" validate:"omitempty,min=6"` // Optional
	FullName    string  `json:"full_name" validate:"required"`
	PhoneNumber string  `json:"phone_number"`
	IsActive    *bool   `json:"is_active"`
}

type userService struct {
	userRepo repository.UserRepository
	roleRepo repository.RoleRepository
	hub      ws.Publisher
	logger   *zap.Logger
}

func NewUserService(userRepo repository.UserRepository, roleRepo repository.RoleRepository, hub ws.Publisher, logger *zap.Logger) UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &userService{
		userRepo: userRepo,
		roleRepo: roleRepo,
		hub:      hub,
		logger:   logger,
	}
}

// assignableRole loads a role and refuses system roles
func (s *userService) assignableRole(roleID uint) (*model.Role, error) {
	role, err := s.roleRepo.FindByID(roleID)
	if err != nil {
		return nil, ErrRoleNotFound
	}
	if !role.IsAssignable {
		return nil, ErrRoleNotAssignable
	}
	return role, nil
}

func (s *userService) CreateUser(req *CreateUserRequest, creatorID string) (*model.User, error) {
	// 1. Validate request
	if err := validator.First(req); err != nil {
		return nil, invalid(err)
	}

	// 2. Check if email already exists
	existing, _ := s.userRepo.FindByEmail(req.Email)
	if existing != nil {
		return nil, ErrEmailExists
	}

	// 3. Validate role exists and may be handed out
	role, err := s.assignableRole(req.RoleID)
	if err != nil {
		return nil, err
	}

	// 4. Create user
	user := &model.User{
		Email:       req.Email,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
		RoleID:      &role.ID,
		IsActive:    true,
	}
	user.CreatedBy = creatorID
	user.UpdatedBy = creatorID

	// 5. Set password
	if err := user.SetPassword(req.Password); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	// 6. Save to database
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}
	user.Role = role

	s.logger.Info("user created", zap.String("user_id", user.ID.String()), zap.String("role", role.Code), zap.String("actor", creatorID))
	return user, nil
}

func (s *userService) UpdateUser(userID uuid.UUID, req *UpdateUserRequest, updaterID string) (*model.User, error) {
	// 1. Validate request
	if err := validator.First(req); err != nil {
		return nil, invalid(err)
	}

	// 2. Find existing user
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	// 3. Check if email is being changed and already exists
	if req.Email != user.Email {
		existing, _ := s.userRepo.FindByEmail(req.Email)
		if existing != nil {
			return nil, ErrEmailExists
		}
	}

	// 4. Update user fields
	user.Email = req.Email
	user.FullName = req.FullName
	user.PhoneNumber = req.PhoneNumber
	deactivated := false
	if req.IsActive != nil {
		deactivated = user.IsActive && !*req.IsActive
		user.IsActive = *req.IsActive
	}
	user.UpdatedBy = updaterID

	// 5. Update password if provided
	if req.Password != nil && *req.Password != "" {
		if err := user.SetPassword(*req.Password); err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	// 6. Save to database
	if err := s.userRepo.Update(user); err != nil {
		return nil, err
	}
	if deactivated {
		s.hub.Publish(ws.Event{Type: ws.EventPermissionsChanged, Resource: "users", IDs: []string{userID.String()}})
	}

	// 7. Reload and return
	return s.userRepo.FindByID(userID)
}

func (s *userService) DeleteUser(userID uuid.UUID) error {
	return s.userRepo.Delete(userID)
}

// AssignRole moves a user to another role; their grants change with it
func (s *userService) AssignRole(userID uuid.UUID, roleID uint, updaterID string) (*model.User, error) {
	// 1. Find user
	if _, err := s.userRepo.FindByID(userID); err != nil {
		return nil, ErrUserNotFound
	}

	// 2. Role must exist and be assignable
	role, err := s.assignableRole(roleID)
	if err != nil {
		return nil, err
	}

	// 3. Update role
	if err := s.userRepo.UpdateRole(userID, role.ID); err != nil {
		return nil, err
	}

	s.logger.Info("user role changed", zap.String("user_id", userID.String()), zap.String("role", role.Code), zap.String("actor", updaterID))
	s.hub.Publish(ws.Event{Type: ws.EventPermissionsChanged, Resource: "users", IDs: []string{userID.String()}})

	// 4. Reload user with the new role
	return s.userRepo.FindByID(userID)
}

func (s *userService) GetAllUsers() ([]model.UserResponse, error) {
	users, err := s.userRepo.FindAll()
	if err != nil {
		return nil, err
	}

	responses := make([]model.UserResponse, len(users))
	for i, user := range users {
		responses[i] = user.ToResponse()
	}
	return responses, nil
}

func (s *userService) GetUserByID(id uuid.UUID) (*model.UserResponse, error) {
	user, err := s.userRepo.FindByID(id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	response := user.ToResponse()
	return &response, nil
}
