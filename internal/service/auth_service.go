package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"go-fleet-console/internal/model"
	"go-fleet-console/internal/permission"
	"go-fleet-console/internal/repository"
	"go-fleet-console/internal/ws"
	"go-fleet-console/pkg/jwt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrSessionReplaced    = errors.New("session expired (logged in on another device)")
)

type AuthService interface {
	Login(email, password string) (*LoginResponse, error)
	Logout(userID uuid.UUID) error
	Authenticate(tokenString string) (*model.User, error)
	Permissions(userID uuid.UUID) (*PermissionsResponse, error)
	ResetPassword(email, oldPassword, newPassword string) error
	Heartbeat(userID uuid.UUID) error
}

type LoginResponse struct {
	Token  string             `json:"token"`
	User   model.UserResponse `json:"user"`
	Grants []permission.Grant `json:"grants"`
}

type PermissionsResponse struct {
	User   model.UserResponse `json:"user"`
	Grants []permission.Grant `json:"grants"`
}

type authService struct {
	userRepo repository.UserRepository
	tokens   *jwt.Manager
	hub      ws.Publisher
	logger   *zap.Logger
}

func NewAuthService(userRepo repository.UserRepository, tokens *jwt.Manager, hub ws.Publisher, logger *zap.Logger) AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &authService{
		userRepo: userRepo,
		tokens:   tokens,
		hub:      hub,
		logger:   logger,
	}
}

func (s *authService) Login(email, password string) (*LoginResponse, error) {
	// 1. Find user by email
	user, err := s.userRepo.FindByEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	// 2. Check if user is active
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	// 3. Verify password
	if !user.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}

	// 4. Single session: a new token version invalidates every older token
	now := time.Now()
	user.TokenVersion = uuid.New().String()
	user.LastSeenAt = &now
	if err := s.userRepo.Update(user); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	// 5. Generate JWT token with TokenVersion
	token, err := s.tokens.GenerateToken(user.ID, user.Email, user.FullName, user.RoleCode(), user.TokenVersion)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	s.logger.Info("user logged in", zap.String("user_id", user.ID.String()), zap.String("role", user.RoleCode()))
	resp := user.ToResponse()
	return &LoginResponse{
		Token:  token,
		User:   resp,
		Grants: resp.Grants,
	}, nil
}

// Logout rotates the token version so the presented token stops working
func (s *authService) Logout(userID uuid.UUID) error {
	if err := s.userRepo.UpdateTokenVersion(userID, uuid.New().String()); err != nil {
		return err
	}
	s.logger.Info("user logged out", zap.String("user_id", userID.String()))
	return nil
}

// Authenticate resolves a bearer token to its user, role and privileges loaded
func (s *authService) Authenticate(tokenString string) (*model.User, error) {
	// 1. Validate JWT token
	claims, err := s.tokens.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	// 2. Find user by ID from token claims
	user, err := s.userRepo.FindByID(claims.UserID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	// 3. Check if user is still active
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	// 4. Strict session against the DB
	if user.TokenVersion != claims.TokenVersion {
		return nil, ErrSessionReplaced
	}
	return user, nil
}

func (s *authService) Permissions(userID uuid.UUID) (*PermissionsResponse, error) {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	resp := user.ToResponse()
	return &PermissionsResponse{User: resp, Grants: resp.Grants}, nil
}

func (s *authService) ResetPassword(email, oldPassword, newPassword string) error {
	// 1. Find user by email
	user, err := s.userRepo.FindByEmail(email)
	if err != nil {
		return ErrUserNotFound
	}

	// 2. Verify old password
	if !user.CheckPassword(oldPassword) {
		return ErrWrongPassword
	}

	// 3. Set new password
	if err := user.SetPassword(newPassword); err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	// 4. Update in database, signing out other sessions
	user.TokenVersion = uuid.New().String()
	return s.userRepo.Update(user)
}

func (s *authService) Heartbeat(userID uuid.UUID) error {
	if err := s.userRepo.UpdateLastSeen(userID); err != nil {
		return err
	}
	s.hub.Publish(ws.Event{Type: ws.EventUserStatus, Resource: "users", IDs: []string{userID.String()}})
	return nil
}
