package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/boddenberg/rental-api-go/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ============================================================
// RegisterLandlord: POST /api/auth/register/landlord
// ============================================================

// RegisterLandlord creates a landlord account. No tokens are issued.
func (s *AuthService) RegisterLandlord(ctx context.Context, req *domain.LandlordRegisterRequest) (*domain.AuthResult, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.RegisterLandlord")
	defer span.End()

	username := strings.TrimSpace(req.Username)
	phone := strings.TrimSpace(req.Phone)
	if username == "" || req.Password == "" || phone == "" {
		return nil, &domain.ErrValidation{Field: "body", Message: "username, password and phone are required"}
	}

	existing, err := s.store.GetUserByUsername(ctx, username, "")
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if existing != nil {
		return nil, &domain.ErrConflict{Message: "Username already exists"}
	}
	existing, err = s.store.GetUserByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("check phone: %w", err)
	}
	if existing != nil {
		return nil, &domain.ErrConflict{Message: "Phone number already registered"}
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.store.CreateUser(ctx, &domain.NewUser{
		Username:     username,
		PasswordHash: string(hash),
		PhoneNumber:  phone,
		Role:         domain.RoleLandlord,
	})
	if err != nil {
		return nil, fmt.Errorf("create landlord: %w", err)
	}

	s.logger.Info("landlord registered", zap.String("user_id", user.ID))

	return &domain.AuthResult{User: &domain.User{
		ID:          user.ID,
		Username:    user.Username,
		PhoneNumber: user.PhoneNumber,
		Role:        user.Role,
	}}, nil
}

// ============================================================
// Register: POST /api/auth/register
// ============================================================

// Register creates a tenant or landlord account and signs it in.
func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResult, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Register")
	defer span.End()

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, &domain.ErrValidation{Field: "body", Message: "username and password are required"}
	}
	role := req.Role
	if role == "" {
		role = domain.RoleTenant
	}
	if role != domain.RoleTenant && role != domain.RoleLandlord {
		return nil, &domain.ErrValidation{Field: "role", Message: "role must be tenant or landlord"}
	}

	existing, err := s.store.GetUserByUsername(ctx, username, "")
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if existing != nil {
		return nil, &domain.ErrConflict{Message: "Username already exists"}
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	nickname := "租客" + username
	if role == domain.RoleLandlord {
		nickname = "房东" + username
	}

	user, err := s.store.CreateUser(ctx, &domain.NewUser{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		Nickname:     nickname,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered",
		zap.String("user_id", user.ID),
		zap.String("role", string(role)),
	)

	return s.issueTokens(ctx, user, user)
}

// hashPassword rejects passwords bcrypt cannot hash as a validation error.
func hashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, &domain.ErrValidation{Field: "password", Message: "password must be at most 72 bytes"}
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}
