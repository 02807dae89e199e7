package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/boddenberg/rental-api-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ============================================================
// PasswordLogin: POST /api/auth/login/password
// ============================================================

// PasswordLogin authenticates a landlord by username and password.
func (s *AuthService) PasswordLogin(ctx context.Context, req *domain.PasswordLoginRequest) (*domain.AuthResult, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.PasswordLogin")
	defer span.End()

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, &domain.ErrValidation{Field: "username", Message: "username and password are required"}
	}
	span.SetAttributes(attribute.String("username", username))

	user, err := s.store.GetUserByUsername(ctx, username, domain.RoleLandlord)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		s.logger.Warn("login: unknown landlord", zap.String("username", username))
		return nil, &domain.ErrUnauthorized{Message: "Invalid username or password"}
	}

	if !s.checkPassword(ctx, user, req.Password) {
		s.logger.Warn("login: wrong password", zap.String("user_id", user.ID))
		return nil, &domain.ErrUnauthorized{Message: "Invalid username or password"}
	}

	result, err := s.issueTokens(ctx, user, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("landlord logged in", zap.String("user_id", user.ID))
	return result, nil
}

// checkPassword verifies against the bcrypt hash, or against the legacy
// plaintext column for rows created before hashing. A legacy match upgrades
// the row in place.
func (s *AuthService) checkPassword(ctx context.Context, user *domain.User, password string) bool {
	if user.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
	}
	if user.LegacyPassword == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(user.LegacyPassword), []byte(password)) != 1 {
		return false
	}

	hash, err := hashPassword(password)
	if err != nil {
		s.logger.Warn("login: hash legacy password", zap.String("user_id", user.ID), zap.Error(err))
		return true
	}
	if err := s.store.UpdateUser(ctx, user.ID, map[string]any{
		"password_hash": string(hash),
		"password":      nil,
	}); err != nil {
		s.logger.Warn("login: upgrade legacy password", zap.String("user_id", user.ID), zap.Error(err))
		return true
	}
	user.PasswordHash = string(hash)
	user.LegacyPassword = ""
	s.logger.Info("login: legacy password upgraded", zap.String("user_id", user.ID))
	return true
}

// ============================================================
// WechatLogin: POST /api/auth/login/wechat
// ============================================================

// WechatLogin exchanges a mini-program code for an openid and signs in the
// matching tenant, creating it on first login.
func (s *AuthService) WechatLogin(ctx context.Context, req *domain.WechatLoginRequest) (*domain.AuthResult, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.WechatLogin")
	defer span.End()

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, &domain.ErrValidation{Field: "code", Message: "code is required"}
	}

	openID, err := s.resolveOpenID(ctx, code)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByOpenID(ctx, openID)
	if err != nil {
		return nil, fmt.Errorf("get user by openid: %w", err)
	}
	if user == nil {
		user, err = s.store.CreateUser(ctx, &domain.NewUser{
			OpenID:   openID,
			Role:     domain.RoleTenant,
			Nickname: "微信用户",
		})
		if err != nil {
			return nil, fmt.Errorf("create wechat user: %w", err)
		}
		s.logger.Info("wechat user created", zap.String("user_id", user.ID))
	}

	result, err := s.issueTokens(ctx, user, &domain.User{
		ID:        user.ID,
		Nickname:  user.Nickname,
		AvatarURL: user.AvatarURL,
		Role:      user.Role,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("wechat user logged in", zap.String("user_id", user.ID))
	return result, nil
}

func (s *AuthService) resolveOpenID(ctx context.Context, code string) (string, error) {
	if s.wechat == nil {
		if !s.devAuth {
			return "", &domain.ErrUnavailable{Feature: "wechat login"}
		}
		sum := sha256.Sum256([]byte(code))
		s.logger.Warn("wechat login: DEV_AUTH openid in use")
		return "dev_" + hex.EncodeToString(sum[:12]), nil
	}

	sess, err := s.wechat.Code2Session(ctx, code)
	if err != nil {
		return "", err
	}
	return sess.OpenID, nil
}
