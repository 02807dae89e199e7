package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/rental-api-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Refresh: POST /api/auth/refresh
// ============================================================

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (s *AuthService) Refresh(ctx context.Context, req *domain.RefreshRequest) (*domain.AuthResult, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Refresh")
	defer span.End()

	if req.RefreshToken == "" {
		return nil, &domain.ErrValidation{Field: "refresh_token", Message: "refresh_token is required"}
	}
	tokenHash := hashToken(req.RefreshToken)

	stored, err := s.store.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	if stored == nil || stored.Revoked {
		return nil, &domain.ErrUnauthorized{Message: "Invalid refresh token"}
	}

	if stored.ExpiresAt.Before(time.Now()) {
		s.logger.Warn("refresh: expired token used", zap.String("user_id", stored.UserID))
		if _, err := s.store.RevokeRefreshToken(ctx, tokenHash); err != nil {
			s.logger.Warn("refresh: revoke expired token", zap.String("user_id", stored.UserID), zap.Error(err))
		}
		return nil, &domain.ErrUnauthorized{Message: "Refresh token expired"}
	}

	// Rotation: only the caller that flips the token to revoked may continue.
	revoked, err := s.store.RevokeRefreshToken(ctx, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !revoked {
		s.logger.Warn("refresh: token already used", zap.String("user_id", stored.UserID))
		return nil, &domain.ErrUnauthorized{Message: "Invalid refresh token"}
	}

	user, err := s.store.GetUserByID(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, &domain.ErrUnauthorized{Message: "User no longer exists"}
	}

	return s.issueTokens(ctx, user, user)
}

// ============================================================
// Logout: POST /api/auth/logout
// ============================================================

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	if err := s.store.RevokeAllRefreshTokens(ctx, userID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}

	s.logger.Info("user logged out", zap.String("user_id", userID))
	return nil
}

// ============================================================
// Me: GET /api/auth/me
// ============================================================

func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Me")
	defer span.End()

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	return user, nil
}

// TestDB probes the users table. Backs GET /api/auth/test-db.
func (s *AuthService) TestDB(ctx context.Context) error {
	ctx, span := authTracer.Start(ctx, "AuthService.TestDB")
	defer span.End()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("database probe failed", zap.Error(err))
		return err
	}
	return nil
}
