// Package service holds the use cases behind the HTTP API. Each service
// depends on ports only, so stores and clients can be swapped in tests.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var authTracer = otel.Tracer("service/auth")

const (
	bcryptCost  = 12
	tokenIssuer = "rental-api"
)

// AuthService orchestrates login, registration and token management.
type AuthService struct {
	store      port.UserStore
	wechat     port.WechatAuthenticator
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	devAuth    bool
	logger     *zap.Logger
}

// NewAuthService creates a new auth service. wechat may be nil when the
// mini-program credentials are not configured.
func NewAuthService(store port.UserStore, wechat port.WechatAuthenticator, jwtSecret string, accessTTL, refreshTTL time.Duration, devAuth bool, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:      store,
		wechat:     wechat,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		devAuth:    devAuth,
		logger:     logger,
	}
}

// ============================================================
// Access tokens
// ============================================================

// JWTClaims represents the custom claims in access tokens.
type JWTClaims struct {
	ID   string      `json:"id"`
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// ValidateAccessToken parses and verifies an access token. Used by middleware.
func (s *AuthService) ValidateAccessToken(tokenString string) (*domain.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "Invalid or expired token"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, &domain.ErrUnauthorized{Message: "Invalid token"}
	}

	return &domain.Principal{UserID: claims.ID, Role: claims.Role}, nil
}

func (s *AuthService) signAccessToken(userID string, role domain.Role) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		ID:   userID,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    tokenIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// issueTokens signs an access token and stores a fresh refresh token for u.
func (s *AuthService) issueTokens(ctx context.Context, u *domain.User, public *domain.User) (*domain.AuthResult, error) {
	accessToken, err := s.signAccessToken(u.ID, u.Role)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, refreshHash, err := generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.store.StoreRefreshToken(ctx, u.ID, refreshHash, time.Now().Add(s.refreshTTL)); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &domain.AuthResult{
		Token:        accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.accessTTL.Seconds()),
		User:         public,
	}, nil
}

func generateRefreshToken() (raw string, hashed string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(b)
	hashed = hashToken(raw)
	return raw, hashed, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
