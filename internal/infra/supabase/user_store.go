package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/boddenberg/rental-api-go/internal/domain"

	"github.com/google/uuid"
)

// ============================================================
// UserStore implementation: users and refresh tokens via PostgREST
// ============================================================

// userRow mirrors the users table, secrets included.
type userRow struct {
	ID           string      `json:"id"`
	Username     *string     `json:"username"`
	PasswordHash *string     `json:"password_hash"`
	Password     *string     `json:"password"`
	PhoneNumber  *string     `json:"phone_number"`
	Role         domain.Role `json:"role"`
	OpenID       *string     `json:"openid"`
	Nickname     *string     `json:"nickname"`
	AvatarURL    *string     `json:"avatar_url"`
	CreatedAt    *time.Time  `json:"created_at"`
}

func (r *userRow) toDomain() *domain.User {
	return &domain.User{
		ID:             r.ID,
		Username:       deref(r.Username),
		PasswordHash:   deref(r.PasswordHash),
		LegacyPassword: deref(r.Password),
		PhoneNumber:    deref(r.PhoneNumber),
		Role:           r.Role,
		OpenID:         deref(r.OpenID),
		Nickname:       deref(r.Nickname),
		AvatarURL:      deref(r.AvatarURL),
		CreatedAt:      r.CreatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// findUser returns the first users row matching q, or nil.
func (c *Client) findUser(ctx context.Context, q url.Values) (*domain.User, error) {
	q.Set("limit", "1")
	var row *userRow
	err := c.read(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "users?"+q.Encode())
		if err != nil {
			return err
		}
		row, err = decodeFirst[userRow](body)
		if err != nil {
			return fmt.Errorf("decode users: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, wrap("users", err)
	}
	if row == nil {
		return nil, nil
	}
	return row.toDomain(), nil
}

func (c *Client) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserByID")
	defer span.End()

	return c.findUser(ctx, url.Values{"id": {eq(id)}})
}

// GetUserByUsername looks a user up by username, optionally restricted to a role.
func (c *Client) GetUserByUsername(ctx context.Context, username string, role domain.Role) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserByUsername")
	defer span.End()

	q := url.Values{"username": {eq(username)}}
	if role != "" {
		q.Set("role", eq(string(role)))
	}
	return c.findUser(ctx, q)
}

func (c *Client) GetUserByPhone(ctx context.Context, phone string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserByPhone")
	defer span.End()

	return c.findUser(ctx, url.Values{"phone_number": {eq(phone)}})
}

func (c *Client) GetUserByOpenID(ctx context.Context, openID string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserByOpenID")
	defer span.End()

	return c.findUser(ctx, url.Values{"openid": {eq(openID)}})
}

// FirstUserID returns the id of any user row, or "" when the table is empty.
func (c *Client) FirstUserID(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "Supabase.FirstUserID")
	defer span.End()

	u, err := c.findUser(ctx, url.Values{"select": {"id"}})
	if err != nil || u == nil {
		return "", err
	}
	return u.ID, nil
}

func (c *Client) CreateUser(ctx context.Context, u *domain.NewUser) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateUser")
	defer span.End()

	data := map[string]any{
		"id":   uuid.New().String(),
		"role": u.Role,
	}
	optional := map[string]string{
		"username":      u.Username,
		"password_hash": u.PasswordHash,
		"phone_number":  u.PhoneNumber,
		"openid":        u.OpenID,
		"nickname":      u.Nickname,
		"avatar_url":    u.AvatarURL,
	}
	for k, v := range optional {
		if v != "" {
			data[k] = v
		}
	}

	var row *userRow
	err := c.write(ctx, func() error {
		body, err := c.doPost(ctx, "users", data)
		if err != nil {
			return err
		}
		row, err = decodeFirst[userRow](body)
		return err
	})
	if err != nil {
		return nil, wrap("users", err)
	}
	if row == nil {
		return nil, wrap("users", fmt.Errorf("insert returned no row"))
	}
	return row.toDomain(), nil
}

func (c *Client) UpdateUser(ctx context.Context, id string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateUser")
	defer span.End()

	path := "users?" + url.Values{"id": {eq(id)}}.Encode()
	err := c.write(ctx, func() error {
		_, err := c.doPatch(ctx, path, updates)
		return err
	})
	return wrap("users", err)
}

// --- Refresh tokens ---

func (c *Client) StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	ctx, span := tracer.Start(ctx, "Supabase.StoreRefreshToken")
	defer span.End()

	data := map[string]any{
		"id":         uuid.New().String(),
		"user_id":    userID,
		"token_hash": tokenHash,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
		"revoked":    false,
	}

	err := c.write(ctx, func() error {
		_, err := c.doPost(ctx, "auth_refresh_tokens", data)
		return err
	})
	return wrap("auth_refresh_tokens", err)
}

// GetRefreshToken returns the non-revoked token with the given hash, or nil.
func (c *Client) GetRefreshToken(ctx context.Context, tokenHash string) (*domain.AuthRefreshToken, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetRefreshToken")
	defer span.End()

	q := url.Values{
		"token_hash": {eq(tokenHash)},
		"revoked":    {"eq.false"},
		"limit":      {"1"},
	}
	var tok *domain.AuthRefreshToken
	err := c.read(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "auth_refresh_tokens?"+q.Encode())
		if err != nil {
			return err
		}
		tok, err = decodeFirst[domain.AuthRefreshToken](body)
		if err != nil {
			return fmt.Errorf("decode auth_refresh_tokens: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, wrap("auth_refresh_tokens", err)
	}
	return tok, nil
}

// RevokeRefreshToken revokes the token only while it is still live, so of
// two concurrent rotations exactly one sees revoked == true.
func (c *Client) RevokeRefreshToken(ctx context.Context, tokenHash string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.RevokeRefreshToken")
	defer span.End()

	q := url.Values{"token_hash": {eq(tokenHash)}, "revoked": {"eq.false"}}
	var revoked bool
	err := c.write(ctx, func() error {
		body, err := c.doPatch(ctx, "auth_refresh_tokens?"+q.Encode(), map[string]any{"revoked": true})
		if err != nil {
			return err
		}
		row, err := decodeFirst[domain.AuthRefreshToken](body)
		if err != nil {
			return fmt.Errorf("decode auth_refresh_tokens: %w", err)
		}
		revoked = row != nil
		return nil
	})
	if err != nil {
		return false, wrap("auth_refresh_tokens", err)
	}
	return revoked, nil
}

func (c *Client) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.RevokeAllRefreshTokens")
	defer span.End()

	q := url.Values{"user_id": {eq(userID)}, "revoked": {"eq.false"}}
	err := c.write(ctx, func() error {
		_, err := c.doPatch(ctx, "auth_refresh_tokens?"+q.Encode(), map[string]any{"revoked": true})
		return err
	})
	return wrap("auth_refresh_tokens", err)
}
