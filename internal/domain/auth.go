package domain

import "time"

// ============================================================
// Users & roles
// ============================================================

// Role is the authorization role carried in access tokens.
type Role string

const (
	RoleTenant   Role = "tenant"
	RoleLandlord Role = "landlord"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleTenant, RoleLandlord, RoleAdmin:
		return true
	}
	return false
}

// User is a row of the users table. Secrets never serialize.
type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username,omitempty"`
	PasswordHash   string     `json:"-"`
	LegacyPassword string     `json:"-"`
	PhoneNumber    string     `json:"phone_number,omitempty"`
	Role           Role       `json:"role"`
	OpenID         string     `json:"-"`
	Nickname       string     `json:"nickname,omitempty"`
	AvatarURL      string     `json:"avatar_url,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}

// NewUser holds the columns written when a user is created.
type NewUser struct {
	Username     string
	PasswordHash string
	PhoneNumber  string
	Role         Role
	OpenID       string
	Nickname     string
	AvatarURL    string
}

// Principal is the authenticated caller extracted from an access token.
type Principal struct {
	UserID string
	Role   Role
}

// Is reports whether the principal has one of the given roles.
func (p Principal) Is(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// ============================================================
// Auth: Request / Response types (mini-program API contract)
// ============================================================

// PasswordLoginRequest is the body for POST /api/auth/login/password.
type PasswordLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LandlordRegisterRequest is the body for POST /api/auth/register/landlord.
type LandlordRegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

// WechatLoginRequest is the body for POST /api/auth/login/wechat.
type WechatLoginRequest struct {
	Code string `json:"code"`
}

// RegisterRequest is the body for POST /api/auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// RefreshRequest is the body for POST /api/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AuthResult is returned by every login/registration flow.
type AuthResult struct {
	Token        string `json:"token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	User         *User  `json:"user"`
}

// AuthRefreshToken is a stored (hashed) refresh token.
type AuthRefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"token_hash"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

// WechatSession is the result of a jscode2session exchange.
type WechatSession struct {
	OpenID     string `json:"openid"`
	SessionKey string `json:"session_key"`
	UnionID    string `json:"unionid,omitempty"`
}
