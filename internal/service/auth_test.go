package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/service"

	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

func newAuth(store *memStore, wechat *fakeWechat, devAuth bool) *service.AuthService {
	if wechat == nil {
		return service.NewAuthService(store, nil, testSecret, time.Hour, 24*time.Hour, devAuth, nop)
	}
	return service.NewAuthService(store, wechat, testSecret, time.Hour, 24*time.Hour, devAuth, nop)
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(h)
}

func TestPasswordLogin_Success(t *testing.T) {
	store := newMemStore()
	store.addUser(domain.User{ID: "u-1", Username: "alice", PasswordHash: hashed(t, "pw"), Role: domain.RoleLandlord})
	svc := newAuth(store, nil, false)

	res, err := svc.PasswordLogin(context.Background(), &domain.PasswordLoginRequest{Username: " alice ", Password: "pw"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Token == "" || res.RefreshToken == "" {
		t.Fatal("expected access and refresh tokens")
	}
	if res.ExpiresIn != 3600 {
		t.Errorf("expected expires_in 3600, got %d", res.ExpiresIn)
	}
	if res.User.ID != "u-1" {
		t.Errorf("expected user u-1, got %s", res.User.ID)
	}

	p, err := svc.ValidateAccessToken(res.Token)
	if err != nil {
		t.Fatalf("token should validate: %v", err)
	}
	if p.UserID != "u-1" || p.Role != domain.RoleLandlord {
		t.Errorf("unexpected principal %+v", p)
	}
	if n := store.activeRefreshTokens("u-1"); n != 1 {
		t.Errorf("expected 1 stored refresh token, got %d", n)
	}
}

func TestPasswordLogin_UpgradesLegacyPassword(t *testing.T) {
	store := newMemStore()
	store.addUser(domain.User{ID: "u-1", Username: "alice", LegacyPassword: "plain", Role: domain.RoleLandlord})
	svc := newAuth(store, nil, false)

	if _, err := svc.PasswordLogin(context.Background(), &domain.PasswordLoginRequest{Username: "alice", Password: "plain"}); err != nil {
		t.Fatalf("expected legacy login to succeed, got %v", err)
	}

	u := store.user("u-1")
	if u.LegacyPassword != "" {
		t.Error("expected plaintext password to be cleared")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("plain")) != nil {
		t.Error("expected a bcrypt hash of the legacy password")
	}
	if v, ok := store.lastUserUpdate["password"]; !ok || v != nil {
		t.Errorf("expected password column to be nulled, got %v", store.lastUserUpdate)
	}
}

func TestPasswordLogin_Rejections(t *testing.T) {
	store := newMemStore()
	store.addUser(domain.User{ID: "u-1", Username: "alice", PasswordHash: hashed(t, "pw"), Role: domain.RoleLandlord})
	store.addUser(domain.User{ID: "u-2", Username: "bob", PasswordHash: hashed(t, "pw"), Role: domain.RoleTenant})
	store.addUser(domain.User{ID: "u-3", Username: "carol", Role: domain.RoleLandlord})
	svc := newAuth(store, nil, false)

	tests := []struct {
		name     string
		req      domain.PasswordLoginRequest
		wantAuth bool
	}{
		{"wrong password", domain.PasswordLoginRequest{Username: "alice", Password: "nope"}, true},
		{"unknown user", domain.PasswordLoginRequest{Username: "dave", Password: "pw"}, true},
		{"tenant account", domain.PasswordLoginRequest{Username: "bob", Password: "pw"}, true},
		{"no stored password", domain.PasswordLoginRequest{Username: "carol", Password: "pw"}, true},
		{"missing password", domain.PasswordLoginRequest{Username: "alice"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PasswordLogin(context.Background(), &tt.req)
			if tt.wantAuth {
				var ue *domain.ErrUnauthorized
				if !errors.As(err, &ue) {
					t.Fatalf("expected ErrUnauthorized, got %v", err)
				}
				return
			}
			var ve *domain.ErrValidation
			if !errors.As(err, &ve) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestRegisterLandlord(t *testing.T) {
	store := newMemStore()
	store.addUser(domain.User{ID: "u-1", Username: "taken", PhoneNumber: "111", Role: domain.RoleTenant})
	svc := newAuth(store, nil, false)
	ctx := context.Background()

	_, err := svc.RegisterLandlord(ctx, &domain.LandlordRegisterRequest{Username: "taken", Password: "pw", Phone: "222"})
	var ce *domain.ErrConflict
	if !errors.As(err, &ce) || ce.Message != "Username already exists" {
		t.Fatalf("expected username conflict, got %v", err)
	}

	_, err = svc.RegisterLandlord(ctx, &domain.LandlordRegisterRequest{Username: "new", Password: "pw", Phone: "111"})
	if !errors.As(err, &ce) || ce.Message != "Phone number already registered" {
		t.Fatalf("expected phone conflict, got %v", err)
	}

	res, err := svc.RegisterLandlord(ctx, &domain.LandlordRegisterRequest{Username: "new", Password: "pw", Phone: "333"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Token != "" {
		t.Error("landlord registration must not issue tokens")
	}
	if res.User.Role != domain.RoleLandlord || res.User.PhoneNumber != "333" {
		t.Errorf("unexpected user %+v", res.User)
	}
	if stored := store.user(res.User.ID); stored.PasswordHash == "" || stored.PasswordHash == "pw" {
		t.Error("expected a hashed password to be stored")
	}
}

func TestRegister_DefaultsToTenant(t *testing.T) {
	store := newMemStore()
	svc := newAuth(store, nil, false)

	res, err := svc.Register(context.Background(), &domain.RegisterRequest{Username: "amy", Password: "pw"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.User.Role != domain.RoleTenant {
		t.Errorf("expected tenant, got %s", res.User.Role)
	}
	if res.User.Nickname != "租客amy" {
		t.Errorf("unexpected nickname %q", res.User.Nickname)
	}
	if res.Token == "" {
		t.Error("expected a token")
	}

	_, err = svc.Register(context.Background(), &domain.RegisterRequest{Username: "root", Password: "pw", Role: domain.RoleAdmin})
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) {
		t.Fatalf("expected admin self-registration to be rejected, got %v", err)
	}
}

func TestRegister_PasswordTooLong(t *testing.T) {
	store := newMemStore()
	svc := newAuth(store, nil, false)
	ctx := context.Background()
	long := strings.Repeat("x", 73)

	_, err := svc.Register(ctx, &domain.RegisterRequest{Username: "amy", Password: long})
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) || ve.Field != "password" {
		t.Fatalf("expected password validation error, got %v", err)
	}

	_, err = svc.RegisterLandlord(ctx, &domain.LandlordRegisterRequest{Username: "lord", Password: long, Phone: "333"})
	if !errors.As(err, &ve) || ve.Field != "password" {
		t.Fatalf("expected password validation error, got %v", err)
	}
	if n := store.callCount("CreateUser"); n != 0 {
		t.Errorf("expected no user to be created, got %d", n)
	}

	if _, err := svc.Register(ctx, &domain.RegisterRequest{Username: "amy", Password: strings.Repeat("x", 72)}); err != nil {
		t.Fatalf("expected a 72-byte password to be accepted, got %v", err)
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	store := newMemStore()
	store.addUser(domain.User{ID: "u-1", Username: "alice", PasswordHash: hashed(t, "pw"), Role: domain.RoleLandlord})
	svc := newAuth(store, nil, false)
	ctx := context.Background()

	login, err := svc.PasswordLogin(ctx, &domain.PasswordLoginRequest{Username: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	refreshed, err := svc.Refresh(ctx, &domain.RefreshRequest{RefreshToken: login.RefreshToken})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Error("expected a new refresh token")
	}

	_, err = svc.Refresh(ctx, &domain.RefreshRequest{RefreshToken: login.RefreshToken})
	var ue *domain.ErrUnauthorized
	if !errors.As(err, &ue) {
		t.Fatalf("reusing a rotated token should fail, got %v", err)
	}
}

func TestRefresh_ConcurrentReuseIsRejected(t *testing.T) {
	store := newMemStore()
	store.addUser(domain.User{ID: "u-1", Username: "alice", PasswordHash: hashed(t, "pw"), Role: domain.RoleLandlord})
	svc := newAuth(store, nil, false)
	ctx := context.Background()

	login, err := svc.PasswordLogin(ctx, &domain.PasswordLoginRequest{Username: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	store.staleRefreshReads = true

	if _, err := svc.Refresh(ctx, &domain.RefreshRequest{RefreshToken: login.RefreshToken}); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	before := store.callCount("StoreRefreshToken")

	_, err = svc.Refresh(ctx, &domain.RefreshRequest{RefreshToken: login.RefreshToken})
	var ue *domain.ErrUnauthorized
	if !errors.As(err, &ue) {
		t.Fatalf("second use of the same token should fail, got %v", err)
	}
	if n := store.callCount("StoreRefreshToken"); n != before {
		t.Errorf("no new token may be issued, got %d stores", n-before)
	}
}

func TestRefresh_RevokeFailure(t *testing.T) {
	store := newMemStore()
	store.addUser(domain.User{ID: "u-1", Username: "alice", PasswordHash: hashed(t, "pw"), Role: domain.RoleLandlord})
	svc := newAuth(store, nil, false)
	ctx := context.Background()

	login, err := svc.PasswordLogin(ctx, &domain.PasswordLoginRequest{Username: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	store.fail("RevokeRefreshToken", errBoom)

	res, err := svc.Refresh(ctx, &domain.RefreshRequest{RefreshToken: login.RefreshToken})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected revoke error, got %v", err)
	}
	if res != nil {
		t.Error("no token pair may be issued when the old token cannot be revoked")
	}
}

func TestRefresh_ExpiredToken(t *testing.T) {
	store := newMemStore()
	store.addUser(domain.User{ID: "u-1", Username: "alice", PasswordHash: hashed(t, "pw"), Role: domain.RoleLandlord})
	svc := service.NewAuthService(store, nil, testSecret, time.Hour, -time.Minute, false, nop)
	ctx := context.Background()

	login, err := svc.PasswordLogin(ctx, &domain.PasswordLoginRequest{Username: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	_, err = svc.Refresh(ctx, &domain.RefreshRequest{RefreshToken: login.RefreshToken})
	var ue *domain.ErrUnauthorized
	if !errors.As(err, &ue) || ue.Message != "Refresh token expired" {
		t.Fatalf("expected expired error, got %v", err)
	}
	if n := store.activeRefreshTokens("u-1"); n != 0 {
		t.Errorf("expired token should be revoked, %d still active", n)
	}
}

func TestLogout_RevokesAllTokens(t *testing.T) {
	store := newMemStore()
	store.addUser(domain.User{ID: "u-1", Username: "alice", PasswordHash: hashed(t, "pw"), Role: domain.RoleLandlord})
	svc := newAuth(store, nil, false)
	ctx := context.Background()

	for range 2 {
		if _, err := svc.PasswordLogin(ctx, &domain.PasswordLoginRequest{Username: "alice", Password: "pw"}); err != nil {
			t.Fatalf("login: %v", err)
		}
	}
	if err := svc.Logout(ctx, "u-1"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if n := store.activeRefreshTokens("u-1"); n != 0 {
		t.Errorf("expected no active tokens, got %d", n)
	}
}

func TestWechatLogin_UsesClient(t *testing.T) {
	store := newMemStore()
	wx := &fakeWechat{openID: "o-123"}
	svc := newAuth(store, wx, false)
	ctx := context.Background()

	first, err := svc.WechatLogin(ctx, &domain.WechatLoginRequest{Code: "c1"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if first.User.Role != domain.RoleTenant || first.User.Nickname != "微信用户" {
		t.Errorf("unexpected user %+v", first.User)
	}
	if first.User.Username != "" || first.User.PhoneNumber != "" {
		t.Error("wechat response should only carry the public profile")
	}

	second, err := svc.WechatLogin(ctx, &domain.WechatLoginRequest{Code: "c2"})
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if second.User.ID != first.User.ID {
		t.Error("same openid must map to the same user")
	}
	if len(wx.codes) != 2 {
		t.Errorf("expected 2 code exchanges, got %d", len(wx.codes))
	}
}

func TestWechatLogin_DevFallback(t *testing.T) {
	store := newMemStore()
	svc := newAuth(store, nil, true)

	res, err := svc.WechatLogin(context.Background(), &domain.WechatLoginRequest{Code: "abc"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if u := store.user(res.User.ID); !strings.HasPrefix(u.OpenID, "dev_") {
		t.Errorf("expected a dev openid, got %q", u.OpenID)
	}
}

func TestWechatLogin_Unconfigured(t *testing.T) {
	svc := newAuth(newMemStore(), nil, false)

	_, err := svc.WechatLogin(context.Background(), &domain.WechatLoginRequest{Code: "abc"})
	var ue *domain.ErrUnavailable
	if !errors.As(err, &ue) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestValidateAccessToken_ForeignSecret(t *testing.T) {
	store := newMemStore()
	store.addUser(domain.User{ID: "u-1", Username: "alice", PasswordHash: hashed(t, "pw"), Role: domain.RoleLandlord})
	other := service.NewAuthService(store, nil, "other-secret", time.Hour, time.Hour, false, nop)

	res, err := other.PasswordLogin(context.Background(), &domain.PasswordLoginRequest{Username: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	_, err = newAuth(store, nil, false).ValidateAccessToken(res.Token)
	var ue *domain.ErrUnauthorized
	if !errors.As(err, &ue) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestMeAndTestDB(t *testing.T) {
	store := newMemStore()
	store.addUser(domain.User{ID: "u-1", Username: "alice", Role: domain.RoleTenant})
	svc := newAuth(store, nil, false)
	ctx := context.Background()

	u, err := svc.Me(ctx, "u-1")
	if err != nil || u.Username != "alice" {
		t.Fatalf("unexpected me result %+v, %v", u, err)
	}

	_, err = svc.Me(ctx, "missing")
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := svc.TestDB(ctx); err != nil {
		t.Fatalf("expected healthy db, got %v", err)
	}
	store.fail("Ping", errBoom)
	if err := svc.TestDB(ctx); !errors.Is(err, errBoom) {
		t.Fatalf("expected ping error, got %v", err)
	}
}
