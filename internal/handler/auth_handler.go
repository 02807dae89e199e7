package handler

import (
	"net/http"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Auth
// ============================================================

func authBody(res *domain.AuthResult) envelope {
	body := envelope{"user": res.User}
	if res.Token != "" {
		body["token"] = res.Token
		body["refresh_token"] = res.RefreshToken
		body["expires_in"] = res.ExpiresIn
	}
	return body
}

func passwordLoginHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auth/login/password")
		defer span.End()

		var req domain.PasswordLoginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := authSvc.PasswordLogin(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, authBody(res))
	}
}

func wechatLoginHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auth/login/wechat")
		defer span.End()

		var req domain.WechatLoginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := authSvc.WechatLogin(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, authBody(res))
	}
}

func registerLandlordHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auth/register/landlord")
		defer span.End()

		var req domain.LandlordRegisterRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := authSvc.RegisterLandlord(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusCreated, envelope{"message": "registration successful", "user": res.User})
	}
}

func registerHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auth/register")
		defer span.End()

		var req domain.RegisterRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := authSvc.Register(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		body := authBody(res)
		body["message"] = "registration successful"
		writeOK(w, http.StatusCreated, body)
	}
}

func refreshHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auth/refresh")
		defer span.End()

		var req domain.RefreshRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := authSvc.Refresh(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, authBody(res))
	}
}

func logoutHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auth/logout")
		defer span.End()

		p, _ := PrincipalFromContext(ctx)
		if err := authSvc.Logout(ctx, p.UserID); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"message": "logged out"})
	}
}

func meHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/auth/me")
		defer span.End()

		p, _ := PrincipalFromContext(ctx)
		user, err := authSvc.Me(ctx, p.UserID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"user": user})
	}
}

func testDBHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/auth/test-db")
		defer span.End()

		if err := authSvc.TestDB(ctx); err != nil {
			logger.Error("database probe failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "database connection failed: "+err.Error())
			return
		}

		writeOK(w, http.StatusOK, envelope{"message": "database connection ok"})
	}
}
