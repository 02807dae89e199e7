package handler

import (
	"net/http"
	"path"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Tenant dashboard
// ============================================================

// tenantID prefers the token's user and falls back to ?userId=.
func tenantID(r *http.Request) string {
	if p, ok := PrincipalFromContext(r.Context()); ok {
		return p.UserID
	}
	return r.URL.Query().Get("userId")
}

// tenantRead wraps the dashboard reads, which share their shape.
func tenantRead[T any](op string, fetch func(r *http.Request, tenantID string) (T, error), logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), op)
		defer span.End()

		id := tenantID(r)
		if id == "" {
			writeError(w, http.StatusUnauthorized, "user id is required")
			return
		}

		data, err := fetch(r.WithContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"data": data})
	}
}

func currentRentalHandler(svc *service.TenantService, logger *zap.Logger) http.HandlerFunc {
	return tenantRead("GET /api/tenant/rental/current", func(r *http.Request, id string) (*domain.Rental, error) {
		return svc.CurrentRental(r.Context(), id)
	}, logger)
}

func billsSummaryHandler(svc *service.TenantService, logger *zap.Logger) http.HandlerFunc {
	return tenantRead("GET /api/tenant/bills/summary", func(r *http.Request, id string) (*domain.BillsSummary, error) {
		return svc.BillsSummary(r.Context(), id)
	}, logger)
}

func recentMaintenanceHandler(svc *service.TenantService, logger *zap.Logger) http.HandlerFunc {
	return tenantRead("GET /api/tenant/maintenance/recent", func(r *http.Request, id string) ([]domain.MaintenanceRequest, error) {
		return svc.RecentMaintenance(r.Context(), id)
	}, logger)
}

func recentAnnouncementsHandler(svc *service.TenantService, logger *zap.Logger) http.HandlerFunc {
	return tenantRead("GET /api/tenant/announcements/recent", func(r *http.Request, id string) ([]domain.Announcement, error) {
		return svc.RecentAnnouncements(r.Context(), id)
	}, logger)
}

func tenantUploadImageHandler(svc *service.TenantService, maxBytes int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/tenant/upload-image")
		defer span.End()

		files, err := readImages(r, maxBytes, "image")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if len(files) == 0 {
			writeError(w, http.StatusBadRequest, "no image provided")
			return
		}
		folder := r.FormValue("type")

		obj, err := svc.UploadImage(ctx, folder, files[0])
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if folder == "" {
			folder = "general"
		}
		writeOK(w, http.StatusOK, envelope{
			"message":  "image uploaded",
			"imageUrl": obj.URL,
			"data": map[string]string{
				"url":      obj.URL,
				"fileName": path.Base(obj.Key),
				"path":     obj.Key,
				"type":     folder,
			},
		})
	}
}

func submitInquiryHandler(svc *service.TenantService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/tenant/inquiry/submit")
		defer span.End()

		var req struct {
			domain.SubmitInquiryRequest
			UserID string `json:"userId"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		callerID := tenantID(r)
		if callerID == "" {
			callerID = req.UserID
		}

		inq, err := svc.SubmitInquiry(ctx, callerID, &req.SubmitInquiryRequest)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusCreated, envelope{
			"message":    "inquiry submitted",
			"inquiry_id": inq.ID,
			"inquiry":    inq,
		})
	}
}
