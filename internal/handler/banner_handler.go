package handler

import (
	"net/http"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Banners
// ============================================================

func listBannersHandler(svc *service.BannerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/banners")
		defer span.End()

		banners, err := svc.List(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"data": banners})
	}
}

func createBannerHandler(svc *service.BannerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/banners")
		defer span.End()

		var in domain.BannerInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		caller, _ := PrincipalFromContext(ctx)
		b, err := svc.Create(ctx, caller, &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusCreated, envelope{"data": b})
	}
}

// updateBannerHandler serves PUT /{id} and POST /update, which carries the id
// in the body.
func updateBannerHandler(svc *service.BannerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" /api/banners/update")
		defer span.End()

		var in domain.BannerInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		id := chi.URLParam(r, "id")
		if id == "" {
			id = in.ID
		}
		span.SetAttributes(attribute.String("banner.id", id))

		caller, _ := PrincipalFromContext(ctx)
		res, err := svc.Update(ctx, caller, id, &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		msg := "banner updated"
		if !res.Changed {
			msg = "no changes"
		}
		writeOK(w, http.StatusOK, envelope{"message": msg, "data": res.Banner})
	}
}

func deleteBannerHandler(svc *service.BannerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" /api/banners/delete")
		defer span.End()

		id := chi.URLParam(r, "id")
		if id == "" {
			var body struct {
				ID string `json:"id"`
			}
			if err := decodeJSON(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			id = body.ID
		}
		if id == "" {
			writeError(w, http.StatusBadRequest, "banner id is required")
			return
		}

		caller, _ := PrincipalFromContext(ctx)
		if err := svc.Delete(ctx, caller, id); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"message": "banner deleted"})
	}
}

func reorderBannersHandler(svc *service.BannerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/banners/reorder")
		defer span.End()

		var req domain.ReorderRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		caller, _ := PrincipalFromContext(ctx)
		failed, err := svc.Reorder(ctx, caller, req.Order)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if len(failed) > 0 {
			writeJSON(w, http.StatusInternalServerError, envelope{
				"success": false,
				"message": "some banners could not be reordered",
				"errors":  failed,
			})
			return
		}

		writeOK(w, http.StatusOK, envelope{"message": "banners reordered"})
	}
}

// ============================================================
// Homepage & rental guides
// ============================================================

func homepageHandler(svc *service.HomepageService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/homepage")
		defer span.End()

		page, err := svc.Get(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"data": page})
	}
}

func rentalGuidesHandler(svc *service.GuideService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/rental-guides/{type}")
		defer span.End()

		guideType := domain.GuideType(chi.URLParam(r, "type"))
		span.SetAttributes(attribute.String("guide.type", string(guideType)))

		guides, err := svc.List(ctx, guideType)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"data": guides})
	}
}
