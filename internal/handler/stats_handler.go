package handler

import (
	"net/http"

	"github.com/boddenberg/rental-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Landlord statistics
// ============================================================

func statsOverviewHandler(svc *service.StatsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/stats/overview")
		defer span.End()

		caller, _ := PrincipalFromContext(ctx)
		stats, err := svc.Overview(ctx, caller)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"data": stats})
	}
}

func propertyStatsHandler(svc *service.StatsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/stats/properties/{id}")
		defer span.End()

		caller, _ := PrincipalFromContext(ctx)
		stats, err := svc.Property(ctx, caller, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"data": stats})
	}
}
