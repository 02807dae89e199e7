package handler

import (
	"net/http"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Appointments
// ============================================================

func createAppointmentHandler(svc *service.AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/appointments")
		defer span.End()

		var req domain.CreateAppointmentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		var caller *domain.Principal
		if p, ok := PrincipalFromContext(ctx); ok {
			caller = &p
		}

		a, err := svc.Create(ctx, caller, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusCreated, envelope{
			"message":     "appointment created, awaiting landlord confirmation",
			"appointment": a,
		})
	}
}

func listAppointmentsHandler(svc *service.AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/appointments")
		defer span.End()

		caller, _ := PrincipalFromContext(ctx)
		status := domain.AppointmentStatus(r.URL.Query().Get("status"))

		list, err := svc.List(ctx, caller, status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"appointments": list})
	}
}

func getAppointmentHandler(svc *service.AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/appointments/{id}")
		defer span.End()

		caller, _ := PrincipalFromContext(ctx)
		a, err := svc.Get(ctx, caller, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"appointment": a})
	}
}

func updateAppointmentStatusHandler(svc *service.AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /api/appointments/{id}/status")
		defer span.End()

		var in domain.AppointmentStatusUpdate
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		caller, _ := PrincipalFromContext(ctx)
		a, err := svc.UpdateStatus(ctx, caller, chi.URLParam(r, "id"), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"message": "appointment status updated", "appointment": a})
	}
}

// ============================================================
// Inquiries
// ============================================================

func listInquiriesHandler(svc *service.InquiryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/inquiries")
		defer span.End()

		caller, _ := PrincipalFromContext(ctx)
		list, err := svc.List(ctx, caller)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"inquiries": list})
	}
}

func getInquiryHandler(svc *service.InquiryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/inquiries/{id}")
		defer span.End()

		caller, _ := PrincipalFromContext(ctx)
		inq, err := svc.Get(ctx, caller, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"inquiry": inq})
	}
}
