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
// Properties
// ============================================================

func propertyFilter(r *http.Request) (domain.PropertyFilter, error) {
	q := r.URL.Query()
	page, limit := parsePagination(r)
	f := domain.PropertyFilter{
		Page:         page,
		Limit:        limit,
		District:     q.Get("district"),
		PropertyType: q.Get("property_type"),
		LandlordID:   q.Get("landlord_id"),
	}

	var err error
	if f.MinPrice, err = queryFloat(r, "min_price"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = queryFloat(r, "max_price"); err != nil {
		return f, err
	}
	if f.Bedrooms, err = queryInt(r, "bedrooms"); err != nil {
		return f, err
	}
	return f, nil
}

func listPropertiesHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/properties")
		defer span.End()

		f, err := propertyFilter(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		list, err := svc.List(ctx, f)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{
			"total":      list.Total,
			"page":       list.Page,
			"limit":      list.Limit,
			"properties": list.Properties,
		})
	}
}

func getPropertyHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/properties/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("property.id", id))

		p, err := svc.Get(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"property": p})
	}
}

func getPublicPropertyHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/properties/public/{id}")
		defer span.End()

		p, err := svc.GetPublic(ctx, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"property": p})
	}
}

func createPropertyHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/properties")
		defer span.End()

		var in domain.PropertyInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		caller, _ := PrincipalFromContext(ctx)
		p, err := svc.Create(ctx, caller, &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusCreated, envelope{"property": p})
	}
}

func updatePropertyHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /api/properties/{id}")
		defer span.End()

		var in domain.PropertyInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		caller, _ := PrincipalFromContext(ctx)
		p, err := svc.Update(ctx, caller, chi.URLParam(r, "id"), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"property": p})
	}
}

func deletePropertyHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/properties/{id}")
		defer span.End()

		caller, _ := PrincipalFromContext(ctx)
		if err := svc.Delete(ctx, caller, chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"message": "property deleted"})
	}
}

func updatePropertyStatusHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /api/properties/{id}/status")
		defer span.End()

		var in domain.PropertyStatusUpdate
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		caller, _ := PrincipalFromContext(ctx)
		res, err := svc.UpdateStatus(ctx, caller, chi.URLParam(r, "id"), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"message": "property status updated", "property": res})
	}
}

func uploadPropertyImagesHandler(svc *service.PropertyService, maxBytes int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/properties/{id}/images")
		defer span.End()

		files, err := readImages(r, maxBytes, "images")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("files", len(files)))

		caller, _ := PrincipalFromContext(ctx)
		res, err := svc.UploadImages(ctx, caller, chi.URLParam(r, "id"), files)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{
			"message":    "images uploaded",
			"image_urls": res.ImageURLs,
			"property":   res.Property,
		})
	}
}
