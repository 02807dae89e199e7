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
// Uploads
// ============================================================

func uploadImagesHandler(svc *service.UploadService, maxBytes int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/upload/image")
		defer span.End()

		files, err := readImages(r, maxBytes, "file", "image")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if len(files) == 0 {
			writeError(w, http.StatusBadRequest, "no file provided")
			return
		}
		span.SetAttributes(attribute.Int("files", len(files)))

		objs, err := svc.UploadImages(ctx, files)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		urls := make([]string, len(objs))
		for i, o := range objs {
			urls[i] = o.URL
		}
		writeOK(w, http.StatusOK, envelope{
			"message":    "upload successful",
			"url":        urls[0],
			"image":      urls[0],
			"image_url":  urls[0],
			"image_urls": urls,
		})
	}
}

func uploadTestHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /api/upload/test")
		defer span.End()

		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		defer r.MultipartForm.RemoveAll()

		files := []domain.FileInfo{}
		for field, headers := range r.MultipartForm.File {
			for _, fh := range headers {
				files = append(files, domain.FileInfo{
					Name:        fh.Filename,
					Size:        fh.Size,
					ContentType: fh.Header.Get("Content-Type"),
					Field:       field,
				})
			}
		}
		logger.Debug("upload test received", zap.Int("files", len(files)))

		writeOK(w, http.StatusOK, envelope{"message": "files received", "files": files})
	}
}

func uploadMediaHandler(svc *service.UploadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/upload/media")
		defer span.End()

		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		defer r.MultipartForm.RemoveAll()

		headers := r.MultipartForm.File["file"]
		if len(headers) == 0 {
			writeError(w, http.StatusBadRequest, "no file provided")
			return
		}
		fh := headers[0]
		f, err := fh.Open()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		defer f.Close()
		span.SetAttributes(attribute.Int64("size", fh.Size))

		caller, _ := PrincipalFromContext(ctx)
		res, err := svc.UploadMedia(ctx, caller, service.MediaFile{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Source:      f,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusCreated, envelope{"session": res.Session, "url": res.URL})
	}
}

func getUploadSessionHandler(svc *service.UploadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/upload/sessions/{id}")
		defer span.End()

		caller, _ := PrincipalFromContext(ctx)
		sess, err := svc.Session(ctx, caller, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"session": sess})
	}
}

func cancelUploadSessionHandler(svc *service.UploadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/upload/sessions/{id}")
		defer span.End()

		caller, _ := PrincipalFromContext(ctx)
		sess, err := svc.CancelSession(ctx, caller, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeOK(w, http.StatusOK, envelope{"message": "upload cancelled", "session": sess})
	}
}
