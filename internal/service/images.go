package service

import (
	"fmt"
	"path"
	"strings"

	"github.com/boddenberg/rental-api-go/internal/domain"

	"github.com/gabriel-vasile/mimetype"
)

var allowedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// sniffedImage is an upload whose bytes were verified to be an image.
type sniffedImage struct {
	domain.ImageUpload
	ContentType string
	Extension   string
}

// checkImage verifies the declared type and the sniffed content of f.
// maxBytes <= 0 disables the size check.
func checkImage(f domain.ImageUpload, maxBytes int64) (*sniffedImage, error) {
	if len(f.Data) == 0 {
		return nil, &domain.ErrValidation{Field: "file", Message: fmt.Sprintf("%s is empty", f.Filename)}
	}
	if maxBytes > 0 && int64(len(f.Data)) > maxBytes {
		return nil, &domain.ErrValidation{
			Field:   "file",
			Message: fmt.Sprintf("%s exceeds the %d byte limit", f.Filename, maxBytes),
		}
	}
	if f.ContentType != "" && !strings.HasPrefix(f.ContentType, "image/") {
		return nil, &domain.ErrValidation{Field: "file", Message: "only image uploads are allowed"}
	}

	mt := mimetype.Detect(f.Data)
	if !mimetype.EqualsAny(mt.String(), allowedImageTypes...) {
		return nil, &domain.ErrValidation{
			Field:   "file",
			Message: fmt.Sprintf("%s is not a supported image (%s)", f.Filename, mt.String()),
		}
	}

	ext := mt.Extension()
	if ext == "" {
		ext = path.Ext(f.Filename)
	}
	return &sniffedImage{ImageUpload: f, ContentType: mt.String(), Extension: ext}, nil
}

// safeName strips directories and replaces spaces so the name is usable in an object key.
func safeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	return strings.ReplaceAll(name, " ", "_")
}
