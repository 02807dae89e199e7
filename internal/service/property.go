package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/infra/observability"
	"github.com/boddenberg/rental-api-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var propertyTracer = otel.Tracer("service/property")

const (
	defaultPageSize     = 10
	maxPageSize         = 100
	maxPropertyImages   = 10
	viewIncrementBudget = 5 * time.Second
)

// PropertyService manages rental listings.
type PropertyService struct {
	store    port.PropertyStore
	storage  port.ObjectStorage
	bucket   string
	maxBytes int64

	views        *semaphore.Weighted
	viewCapacity int64

	metrics *observability.Metrics
	logger  *zap.Logger
}

// PropertyServiceConfig tunes a PropertyService.
type PropertyServiceConfig struct {
	ImageBucket      string
	MaxImageBytes    int64
	ViewCountWorkers int
}

// NewPropertyService creates a property service. storage may be nil, in which
// case image uploads answer 503.
func NewPropertyService(store port.PropertyStore, storage port.ObjectStorage, cfg PropertyServiceConfig, metrics *observability.Metrics, logger *zap.Logger) *PropertyService {
	workers := int64(cfg.ViewCountWorkers)
	if workers <= 0 {
		workers = 1
	}
	return &PropertyService{
		store:        store,
		storage:      storage,
		bucket:       cfg.ImageBucket,
		maxBytes:     cfg.MaxImageBytes,
		views:        semaphore.NewWeighted(workers),
		viewCapacity: workers,
		metrics:      metrics,
		logger:       logger,
	}
}

// List returns one page of listings.
func (s *PropertyService) List(ctx context.Context, f domain.PropertyFilter) (_ *domain.PropertyList, err error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.List")
	defer span.End()
	defer track(s.metrics, "property.list", time.Now(), &err)

	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageSize
	}
	f.Limit = min(f.Limit, maxPageSize)

	list, err := s.store.ListProperties(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	list.Page = f.Page
	list.Limit = f.Limit
	return list, nil
}

// Get returns a listing and schedules its view-count increment.
func (s *PropertyService) Get(ctx context.Context, id string) (_ *domain.Property, err error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("property_id", id))
	defer track(s.metrics, "property.get", time.Now(), &err)

	p, err := s.store.GetProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	s.countView(ctx, id)
	return p, nil
}

// GetPublic is Get for ids that must be UUIDs.
func (s *PropertyService) GetPublic(ctx context.Context, id string) (*domain.Property, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, &domain.ErrValidation{Field: "id", Message: "invalid property id"}
	}
	return s.Get(ctx, id)
}

// countView increments view_count in the background. When every worker slot
// is busy the increment is dropped.
func (s *PropertyService) countView(ctx context.Context, id string) {
	if !s.views.TryAcquire(1) {
		s.metrics.IncrPropertyView("dropped")
		s.logger.Warn("view count increment dropped", zap.String("property_id", id))
		return
	}

	go func() {
		defer s.views.Release(1)

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), viewIncrementBudget)
		defer cancel()

		if err := s.store.IncrementViewCount(ctx, id); err != nil {
			s.metrics.IncrPropertyView("error")
			s.logger.Warn("view count increment failed",
				zap.String("property_id", id),
				zap.Error(err),
			)
			return
		}
		s.metrics.IncrPropertyView("ok")
	}()
}

// Drain waits for in-flight view-count increments.
func (s *PropertyService) Drain(ctx context.Context) error {
	if err := s.views.Acquire(ctx, s.viewCapacity); err != nil {
		return err
	}
	s.views.Release(s.viewCapacity)
	return nil
}

// Create stores a new listing for p. It starts unpublished and available.
func (s *PropertyService) Create(ctx context.Context, p domain.Principal, in *domain.PropertyInput) (_ *domain.Property, err error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.Create")
	defer span.End()
	defer track(s.metrics, "property.create", time.Now(), &err)

	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return nil, &domain.ErrValidation{Field: "title", Message: "title is required"}
	}
	if in.PricePerMonth == nil {
		return nil, &domain.ErrValidation{Field: "price_per_month", Message: "price_per_month is required"}
	}
	if *in.PricePerMonth <= 0 {
		return nil, &domain.ErrValidation{Field: "price_per_month", Message: "price_per_month must be greater than 0"}
	}

	fields := in.Fields()
	fields["landlord_id"] = p.UserID
	fields["status"] = domain.PropertyAvailable
	fields["is_published"] = false
	if _, ok := fields["amenities"]; !ok {
		fields["amenities"] = []string{}
	}
	if _, ok := fields["images"]; !ok {
		fields["images"] = []string{}
	}

	created, err := s.store.CreateProperty(ctx, fields)
	if err != nil {
		return nil, fmt.Errorf("create property: %w", err)
	}

	s.logger.Info("property created",
		zap.String("property_id", created.ID),
		zap.String("landlord_id", p.UserID),
	)
	return created, nil
}

// Update applies a partial update to a listing owned by p.
func (s *PropertyService) Update(ctx context.Context, p domain.Principal, id string, in *domain.PropertyInput) (_ *domain.Property, err error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.Update")
	defer span.End()
	defer track(s.metrics, "property.update", time.Now(), &err)

	if _, err := s.owned(ctx, p, id, "update property"); err != nil {
		return nil, err
	}

	fields := in.Fields()
	if len(fields) == 0 {
		return nil, &domain.ErrValidation{Field: "body", Message: "no fields to update"}
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, &domain.ErrValidation{Field: "title", Message: "title cannot be empty"}
	}
	if in.PricePerMonth != nil && *in.PricePerMonth <= 0 {
		return nil, &domain.ErrValidation{Field: "price_per_month", Message: "price_per_month must be greater than 0"}
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: "invalid status"}
	}
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	updated, err := s.store.UpdateProperty(ctx, id, fields)
	if err != nil {
		return nil, fmt.Errorf("update property: %w", err)
	}
	return updated, nil
}

// Delete removes a listing owned by p.
func (s *PropertyService) Delete(ctx context.Context, p domain.Principal, id string) (err error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.Delete")
	defer span.End()
	defer track(s.metrics, "property.delete", time.Now(), &err)

	if _, err := s.owned(ctx, p, id, "delete property"); err != nil {
		return err
	}
	if err := s.store.DeleteProperty(ctx, id); err != nil {
		return fmt.Errorf("delete property: %w", err)
	}

	s.logger.Info("property deleted", zap.String("property_id", id))
	return nil
}

// UpdateStatus toggles publication and/or availability.
func (s *PropertyService) UpdateStatus(ctx context.Context, p domain.Principal, id string, in *domain.PropertyStatusUpdate) (_ *domain.PropertyStatusResult, err error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.UpdateStatus")
	defer span.End()
	defer track(s.metrics, "property.status", time.Now(), &err)

	if in.IsPublished == nil && in.Status == nil {
		return nil, &domain.ErrValidation{Field: "body", Message: "is_published or status is required"}
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: "status must be available, rented or unavailable"}
	}
	if _, err := s.owned(ctx, p, id, "update property status"); err != nil {
		return nil, err
	}

	fields := map[string]any{"updated_at": time.Now().UTC().Format(time.RFC3339)}
	if in.IsPublished != nil {
		fields["is_published"] = *in.IsPublished
	}
	if in.Status != nil {
		fields["status"] = *in.Status
	}

	updated, err := s.store.UpdateProperty(ctx, id, fields)
	if err != nil {
		return nil, fmt.Errorf("update property status: %w", err)
	}
	return &domain.PropertyStatusResult{
		ID:          updated.ID,
		IsPublished: updated.IsPublished,
		Status:      updated.Status,
	}, nil
}

// UploadImages stores listing photos and appends their URLs to the listing.
func (s *PropertyService) UploadImages(ctx context.Context, p domain.Principal, id string, files []domain.ImageUpload) (_ *domain.PropertyImagesResult, err error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.UploadImages")
	defer span.End()
	span.SetAttributes(attribute.Int("files", len(files)))
	defer track(s.metrics, "property.images", time.Now(), &err)

	if s.storage == nil {
		return nil, &domain.ErrUnavailable{Feature: "image storage"}
	}
	if len(files) == 0 {
		return nil, &domain.ErrValidation{Field: "images", Message: "no images uploaded"}
	}
	if len(files) > maxPropertyImages {
		return nil, &domain.ErrValidation{Field: "images", Message: fmt.Sprintf("at most %d images per request", maxPropertyImages)}
	}

	property, err := s.owned(ctx, p, id, "upload property images")
	if err != nil {
		return nil, err
	}

	images := make([]*sniffedImage, 0, len(files))
	for _, f := range files {
		img, err := checkImage(f, s.maxBytes)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	urls := make([]string, 0, len(images))
	for _, img := range images {
		key := fmt.Sprintf("%s/%d-%s", id, time.Now().UnixMilli(), safeName(img.Filename))
		obj, err := s.storage.PutObject(ctx, s.bucket, key, img.ContentType, img.Data)
		if err != nil {
			s.metrics.RecordUpload("image", domain.UploadFailed, 0)
			return nil, fmt.Errorf("store property image: %w", err)
		}
		s.metrics.RecordUpload("image", domain.UploadCompleted, int64(len(img.Data)))
		urls = append(urls, obj.URL)
	}

	all := append(append([]string{}, property.Images...), urls...)
	updated, err := s.store.UpdateProperty(ctx, id, map[string]any{
		"images":     all,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("attach property images: %w", err)
	}

	s.logger.Info("property images uploaded",
		zap.String("property_id", id),
		zap.Int("count", len(urls)),
	)
	return &domain.PropertyImagesResult{ImageURLs: urls, Property: updated}, nil
}

// owned loads a listing and checks that p is its landlord.
func (s *PropertyService) owned(ctx context.Context, p domain.Principal, id, action string) (*domain.Property, error) {
	property, err := s.store.GetProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureOwner(p, property.LandlordID, action); err != nil {
		s.logger.Warn("property: not the owner",
			zap.String("property_id", id),
			zap.String("user_id", p.UserID),
		)
		return nil, err
	}
	return property, nil
}
