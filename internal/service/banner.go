package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/infra/observability"
	"github.com/boddenberg/rental-api-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var bannerTracer = otel.Tracer("service/banner")

const (
	bannerListLimit  = 100
	reorderParallels = 8
)

// BannerService manages the homepage carousel.
type BannerService struct {
	store   port.BannerStore
	cache   port.Cache[*domain.Homepage]
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewBannerService creates a banner service. Writes drop the cached homepage.
func NewBannerService(store port.BannerStore, homepageCache port.Cache[*domain.Homepage], metrics *observability.Metrics, logger *zap.Logger) *BannerService {
	return &BannerService{store: store, cache: homepageCache, metrics: metrics, logger: logger}
}

func canManageBanners(p domain.Principal) error {
	if !p.Is(domain.RoleAdmin, domain.RoleLandlord) {
		return &domain.ErrForbidden{Action: "manage banners"}
	}
	return nil
}

func (s *BannerService) invalidate() {
	if s.cache != nil {
		s.cache.Delete(homepageCacheKey)
	}
}

// List returns banners by display order.
func (s *BannerService) List(ctx context.Context) (_ []domain.Banner, err error) {
	ctx, span := bannerTracer.Start(ctx, "BannerService.List")
	defer span.End()
	defer track(s.metrics, "banner.list", time.Now(), &err)

	return s.store.ListBanners(ctx, bannerListLimit)
}

// Create appends a banner after the current last one.
func (s *BannerService) Create(ctx context.Context, p domain.Principal, in *domain.BannerInput) (_ *domain.Banner, err error) {
	ctx, span := bannerTracer.Start(ctx, "BannerService.Create")
	defer span.End()
	defer track(s.metrics, "banner.create", time.Now(), &err)

	if err := canManageBanners(p); err != nil {
		return nil, err
	}
	title, image := strings.TrimSpace(in.Title), in.ResolvedImage()
	if title == "" || image == "" {
		return nil, &domain.ErrValidation{Field: "body", Message: "title and image are required"}
	}

	maxOrder, err := s.store.MaxBannerOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("read banner order: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	created, err := s.store.CreateBanner(ctx, map[string]any{
		"title":      title,
		"image":      image,
		"link":       normalizeLink(in.Link),
		"order":      maxOrder + 1,
		"created_by": p.UserID,
		"created_at": now,
		"updated_at": now,
	})
	if err != nil {
		return nil, fmt.Errorf("create banner: %w", err)
	}
	s.invalidate()

	s.logger.Info("banner created",
		zap.String("banner_id", created.ID),
		zap.Int("order", created.Order),
	)
	return created, nil
}

// Update replaces title, image and link. An identical payload is a no-op.
func (s *BannerService) Update(ctx context.Context, p domain.Principal, id string, in *domain.BannerInput) (_ *domain.BannerUpdateResult, err error) {
	ctx, span := bannerTracer.Start(ctx, "BannerService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("banner_id", id))
	defer track(s.metrics, "banner.update", time.Now(), &err)

	if err := canManageBanners(p); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, &domain.ErrValidation{Field: "id", Message: "banner id is required"}
	}
	title, image := strings.TrimSpace(in.Title), in.ResolvedImage()
	if title == "" || image == "" {
		return nil, &domain.ErrValidation{Field: "body", Message: "title and image are required"}
	}

	current, err := s.store.GetBanner(ctx, id)
	if err != nil {
		return nil, err
	}

	link := normalizeLink(in.Link)
	if current.Title == title && current.Image == image && linkEqual(current.Link, link) {
		return &domain.BannerUpdateResult{Banner: current, Changed: false}, nil
	}

	if err := s.store.UpdateBanner(ctx, id, map[string]any{
		"title":      title,
		"image":      image,
		"link":       link,
		"updated_by": p.UserID,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return nil, fmt.Errorf("update banner: %w", err)
	}
	s.invalidate()

	updated, err := s.store.GetBanner(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload banner: %w", err)
	}
	return &domain.BannerUpdateResult{Banner: updated, Changed: true}, nil
}

// Delete removes a banner.
func (s *BannerService) Delete(ctx context.Context, p domain.Principal, id string) (err error) {
	ctx, span := bannerTracer.Start(ctx, "BannerService.Delete")
	defer span.End()
	defer track(s.metrics, "banner.delete", time.Now(), &err)

	if err := canManageBanners(p); err != nil {
		return err
	}
	if id == "" {
		return &domain.ErrValidation{Field: "id", Message: "banner id is required"}
	}
	if _, err := s.store.GetBanner(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteBanner(ctx, id); err != nil {
		return fmt.Errorf("delete banner: %w", err)
	}
	s.invalidate()

	s.logger.Info("banner deleted", zap.String("banner_id", id))
	return nil
}

// Reorder sets order=index+1 for every id. Updates run concurrently and
// every failure is reported; one failed id does not stop the others.
func (s *BannerService) Reorder(ctx context.Context, p domain.Principal, ids []string) (_ []domain.ReorderError, err error) {
	ctx, span := bannerTracer.Start(ctx, "BannerService.Reorder")
	defer span.End()
	span.SetAttributes(attribute.Int("banners", len(ids)))
	defer track(s.metrics, "banner.reorder", time.Now(), &err)

	if err := canManageBanners(p); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, &domain.ErrValidation{Field: "order", Message: "order must be a non-empty array of banner ids"}
	}

	var (
		mu     sync.Mutex
		failed []domain.ReorderError
		g      errgroup.Group
	)
	g.SetLimit(reorderParallels)
	now := time.Now().UTC().Format(time.RFC3339)

	for i, id := range ids {
		g.Go(func() error {
			err := s.store.UpdateBanner(ctx, id, map[string]any{
				"order":      i + 1,
				"updated_by": p.UserID,
				"updated_at": now,
			})
			if err != nil {
				mu.Lock()
				failed = append(failed, domain.ReorderError{ID: id, Error: err.Error()})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	s.invalidate()

	if len(failed) > 0 {
		s.logger.Error("banner reorder partially failed",
			zap.Int("failed", len(failed)),
			zap.Int("total", len(ids)),
		)
	}
	return failed, nil
}

func normalizeLink(link *string) *string {
	if link == nil || strings.TrimSpace(*link) == "" {
		return nil
	}
	l := strings.TrimSpace(*link)
	return &l
}

func linkEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
