package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/infra/observability"
	"github.com/boddenberg/rental-api-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var homepageTracer = otel.Tracer("service/homepage")

const (
	homepageCacheKey  = "homepage"
	hotPropertyLimit  = 6
	homepageTopicSize = 4
)

// HomepageService aggregates the homepage sections.
type HomepageService struct {
	banners    port.BannerStore
	properties port.PropertyStore
	content    port.ContentStore
	cache      port.Cache[*domain.Homepage]
	metrics    *observability.Metrics
	logger     *zap.Logger
}

func NewHomepageService(banners port.BannerStore, properties port.PropertyStore, content port.ContentStore, cache port.Cache[*domain.Homepage], metrics *observability.Metrics, logger *zap.Logger) *HomepageService {
	return &HomepageService{
		banners:    banners,
		properties: properties,
		content:    content,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
	}
}

// Get returns the homepage. Sections are fetched in parallel; a failing
// section is logged and served empty.
func (s *HomepageService) Get(ctx context.Context) (*domain.Homepage, error) {
	ctx, span := homepageTracer.Start(ctx, "HomepageService.Get")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("homepage.get", time.Since(start)) }()

	if cached, ok := s.cache.Get(homepageCacheKey); ok {
		s.metrics.IncrCacheHit(homepageCacheKey)
		return cached, nil
	}
	s.metrics.IncrCacheMiss(homepageCacheKey)

	page := &domain.Homepage{
		Banners:       []domain.HomepageBanner{},
		HotProperties: []domain.HotProperty{},
		Topics:        []domain.HomepageTopic{},
	}
	var failed atomic.Bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.banners.ListBanners(gctx, bannerListLimit)
		if err != nil {
			s.sectionFailed("banners", err, &failed)
			return nil
		}
		for _, b := range rows {
			page.Banners = append(page.Banners, domain.HomepageBanner{Image: b.Image, Title: b.Title, Link: b.Link})
		}
		return nil
	})
	g.Go(func() error {
		rows, err := s.properties.ListHotProperties(gctx, hotPropertyLimit)
		if err != nil {
			s.sectionFailed("hotProperties", err, &failed)
			return nil
		}
		for _, p := range rows {
			page.HotProperties = append(page.HotProperties, toHotProperty(p))
		}
		return nil
	})
	g.Go(func() error {
		rows, err := s.content.ListTopics(gctx, homepageTopicSize)
		if err != nil {
			s.sectionFailed("topics", err, &failed)
			return nil
		}
		for _, t := range rows {
			page.Topics = append(page.Topics, domain.HomepageTopic{
				Title:  t.Title,
				Author: t.Author,
				Likes:  t.Likes,
				Image:  t.CoverImage,
			})
		}
		return nil
	})
	_ = g.Wait()

	// a degraded page is not cached so the next request retries
	if !failed.Load() {
		s.cache.Set(homepageCacheKey, page)
	}
	return page, nil
}

func (s *HomepageService) sectionFailed(section string, err error, failed *atomic.Bool) {
	failed.Store(true)
	countExternal(s.metrics, err)
	s.logger.Warn("homepage section failed",
		zap.String("section", section),
		zap.Error(err),
	)
}

func toHotProperty(p domain.Property) domain.HotProperty {
	hp := domain.HotProperty{
		ID:       p.ID,
		Name:     p.Title,
		Location: p.District,
		Price:    p.PricePerMonth,
		Tag:      p.Tag,
	}
	if len(p.Images) > 0 {
		hp.Image = p.Images[0]
	}
	if hp.Tag == "" {
		hp.Tag = domain.DefaultHotTag
	}
	return hp
}
