package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/infra/cache"
	"github.com/boddenberg/rental-api-go/internal/service"
)

func seedHomepage(store *memStore) {
	seedBanners(store)
	store.addProperty(domain.Property{
		ID: "p-hot", Title: "Hot flat", District: "Nanshan", PricePerMonth: 5000,
		Status: domain.PropertyAvailable, IsPublished: true, ViewCount: 99,
		Images: []string{"https://cdn.test/hot.png", "https://cdn.test/hot2.png"},
	})
	store.addProperty(domain.Property{
		ID: "p-tagged", Title: "Tagged", Status: domain.PropertyAvailable, IsPublished: true, ViewCount: 10, Tag: "新上",
	})
	store.addProperty(domain.Property{ID: "p-draft", Title: "Draft", Status: domain.PropertyAvailable})
	store.topics = []domain.Topic{
		{ID: "t-1", Title: "Moving checklist", Author: "editor", Likes: 12, CoverImage: "https://cdn.test/t1.png"},
	}
}

func TestHomepageGet_BuildsAndCaches(t *testing.T) {
	store := newMemStore()
	seedHomepage(store)
	metrics := newMetrics()
	svc := service.NewHomepageService(store, store, store, cache.New[*domain.Homepage](time.Minute), metrics, nop)
	ctx := context.Background()

	page, err := svc.Get(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(page.Banners) != 2 || page.Banners[0].Title != "Spring" {
		t.Errorf("unexpected banners %+v", page.Banners)
	}
	if len(page.HotProperties) != 2 {
		t.Fatalf("expected 2 hot properties, got %+v", page.HotProperties)
	}
	hot := page.HotProperties[0]
	if hot.ID != "p-hot" || hot.Name != "Hot flat" || hot.Location != "Nanshan" || hot.Price != 5000 {
		t.Errorf("unexpected hot property %+v", hot)
	}
	if hot.Image != "https://cdn.test/hot.png" || hot.Tag != domain.DefaultHotTag {
		t.Errorf("expected first image and default tag, got %+v", hot)
	}
	if page.HotProperties[1].Tag != "新上" {
		t.Errorf("stored tag should win, got %q", page.HotProperties[1].Tag)
	}
	if len(page.Topics) != 1 || page.Topics[0].Image != "https://cdn.test/t1.png" {
		t.Errorf("unexpected topics %+v", page.Topics)
	}

	if _, err := svc.Get(ctx); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if n := store.callCount("ListBanners"); n != 1 {
		t.Errorf("second request should be served from cache, got %d banner reads", n)
	}
	if rate := metrics.Snapshot().CacheHitRate; rate != 0.5 {
		t.Errorf("expected hit rate 0.5, got %v", rate)
	}
}

func TestHomepageGet_DegradedSectionIsNotCached(t *testing.T) {
	store := newMemStore()
	seedHomepage(store)
	store.fail("ListTopics", &domain.ErrExternalService{Service: "supabase/topics", Err: errBoom})
	metrics := newMetrics()
	svc := service.NewHomepageService(store, store, store, cache.New[*domain.Homepage](time.Minute), metrics, nop)
	ctx := context.Background()

	page, err := svc.Get(ctx)
	if err != nil {
		t.Fatalf("a failed section must not fail the page, got %v", err)
	}
	if page.Topics == nil || len(page.Topics) != 0 {
		t.Errorf("failed section should be an empty array, got %v", page.Topics)
	}
	if len(page.Banners) != 2 {
		t.Errorf("healthy sections should still be served, got %d banners", len(page.Banners))
	}
	if got := metrics.Snapshot().ExternalErrors; got != 1 {
		t.Errorf("expected 1 external error, got %v", got)
	}

	store.fail("ListTopics", nil)
	page, err = svc.Get(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(page.Topics) != 1 {
		t.Errorf("degraded page should not be cached, got %d topics", len(page.Topics))
	}
}

func TestHomepageGet_BannerWriteInvalidates(t *testing.T) {
	store := newMemStore()
	seedHomepage(store)
	c := cache.New[*domain.Homepage](time.Minute)
	metrics := newMetrics()
	home := service.NewHomepageService(store, store, store, c, metrics, nop)
	banners := service.NewBannerService(store, c, metrics, nop)
	ctx := context.Background()

	if _, err := home.Get(ctx); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := banners.Create(ctx, admin, &domain.BannerInput{Title: "New", Image: "https://cdn.test/new.png"}); err != nil {
		t.Fatalf("create banner: %v", err)
	}

	page, err := home.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(page.Banners) != 3 {
		t.Errorf("expected the new banner on the homepage, got %d banners", len(page.Banners))
	}
}

func TestGuideList(t *testing.T) {
	store := newMemStore()
	store.guides = []domain.RentalGuide{
		{ID: 1, Type: domain.GuideProcess, Title: "Find", Step: ptr(1)},
		{ID: 2, Type: domain.GuideFAQ, Title: "Deposit?"},
	}
	svc := service.NewGuideService(store)

	rows, err := svc.List(context.Background(), domain.GuideProcess)
	if err != nil || len(rows) != 1 || rows[0].ID != 1 {
		t.Fatalf("unexpected guides %v, %v", rows, err)
	}

	_, err = svc.List(context.Background(), "secrets")
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
