package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/port"

	"go.opentelemetry.io/otel"
)

var guideTracer = otel.Tracer("service/guide")

// GuideService serves the rental guide sections.
type GuideService struct {
	store port.ContentStore
}

func NewGuideService(store port.ContentStore) *GuideService {
	return &GuideService{store: store}
}

func (s *GuideService) List(ctx context.Context, t domain.GuideType) ([]domain.RentalGuide, error) {
	ctx, span := guideTracer.Start(ctx, "GuideService.List")
	defer span.End()

	if !t.Valid() {
		return nil, &domain.ErrValidation{Field: "type", Message: fmt.Sprintf("unknown guide type %q", t)}
	}
	return s.store.ListRentalGuides(ctx, t)
}
