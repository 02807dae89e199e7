package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/infra/observability"
	"github.com/boddenberg/rental-api-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var inquiryTracer = otel.Tracer("service/inquiry")

// InquiryService reads tenant inquiries.
type InquiryService struct {
	store      port.InquiryStore
	properties port.PropertyStore
	metrics    *observability.Metrics
	logger     *zap.Logger
}

func NewInquiryService(store port.InquiryStore, properties port.PropertyStore, metrics *observability.Metrics, logger *zap.Logger) *InquiryService {
	return &InquiryService{store: store, properties: properties, metrics: metrics, logger: logger}
}

// List returns the inquiries visible to p, newest first.
func (s *InquiryService) List(ctx context.Context, p domain.Principal) (_ []domain.Inquiry, err error) {
	ctx, span := inquiryTracer.Start(ctx, "InquiryService.List")
	defer span.End()
	defer track(s.metrics, "inquiry.list", time.Now(), &err)

	var f domain.InquiryFilter
	switch p.Role {
	case domain.RoleTenant:
		f.TenantID = p.UserID
	case domain.RoleLandlord:
		owned, err := s.properties.ListPropertiesByLandlord(ctx, p.UserID)
		if err != nil {
			return nil, fmt.Errorf("list landlord properties: %w", err)
		}
		f.ByProperties = true
		for _, prop := range owned {
			f.PropertyIDs = append(f.PropertyIDs, prop.ID)
		}
	case domain.RoleAdmin:
	default:
		return nil, &domain.ErrForbidden{Action: "list inquiries"}
	}

	rows, err := s.store.ListInquiries(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list inquiries: %w", err)
	}
	return rows, nil
}

// Get returns an inquiry with its property.
func (s *InquiryService) Get(ctx context.Context, p domain.Principal, id string) (_ *domain.Inquiry, err error) {
	ctx, span := inquiryTracer.Start(ctx, "InquiryService.Get")
	defer span.End()
	defer track(s.metrics, "inquiry.get", time.Now(), &err)

	inq, err := s.store.GetInquiry(ctx, id)
	if err != nil {
		return nil, err
	}

	switch p.Role {
	case domain.RoleAdmin:
		return inq, nil
	case domain.RoleTenant:
		err = ensureOwner(p, inq.TenantID, "view inquiry")
	case domain.RoleLandlord:
		landlordID := ""
		if inq.Property != nil {
			landlordID = inq.Property.LandlordID
		}
		err = ensureOwner(p, landlordID, "view inquiry")
	default:
		err = &domain.ErrForbidden{Action: "view inquiry"}
	}
	if err != nil {
		s.logger.Warn("inquiry: access denied",
			zap.String("inquiry_id", id),
			zap.String("user_id", p.UserID),
		)
		return nil, err
	}
	return inq, nil
}
