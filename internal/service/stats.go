package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/infra/observability"
	"github.com/boddenberg/rental-api-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var statsTracer = otel.Tracer("service/stats")

const recentWindow = 30 * 24 * time.Hour

// StatsService computes landlord dashboards.
type StatsService struct {
	properties   port.PropertyStore
	inquiries    port.InquiryStore
	appointments port.AppointmentStore
	metrics      *observability.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

func NewStatsService(properties port.PropertyStore, inquiries port.InquiryStore, appointments port.AppointmentStore, metrics *observability.Metrics, logger *zap.Logger) *StatsService {
	return &StatsService{
		properties:   properties,
		inquiries:    inquiries,
		appointments: appointments,
		metrics:      metrics,
		logger:       logger,
		now:          time.Now,
	}
}

// activity loads inquiries and appointments of the given properties in parallel.
func (s *StatsService) activity(ctx context.Context, propertyIDs []string) ([]domain.Inquiry, []domain.Appointment, error) {
	var (
		inquiries    []domain.Inquiry
		appointments []domain.Appointment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.inquiries.ListInquiries(gctx, domain.InquiryFilter{PropertyIDs: propertyIDs, ByProperties: true})
		if err != nil {
			return fmt.Errorf("list inquiries: %w", err)
		}
		inquiries = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.appointments.ListAppointmentsByProperties(gctx, propertyIDs)
		if err != nil {
			return fmt.Errorf("list appointments: %w", err)
		}
		appointments = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return inquiries, appointments, nil
}

// Overview summarizes every listing of the landlord p.
func (s *StatsService) Overview(ctx context.Context, p domain.Principal) (_ *domain.OverviewStats, err error) {
	ctx, span := statsTracer.Start(ctx, "StatsService.Overview")
	defer span.End()
	defer track(s.metrics, "stats.overview", time.Now(), &err)

	properties, err := s.properties.ListPropertiesByLandlord(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	ids := make([]string, 0, len(properties))
	for _, prop := range properties {
		ids = append(ids, prop.ID)
	}

	inquiries, appointments, err := s.activity(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := s.now()
	since := now.Add(-recentWindow)
	out := &domain.OverviewStats{
		TotalProperties:   len(properties),
		TotalInquiries:    len(inquiries),
		TotalAppointments: len(appointments),
	}
	for _, prop := range properties {
		if prop.Status == domain.PropertyAvailable {
			out.AvailableProperties++
		}
		out.TotalViews += prop.ViewCount
	}
	for _, inq := range inquiries {
		if inq.CreatedAt != nil && inq.CreatedAt.After(since) {
			out.RecentInquiries++
		}
	}
	for i := range appointments {
		a := &appointments[i]
		switch a.Status {
		case domain.AppointmentPending:
			out.PendingAppointments++
		case domain.AppointmentConfirmed:
			if t := a.EffectiveTime(); t != nil && t.After(now) {
				out.UpcomingAppointments++
			}
		}
		if a.CreatedAt != nil && a.CreatedAt.After(since) {
			out.RecentAppointments++
		}
	}
	return out, nil
}

// Property returns the dashboard of one listing owned by p.
func (s *StatsService) Property(ctx context.Context, p domain.Principal, id string) (_ *domain.PropertyStats, err error) {
	ctx, span := statsTracer.Start(ctx, "StatsService.Property")
	defer span.End()
	span.SetAttributes(attribute.String("property_id", id))
	defer track(s.metrics, "stats.property", time.Now(), &err)

	prop, err := s.properties.GetProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureOwner(p, prop.LandlordID, "view property stats"); err != nil {
		return nil, err
	}

	inquiries, appointments, err := s.activity(ctx, []string{id})
	if err != nil {
		return nil, err
	}

	days := 0
	if prop.CreatedAt != nil {
		days = max(0, int(s.now().Sub(*prop.CreatedAt)/(24*time.Hour)))
	}

	out := &domain.PropertyStats{
		PropertyID:        prop.ID,
		Title:             prop.Title,
		Status:            prop.Status,
		DaysListed:        days,
		TotalViews:        prop.ViewCount,
		TotalInquiries:    len(inquiries),
		TotalAppointments: len(appointments),
	}
	if days > 0 {
		out.ViewsPerDay = round2(float64(prop.ViewCount) / float64(days))
	}
	out.ConversionRate = domain.ConversionRate{
		ViewsToInquiries:        percent(len(inquiries), prop.ViewCount),
		InquiriesToAppointments: percent(len(appointments), len(inquiries)),
	}
	for _, a := range appointments {
		switch a.Status {
		case domain.AppointmentPending:
			out.AppointmentsByStatus.Pending++
		case domain.AppointmentConfirmed:
			out.AppointmentsByStatus.Confirmed++
		case domain.AppointmentCompleted:
			out.AppointmentsByStatus.Completed++
		case domain.AppointmentCancelled:
			out.AppointmentsByStatus.Cancelled++
		case domain.AppointmentRejected:
			out.AppointmentsByStatus.Rejected++
		}
	}
	return out, nil
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
