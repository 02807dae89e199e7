package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/infra/observability"
	"github.com/boddenberg/rental-api-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var appointmentTracer = otel.Tracer("service/appointment")

// AppointmentService books and manages viewing appointments.
type AppointmentService struct {
	store         port.AppointmentStore
	properties    port.PropertyStore
	users         port.UserStore
	guestTenantID string
	metrics       *observability.Metrics
	logger        *zap.Logger
}

// NewAppointmentService creates an appointment service. guestTenantID is the
// tenant recorded for anonymous bookings; empty falls back to the first user.
func NewAppointmentService(store port.AppointmentStore, properties port.PropertyStore, users port.UserStore, guestTenantID string, metrics *observability.Metrics, logger *zap.Logger) *AppointmentService {
	return &AppointmentService{
		store:         store,
		properties:    properties,
		users:         users,
		guestTenantID: guestTenantID,
		metrics:       metrics,
		logger:        logger,
	}
}

// Create books a viewing. caller is nil for anonymous requests.
func (s *AppointmentService) Create(ctx context.Context, caller *domain.Principal, req *domain.CreateAppointmentRequest) (_ *domain.Appointment, err error) {
	ctx, span := appointmentTracer.Start(ctx, "AppointmentService.Create")
	defer span.End()
	defer track(s.metrics, "appointment.create", time.Now(), &err)

	if strings.TrimSpace(req.PropertyID) == "" || strings.TrimSpace(req.AppointmentTime) == "" {
		return nil, &domain.ErrValidation{Field: "body", Message: "property_id and appointment_time are required"}
	}
	when, ok := domain.ParseTime(req.AppointmentTime)
	if !ok {
		return nil, &domain.ErrValidation{Field: "appointment_time", Message: "invalid appointment_time"}
	}
	span.SetAttributes(attribute.String("property_id", req.PropertyID))

	property, err := s.properties.GetProperty(ctx, req.PropertyID)
	if err != nil {
		return nil, err
	}

	tenantID, err := s.resolveTenant(ctx, caller)
	if err != nil {
		return nil, err
	}

	created, err := s.store.CreateAppointment(ctx, &domain.Appointment{
		PropertyID:      property.ID,
		TenantID:        tenantID,
		LandlordID:      property.LandlordID,
		AppointmentTime: &when,
		Status:          domain.AppointmentPending,
		TenantNotes:     tenantNotes(req.PhoneNumber, req.Notes),
	})
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.logger.Info("appointment created",
		zap.String("appointment_id", created.ID),
		zap.String("property_id", property.ID),
		zap.Bool("guest", caller == nil),
	)
	return created, nil
}

func (s *AppointmentService) resolveTenant(ctx context.Context, caller *domain.Principal) (string, error) {
	if caller != nil && caller.UserID != "" {
		return caller.UserID, nil
	}
	if s.guestTenantID != "" {
		return s.guestTenantID, nil
	}
	id, err := s.users.FirstUserID(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve guest tenant: %w", err)
	}
	if id == "" {
		return "", &domain.ErrUnavailable{Feature: "guest booking"}
	}
	return id, nil
}

func tenantNotes(phone, notes string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		phone = "未提供"
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		notes = "无"
	}
	return fmt.Sprintf("联系电话: %s\n备注: %s", phone, notes)
}

// List returns the appointments visible to p, newest first.
func (s *AppointmentService) List(ctx context.Context, p domain.Principal, status domain.AppointmentStatus) (_ []domain.Appointment, err error) {
	ctx, span := appointmentTracer.Start(ctx, "AppointmentService.List")
	defer span.End()
	defer track(s.metrics, "appointment.list", time.Now(), &err)

	f := domain.AppointmentFilter{Status: status}
	switch p.Role {
	case domain.RoleTenant:
		f.TenantID = p.UserID
	case domain.RoleLandlord:
		f.LandlordID = p.UserID
	case domain.RoleAdmin:
	default:
		return nil, &domain.ErrForbidden{Action: "list appointments"}
	}

	rows, err := s.store.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return rows, nil
}

// Get returns one appointment if p is its tenant, its landlord or an admin.
func (s *AppointmentService) Get(ctx context.Context, p domain.Principal, id string) (_ *domain.Appointment, err error) {
	ctx, span := appointmentTracer.Start(ctx, "AppointmentService.Get")
	defer span.End()
	defer track(s.metrics, "appointment.get", time.Now(), &err)

	a, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	switch p.Role {
	case domain.RoleAdmin:
		return a, nil
	case domain.RoleTenant:
		err = ensureOwner(p, a.TenantID, "view appointment")
	case domain.RoleLandlord:
		err = ensureOwner(p, a.LandlordID, "view appointment")
	default:
		err = &domain.ErrForbidden{Action: "view appointment"}
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateStatus lets the landlord confirm, reject, complete or cancel.
func (s *AppointmentService) UpdateStatus(ctx context.Context, p domain.Principal, id string, in *domain.AppointmentStatusUpdate) (_ *domain.Appointment, err error) {
	ctx, span := appointmentTracer.Start(ctx, "AppointmentService.UpdateStatus")
	defer span.End()
	defer track(s.metrics, "appointment.status", time.Now(), &err)

	if !in.Status.LandlordSettable() {
		return nil, &domain.ErrValidation{Field: "status", Message: "status must be confirmed, rejected, completed or cancelled"}
	}

	a, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureOwner(p, a.LandlordID, "update appointment"); err != nil {
		return nil, err
	}

	fields := map[string]any{
		"status":     in.Status,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if in.LandlordNotes != nil {
		fields["landlord_notes"] = *in.LandlordNotes
	}
	if in.Status == domain.AppointmentConfirmed && in.ScheduledTime != nil && *in.ScheduledTime != "" {
		when, ok := domain.ParseTime(*in.ScheduledTime)
		if !ok {
			return nil, &domain.ErrValidation{Field: "scheduled_time", Message: "invalid scheduled_time"}
		}
		fields["scheduled_time"] = when.UTC().Format(time.RFC3339)
	}

	updated, err := s.store.UpdateAppointment(ctx, id, fields)
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	s.logger.Info("appointment status updated",
		zap.String("appointment_id", id),
		zap.String("status", string(in.Status)),
	)
	return updated, nil
}
