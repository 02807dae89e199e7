package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/boddenberg/rental-api-go/internal/domain"

	"github.com/google/uuid"
)

// ============================================================
// AppointmentStore implementation
// ============================================================

// appointmentRow keeps the time columns as text: appointment_time may be
// stored with or without a zone.
type appointmentRow struct {
	ID              string                   `json:"id"`
	PropertyID      string                   `json:"property_id"`
	TenantID        string                   `json:"tenant_id"`
	LandlordID      string                   `json:"landlord_id"`
	AppointmentTime *string                  `json:"appointment_time"`
	ScheduledTime   *string                  `json:"scheduled_time"`
	Status          domain.AppointmentStatus `json:"status"`
	TenantNotes     *string                  `json:"tenant_notes"`
	LandlordNotes   *string                  `json:"landlord_notes"`
	CreatedAt       *string                  `json:"created_at"`
	UpdatedAt       *string                  `json:"updated_at"`
}

func parseTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, ok := domain.ParseTime(*s)
	if !ok {
		return nil
	}
	return &t
}

func (r *appointmentRow) toDomain() domain.Appointment {
	return domain.Appointment{
		ID:              r.ID,
		PropertyID:      r.PropertyID,
		TenantID:        r.TenantID,
		LandlordID:      r.LandlordID,
		AppointmentTime: parseTimePtr(r.AppointmentTime),
		ScheduledTime:   parseTimePtr(r.ScheduledTime),
		Status:          r.Status,
		TenantNotes:     deref(r.TenantNotes),
		LandlordNotes:   deref(r.LandlordNotes),
		CreatedAt:       parseTimePtr(r.CreatedAt),
		UpdatedAt:       parseTimePtr(r.UpdatedAt),
	}
}

func (c *Client) queryAppointments(ctx context.Context, q url.Values) ([]domain.Appointment, error) {
	var rows []appointmentRow
	err := c.read(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "appointments?"+q.Encode())
		if err != nil {
			return err
		}
		rows, err = decodeAll[appointmentRow](body)
		if err != nil {
			return fmt.Errorf("decode appointments: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, wrap("appointments", err)
	}
	out := make([]domain.Appointment, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (c *Client) CreateAppointment(ctx context.Context, a *domain.Appointment) (*domain.Appointment, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateAppointment")
	defer span.End()

	data := map[string]any{
		"id":           uuid.New().String(),
		"property_id":  a.PropertyID,
		"tenant_id":    a.TenantID,
		"landlord_id":  a.LandlordID,
		"status":       a.Status,
		"tenant_notes": a.TenantNotes,
	}
	if a.AppointmentTime != nil {
		data["appointment_time"] = a.AppointmentTime.UTC().Format(time.RFC3339)
	}

	var row *appointmentRow
	err := c.write(ctx, func() error {
		body, err := c.doPost(ctx, "appointments", data)
		if err != nil {
			return err
		}
		row, err = decodeFirst[appointmentRow](body)
		return err
	})
	if err != nil {
		return nil, wrap("appointments", err)
	}
	if row == nil {
		return nil, wrap("appointments", fmt.Errorf("insert returned no row"))
	}
	created := row.toDomain()
	return &created, nil
}

// ListAppointments returns appointments newest first. Empty filter fields are ignored.
func (c *Client) ListAppointments(ctx context.Context, f domain.AppointmentFilter) ([]domain.Appointment, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAppointments")
	defer span.End()

	q := url.Values{"order": {"created_at.desc"}}
	if f.TenantID != "" {
		q.Set("tenant_id", eq(f.TenantID))
	}
	if f.LandlordID != "" {
		q.Set("landlord_id", eq(f.LandlordID))
	}
	if f.Status != "" {
		q.Set("status", eq(string(f.Status)))
	}
	return c.queryAppointments(ctx, q)
}

func (c *Client) ListAppointmentsByProperties(ctx context.Context, propertyIDs []string) ([]domain.Appointment, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAppointmentsByProperties")
	defer span.End()

	if len(propertyIDs) == 0 {
		return []domain.Appointment{}, nil
	}
	return c.queryAppointments(ctx, url.Values{
		"property_id": {in(propertyIDs)},
		"order":       {"created_at.desc"},
	})
}

func (c *Client) GetAppointment(ctx context.Context, id string) (*domain.Appointment, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetAppointment")
	defer span.End()

	rows, err := c.queryAppointments(ctx, url.Values{"id": {eq(id)}, "limit": {"1"}})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "appointment", ID: id}
	}
	return &rows[0], nil
}

func (c *Client) UpdateAppointment(ctx context.Context, id string, fields map[string]any) (*domain.Appointment, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateAppointment")
	defer span.End()

	path := "appointments?" + url.Values{"id": {eq(id)}}.Encode()
	var row *appointmentRow
	err := c.write(ctx, func() error {
		body, err := c.doPatch(ctx, path, fields)
		if err != nil {
			return err
		}
		row, err = decodeFirst[appointmentRow](body)
		return err
	})
	if err != nil {
		return nil, wrap("appointments", err)
	}
	if row == nil {
		return nil, &domain.ErrNotFound{Resource: "appointment", ID: id}
	}
	updated := row.toDomain()
	return &updated, nil
}
