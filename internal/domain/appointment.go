package domain

import (
	"strings"
	"time"
)

// AppointmentStatus is the lifecycle state of a viewing appointment.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentRejected  AppointmentStatus = "rejected"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// LandlordSettable reports whether a landlord may move an appointment to s.
func (s AppointmentStatus) LandlordSettable() bool {
	switch s {
	case AppointmentConfirmed, AppointmentRejected, AppointmentCompleted, AppointmentCancelled:
		return true
	}
	return false
}

// Appointment is a viewing request for a property.
type Appointment struct {
	ID              string            `json:"id"`
	PropertyID      string            `json:"property_id"`
	TenantID        string            `json:"tenant_id"`
	LandlordID      string            `json:"landlord_id"`
	AppointmentTime *time.Time        `json:"appointment_time,omitempty"`
	ScheduledTime   *time.Time        `json:"scheduled_time,omitempty"`
	Status          AppointmentStatus `json:"status"`
	TenantNotes     string            `json:"tenant_notes,omitempty"`
	LandlordNotes   string            `json:"landlord_notes,omitempty"`
	CreatedAt       *time.Time        `json:"created_at,omitempty"`
	UpdatedAt       *time.Time        `json:"updated_at,omitempty"`
}

// EffectiveTime is the confirmed slot if any, else the requested one.
func (a *Appointment) EffectiveTime() *time.Time {
	if a.ScheduledTime != nil {
		return a.ScheduledTime
	}
	return a.AppointmentTime
}

// CreateAppointmentRequest is the body for the public booking endpoints.
type CreateAppointmentRequest struct {
	PropertyID      string `json:"property_id"`
	AppointmentTime string `json:"appointment_time"`
	PhoneNumber     string `json:"phone_number"`
	Notes           string `json:"notes"`
}

// AppointmentFilter narrows GET /api/appointments.
type AppointmentFilter struct {
	TenantID   string
	LandlordID string
	Status     AppointmentStatus
}

// AppointmentStatusUpdate is the body for PUT /api/appointments/{id}/status.
type AppointmentStatusUpdate struct {
	Status        AppointmentStatus `json:"status"`
	LandlordNotes *string           `json:"landlord_notes"`
	ScheduledTime *string           `json:"scheduled_time"`
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime accepts RFC3339 and the date/time layouts the mini-program sends.
// Layouts without a zone are read as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
