package domain

// OverviewStats is the landlord dashboard summary.
type OverviewStats struct {
	TotalProperties      int `json:"total_properties"`
	AvailableProperties  int `json:"available_properties"`
	TotalViews           int `json:"total_views"`
	TotalInquiries       int `json:"total_inquiries"`
	TotalAppointments    int `json:"total_appointments"`
	PendingAppointments  int `json:"pending_appointments"`
	UpcomingAppointments int `json:"upcoming_appointments"`
	RecentInquiries      int `json:"recent_inquiries"`
	RecentAppointments   int `json:"recent_appointments"`
}

// ConversionRate values are percentages rounded to two decimals.
type ConversionRate struct {
	ViewsToInquiries        float64 `json:"views_to_inquiries"`
	InquiriesToAppointments float64 `json:"inquiries_to_appointments"`
}

// AppointmentsByStatus counts a property's appointments per status.
type AppointmentsByStatus struct {
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
	Rejected  int `json:"rejected"`
}

// PropertyStats is the per-listing dashboard.
type PropertyStats struct {
	PropertyID           string               `json:"property_id"`
	Title                string               `json:"property_title"`
	Status               PropertyStatus       `json:"status"`
	DaysListed           int                  `json:"days_listed"`
	TotalViews           int                  `json:"total_views"`
	ViewsPerDay          float64              `json:"views_per_day"`
	TotalInquiries       int                  `json:"total_inquiries"`
	TotalAppointments    int                  `json:"total_appointments"`
	ConversionRate       ConversionRate       `json:"conversion_rate"`
	AppointmentsByStatus AppointmentsByStatus `json:"appointments_by_status"`
}
