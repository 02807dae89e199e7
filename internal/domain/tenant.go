package domain

import "time"

// ============================================================
// Tenant dashboard
// ============================================================

// Rental is an active or past lease of a tenant.
type Rental struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	PropertyID  string     `json:"property_id"`
	Status      string     `json:"status"`
	StartDate   string     `json:"start_date,omitempty"`
	EndDate     string     `json:"end_date,omitempty"`
	MonthlyRent *float64   `json:"monthly_rent,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	Property    *Property  `json:"property,omitempty"`
}

// Bill is a rent or utility charge. DueDate is an ISO date string so it
// sorts lexically.
type Bill struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Title     string     `json:"title,omitempty"`
	Type      string     `json:"type,omitempty"`
	Amount    float64    `json:"amount"`
	Status    string     `json:"status"`
	DueDate   string     `json:"due_date"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// BillUnpaid is the bill status counted in summaries.
const BillUnpaid = "unpaid"

// BillsSummary is the payload of GET /api/tenant/bills/summary.
type BillsSummary struct {
	RecentBills []Bill  `json:"recent_bills"`
	UnpaidCount int     `json:"unpaid_count"`
	TotalUnpaid float64 `json:"total_unpaid"`
	NextDue     *string `json:"next_due"`
}

// MaintenanceRequest is a repair ticket raised by a tenant.
type MaintenanceRequest struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	PropertyID  string     `json:"property_id,omitempty"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status,omitempty"`
	Images      []string   `json:"images,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// Announcement is a notice posted for a property's tenants.
type Announcement struct {
	ID         string     `json:"id"`
	PropertyID string     `json:"property_id"`
	Title      string     `json:"title,omitempty"`
	Content    string     `json:"content,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}
