package supabase

import (
	"context"
	"net/url"
	"strconv"

	"github.com/boddenberg/rental-api-go/internal/domain"
)

// ============================================================
// TenantStore implementation: tenant dashboard reads
// ============================================================

// GetActiveRental returns the tenant's active rental with its property, or nil.
func (c *Client) GetActiveRental(ctx context.Context, tenantID string) (*domain.Rental, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetActiveRental")
	defer span.End()

	rows, err := selectRows[domain.Rental](ctx, c, "rentals", url.Values{
		"select":    {"*,property:property_id(*)"},
		"tenant_id": {eq(tenantID)},
		"status":    {"eq.active"},
		"order":     {"created_at.desc"},
		"limit":     {"1"},
	})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	if rows[0].Property != nil {
		normalizeProperty(rows[0].Property)
	}
	return &rows[0], nil
}

// ListBills returns the tenant's bills by due date, latest first.
func (c *Client) ListBills(ctx context.Context, tenantID string, limit int) ([]domain.Bill, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListBills")
	defer span.End()

	return selectRows[domain.Bill](ctx, c, "bills", url.Values{
		"tenant_id": {eq(tenantID)},
		"order":     {"due_date.desc"},
		"limit":     {strconv.Itoa(limit)},
	})
}

func (c *Client) ListMaintenanceRequests(ctx context.Context, tenantID string, limit int) ([]domain.MaintenanceRequest, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListMaintenanceRequests")
	defer span.End()

	return selectRows[domain.MaintenanceRequest](ctx, c, "maintenance_requests", url.Values{
		"tenant_id": {eq(tenantID)},
		"order":     {"created_at.desc"},
		"limit":     {strconv.Itoa(limit)},
	})
}

func (c *Client) ListAnnouncements(ctx context.Context, propertyID string, limit int) ([]domain.Announcement, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAnnouncements")
	defer span.End()

	return selectRows[domain.Announcement](ctx, c, "announcements", url.Values{
		"property_id": {eq(propertyID)},
		"order":       {"created_at.desc"},
		"limit":       {strconv.Itoa(limit)},
	})
}
