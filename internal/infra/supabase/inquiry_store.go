package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/boddenberg/rental-api-go/internal/domain"

	"github.com/google/uuid"
)

// ============================================================
// InquiryStore implementation
// ============================================================

const inquirySelect = "*,properties(*)"

// inquiryRow carries the embedded property under the table name PostgREST uses.
type inquiryRow struct {
	ID                  string           `json:"id"`
	PropertyID          string           `json:"property_id"`
	TenantID            string           `json:"tenant_id"`
	Question            string           `json:"question"`
	AIResponse          *string          `json:"ai_response"`
	Status              *string          `json:"status"`
	ConversationHistory json.RawMessage  `json:"conversation_history"`
	CreatedAt           *string          `json:"created_at"`
	Properties          *domain.Property `json:"properties"`
}

func (r *inquiryRow) toDomain() domain.Inquiry {
	in := domain.Inquiry{
		ID:                  r.ID,
		PropertyID:          r.PropertyID,
		TenantID:            r.TenantID,
		Question:            r.Question,
		AIResponse:          r.AIResponse,
		Status:              deref(r.Status),
		ConversationHistory: r.ConversationHistory,
		CreatedAt:           parseTimePtr(r.CreatedAt),
		Property:            r.Properties,
	}
	if string(in.ConversationHistory) == "null" {
		in.ConversationHistory = nil
	}
	if in.Property != nil {
		normalizeProperty(in.Property)
	}
	return in
}

func (c *Client) queryInquiries(ctx context.Context, q url.Values) ([]domain.Inquiry, error) {
	var rows []inquiryRow
	err := c.read(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "inquiries?"+q.Encode())
		if err != nil {
			return err
		}
		rows, err = decodeAll[inquiryRow](body)
		if err != nil {
			return fmt.Errorf("decode inquiries: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, wrap("inquiries", err)
	}
	out := make([]domain.Inquiry, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// ListInquiries returns inquiries newest first. With ByProperties set and no
// property ids it returns an empty list without a round trip.
func (c *Client) ListInquiries(ctx context.Context, f domain.InquiryFilter) ([]domain.Inquiry, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListInquiries")
	defer span.End()

	if f.ByProperties && len(f.PropertyIDs) == 0 {
		return []domain.Inquiry{}, nil
	}

	q := url.Values{"select": {"*"}, "order": {"created_at.desc"}}
	if f.TenantID != "" {
		q.Set("tenant_id", eq(f.TenantID))
	}
	if f.ByProperties {
		q.Set("property_id", in(f.PropertyIDs))
	}
	return c.queryInquiries(ctx, q)
}

// GetInquiry returns the inquiry with its property embedded.
func (c *Client) GetInquiry(ctx context.Context, id string) (*domain.Inquiry, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetInquiry")
	defer span.End()

	rows, err := c.queryInquiries(ctx, url.Values{
		"select": {inquirySelect},
		"id":     {eq(id)},
		"limit":  {"1"},
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "inquiry", ID: id}
	}
	return &rows[0], nil
}

func (c *Client) CreateInquiry(ctx context.Context, n *domain.NewInquiry) (*domain.Inquiry, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateInquiry")
	defer span.End()

	data := map[string]any{
		"id":                   uuid.New().String(),
		"tenant_id":            n.TenantID,
		"property_id":          n.PropertyID,
		"question":             n.Question,
		"status":               n.Status,
		"conversation_history": n.ConversationHistory,
	}

	var row *inquiryRow
	err := c.write(ctx, func() error {
		body, err := c.doPost(ctx, "inquiries", data)
		if err != nil {
			return err
		}
		row, err = decodeFirst[inquiryRow](body)
		return err
	})
	if err != nil {
		return nil, wrap("inquiries", err)
	}
	if row == nil {
		return nil, wrap("inquiries", fmt.Errorf("insert returned no row"))
	}
	created := row.toDomain()
	return &created, nil
}
