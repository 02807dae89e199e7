package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/boddenberg/rental-api-go/internal/domain"

	"github.com/google/uuid"
)

// ============================================================
// PropertyStore implementation
// ============================================================

func normalizeProperty(p *domain.Property) {
	if p.Amenities == nil {
		p.Amenities = []string{}
	}
	if p.Images == nil {
		p.Images = []string{}
	}
}

func (c *Client) listProperties(ctx context.Context, q url.Values) ([]domain.Property, error) {
	var rows []domain.Property
	err := c.read(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "properties?"+q.Encode())
		if err != nil {
			return err
		}
		rows, err = decodeAll[domain.Property](body)
		if err != nil {
			return fmt.Errorf("decode properties: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, wrap("properties", err)
	}
	for i := range rows {
		normalizeProperty(&rows[i])
	}
	return rows, nil
}

// ListProperties returns one page of properties ordered by newest first,
// together with the exact total.
func (c *Client) ListProperties(ctx context.Context, f domain.PropertyFilter) (*domain.PropertyList, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListProperties")
	defer span.End()

	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc")
	q.Set("limit", strconv.Itoa(f.Limit))
	q.Set("offset", strconv.Itoa((f.Page-1)*f.Limit))
	if f.District != "" {
		q.Set("district", eq(f.District))
	}
	if f.PropertyType != "" {
		q.Set("property_type", eq(f.PropertyType))
	}
	if f.LandlordID != "" {
		q.Set("landlord_id", eq(f.LandlordID))
	}
	if f.Bedrooms != nil {
		q.Set("bedrooms", eq(strconv.Itoa(*f.Bedrooms)))
	}
	// min and max both filter price_per_month
	var price []string
	if f.MinPrice != nil {
		price = append(price, "gte."+strconv.FormatFloat(*f.MinPrice, 'f', -1, 64))
	}
	if f.MaxPrice != nil {
		price = append(price, "lte."+strconv.FormatFloat(*f.MaxPrice, 'f', -1, 64))
	}
	if len(price) > 0 {
		q["price_per_month"] = price
	}

	list := &domain.PropertyList{Page: f.Page, Limit: f.Limit}
	err := c.read(ctx, func() error {
		body, total, err := c.doCount(ctx, "properties?"+q.Encode())
		if err != nil {
			return err
		}
		rows, err := decodeAll[domain.Property](body)
		if err != nil {
			return fmt.Errorf("decode properties: %w", err)
		}
		list.Properties = rows
		list.Total = total
		return nil
	})
	if err != nil {
		return nil, wrap("properties", err)
	}
	for i := range list.Properties {
		normalizeProperty(&list.Properties[i])
	}
	return list, nil
}

func (c *Client) ListPropertiesByLandlord(ctx context.Context, landlordID string) ([]domain.Property, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListPropertiesByLandlord")
	defer span.End()

	return c.listProperties(ctx, url.Values{
		"landlord_id": {eq(landlordID)},
		"order":       {"created_at.desc"},
	})
}

// ListHotProperties returns published, available listings by view count.
func (c *Client) ListHotProperties(ctx context.Context, limit int) ([]domain.Property, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListHotProperties")
	defer span.End()

	return c.listProperties(ctx, url.Values{
		"is_published": {"eq.true"},
		"status":       {eq(string(domain.PropertyAvailable))},
		"order":        {"view_count.desc"},
		"limit":        {strconv.Itoa(limit)},
	})
}

// GetProperty returns the property or *domain.ErrNotFound.
func (c *Client) GetProperty(ctx context.Context, id string) (*domain.Property, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetProperty")
	defer span.End()

	rows, err := c.listProperties(ctx, url.Values{"id": {eq(id)}, "limit": {"1"}})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "property", ID: id}
	}
	return &rows[0], nil
}

func (c *Client) CreateProperty(ctx context.Context, fields map[string]any) (*domain.Property, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateProperty")
	defer span.End()

	if _, ok := fields["id"]; !ok {
		fields["id"] = uuid.New().String()
	}

	var row *domain.Property
	err := c.write(ctx, func() error {
		body, err := c.doPost(ctx, "properties", fields)
		if err != nil {
			return err
		}
		row, err = decodeFirst[domain.Property](body)
		return err
	})
	if err != nil {
		return nil, wrap("properties", err)
	}
	if row == nil {
		return nil, wrap("properties", fmt.Errorf("insert returned no row"))
	}
	normalizeProperty(row)
	return row, nil
}

// UpdateProperty patches a property and returns the updated row.
func (c *Client) UpdateProperty(ctx context.Context, id string, fields map[string]any) (*domain.Property, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateProperty")
	defer span.End()

	path := "properties?" + url.Values{"id": {eq(id)}}.Encode()
	var row *domain.Property
	err := c.write(ctx, func() error {
		body, err := c.doPatch(ctx, path, fields)
		if err != nil {
			return err
		}
		row, err = decodeFirst[domain.Property](body)
		return err
	})
	if err != nil {
		return nil, wrap("properties", err)
	}
	if row == nil {
		return nil, &domain.ErrNotFound{Resource: "property", ID: id}
	}
	normalizeProperty(row)
	return row, nil
}

func (c *Client) DeleteProperty(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteProperty")
	defer span.End()

	path := "properties?" + url.Values{"id": {eq(id)}}.Encode()
	err := c.write(ctx, func() error {
		return c.doDelete(ctx, path)
	})
	return wrap("properties", err)
}

// IncrementViewCount bumps view_count through the increment_view_count RPC.
func (c *Client) IncrementViewCount(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.IncrementViewCount")
	defer span.End()

	err := c.write(ctx, func() error {
		_, err := c.doRPC(ctx, "increment_view_count", map[string]any{"property_id": id})
		return err
	})
	return wrap("rpc/increment_view_count", err)
}
