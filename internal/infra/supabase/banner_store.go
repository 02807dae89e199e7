package supabase

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/boddenberg/rental-api-go/internal/domain"

	"github.com/google/uuid"
)

// ============================================================
// BannerStore implementation
// ============================================================

func (c *Client) queryBanners(ctx context.Context, q url.Values) ([]domain.Banner, error) {
	return selectRows[domain.Banner](ctx, c, "banners", q)
}

// ListBanners returns banners by display order. A missing table reads as empty.
func (c *Client) ListBanners(ctx context.Context, limit int) ([]domain.Banner, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListBanners")
	defer span.End()

	return c.queryBanners(ctx, url.Values{
		"select": {"*"},
		"order":  {"order.asc"},
		"limit":  {strconv.Itoa(limit)},
	})
}

func (c *Client) GetBanner(ctx context.Context, id string) (*domain.Banner, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetBanner")
	defer span.End()

	rows, err := c.queryBanners(ctx, url.Values{"id": {eq(id)}, "limit": {"1"}})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "banner", ID: id}
	}
	return &rows[0], nil
}

// MaxBannerOrder returns the highest order value, or 0 without banners.
func (c *Client) MaxBannerOrder(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.MaxBannerOrder")
	defer span.End()

	rows, err := c.queryBanners(ctx, url.Values{
		"select": {"order"},
		"order":  {"order.desc"},
		"limit":  {"1"},
	})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Order, nil
}

func (c *Client) CreateBanner(ctx context.Context, fields map[string]any) (*domain.Banner, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateBanner")
	defer span.End()

	if _, ok := fields["id"]; !ok {
		fields["id"] = uuid.New().String()
	}

	var row *domain.Banner
	err := c.write(ctx, func() error {
		body, err := c.doPost(ctx, "banners", fields)
		if err != nil {
			return err
		}
		row, err = decodeFirst[domain.Banner](body)
		return err
	})
	if err != nil {
		return nil, wrap("banners", err)
	}
	if row == nil {
		return nil, wrap("banners", fmt.Errorf("insert returned no row"))
	}
	return row, nil
}

func (c *Client) UpdateBanner(ctx context.Context, id string, fields map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateBanner")
	defer span.End()

	path := "banners?" + url.Values{"id": {eq(id)}}.Encode()
	err := c.write(ctx, func() error {
		_, err := c.doPatch(ctx, path, fields)
		return err
	})
	return wrap("banners", err)
}

func (c *Client) DeleteBanner(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteBanner")
	defer span.End()

	path := "banners?" + url.Values{"id": {eq(id)}}.Encode()
	err := c.write(ctx, func() error {
		return c.doDelete(ctx, path)
	})
	return wrap("banners", err)
}
