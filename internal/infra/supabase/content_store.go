package supabase

import (
	"context"
	"net/url"
	"strconv"

	"github.com/boddenberg/rental-api-go/internal/domain"
)

// ============================================================
// ContentStore implementation: topics and rental guides
// ============================================================

// ListTopics returns published topics by likes.
func (c *Client) ListTopics(ctx context.Context, limit int) ([]domain.Topic, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTopics")
	defer span.End()

	return selectRows[domain.Topic](ctx, c, "topics", url.Values{
		"select":       {"*"},
		"is_published": {"eq.true"},
		"order":        {"likes.desc"},
		"limit":        {strconv.Itoa(limit)},
	})
}

func (c *Client) ListRentalGuides(ctx context.Context, t domain.GuideType) ([]domain.RentalGuide, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListRentalGuides")
	defer span.End()

	return selectRows[domain.RentalGuide](ctx, c, "rental_guides", url.Values{
		"select": {"*"},
		"type":   {eq(string(t))},
		"order":  {"id.asc"},
	})
}
