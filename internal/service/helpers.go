package service

import (
	"errors"
	"strings"
	"time"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/infra/observability"
)

// track records the duration of op and counts external failures by backend
// ("supabase", "storage", "wechat"). Use as: defer track(m, "Op", time.Now(), &err).
func track(m *observability.Metrics, op string, start time.Time, errp *error) {
	m.RecordRequestDuration(op, time.Since(start))
	if errp != nil {
		countExternal(m, *errp)
	}
}

func countExternal(m *observability.Metrics, err error) {
	var ext *domain.ErrExternalService
	if errors.As(err, &ext) {
		backend, _, _ := strings.Cut(ext.Service, "/")
		m.IncrExternalError(backend)
	}
}

// ensureOwner fails with 403 unless p owns the resource.
func ensureOwner(p domain.Principal, ownerID, action string) error {
	if ownerID == "" || p.UserID != ownerID {
		return &domain.ErrForbidden{Action: action}
	}
	return nil
}
