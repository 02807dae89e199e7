package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/infra/observability"
	"github.com/boddenberg/rental-api-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tenantTracer = otel.Tracer("service/tenant")

const (
	dashboardLimit     = 5
	defaultImageFolder = "general"
	defaultInquiryType = "rent"
)

var folderPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// TenantService backs the tenant dashboard.
type TenantService struct {
	store     port.TenantStore
	inquiries port.InquiryStore
	users     port.UserStore
	storage   port.ObjectStorage
	bucket    string
	maxBytes  int64
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// TenantServiceConfig tunes a TenantService.
type TenantServiceConfig struct {
	ImageBucket   string
	MaxImageBytes int64
}

// NewTenantService creates a tenant service. storage may be nil.
func NewTenantService(store port.TenantStore, inquiries port.InquiryStore, users port.UserStore, storage port.ObjectStorage, cfg TenantServiceConfig, metrics *observability.Metrics, logger *zap.Logger) *TenantService {
	return &TenantService{
		store:     store,
		inquiries: inquiries,
		users:     users,
		storage:   storage,
		bucket:    cfg.ImageBucket,
		maxBytes:  cfg.MaxImageBytes,
		metrics:   metrics,
		logger:    logger,
	}
}

// CurrentRental returns the active lease with its property.
func (s *TenantService) CurrentRental(ctx context.Context, tenantID string) (_ *domain.Rental, err error) {
	ctx, span := tenantTracer.Start(ctx, "TenantService.CurrentRental")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenantID))
	defer track(s.metrics, "tenant.rental", time.Now(), &err)

	rental, err := s.store.GetActiveRental(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get active rental: %w", err)
	}
	if rental == nil {
		return nil, &domain.ErrNotFound{Resource: "active rental", ID: tenantID}
	}
	return rental, nil
}

// BillsSummary summarizes the most recent bills.
func (s *TenantService) BillsSummary(ctx context.Context, tenantID string) (_ *domain.BillsSummary, err error) {
	ctx, span := tenantTracer.Start(ctx, "TenantService.BillsSummary")
	defer span.End()
	defer track(s.metrics, "tenant.bills", time.Now(), &err)

	bills, err := s.store.ListBills(ctx, tenantID, dashboardLimit)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	return summarizeBills(bills), nil
}

func summarizeBills(bills []domain.Bill) *domain.BillsSummary {
	out := &domain.BillsSummary{RecentBills: bills}
	if out.RecentBills == nil {
		out.RecentBills = []domain.Bill{}
	}
	for _, b := range bills {
		if b.Status != domain.BillUnpaid {
			continue
		}
		out.UnpaidCount++
		out.TotalUnpaid += b.Amount
		// ISO dates compare lexically
		if b.DueDate != "" && (out.NextDue == nil || b.DueDate < *out.NextDue) {
			due := b.DueDate
			out.NextDue = &due
		}
	}
	return out
}

// RecentMaintenance returns the latest repair tickets.
func (s *TenantService) RecentMaintenance(ctx context.Context, tenantID string) (_ []domain.MaintenanceRequest, err error) {
	ctx, span := tenantTracer.Start(ctx, "TenantService.RecentMaintenance")
	defer span.End()
	defer track(s.metrics, "tenant.maintenance", time.Now(), &err)

	rows, err := s.store.ListMaintenanceRequests(ctx, tenantID, dashboardLimit)
	if err != nil {
		return nil, fmt.Errorf("list maintenance requests: %w", err)
	}
	return rows, nil
}

// RecentAnnouncements returns notices for the property of the active lease.
func (s *TenantService) RecentAnnouncements(ctx context.Context, tenantID string) (_ []domain.Announcement, err error) {
	ctx, span := tenantTracer.Start(ctx, "TenantService.RecentAnnouncements")
	defer span.End()
	defer track(s.metrics, "tenant.announcements", time.Now(), &err)

	rental, err := s.store.GetActiveRental(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get active rental: %w", err)
	}
	if rental == nil {
		return nil, &domain.ErrNotFound{Resource: "active rental", ID: tenantID}
	}

	rows, err := s.store.ListAnnouncements(ctx, rental.PropertyID, dashboardLimit)
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	return rows, nil
}

// UploadImage stores a tenant photo under {folder}/{uuid}.{ext}.
func (s *TenantService) UploadImage(ctx context.Context, folder string, f domain.ImageUpload) (_ *domain.StoredObject, err error) {
	ctx, span := tenantTracer.Start(ctx, "TenantService.UploadImage")
	defer span.End()
	defer track(s.metrics, "tenant.upload", time.Now(), &err)

	if s.storage == nil {
		return nil, &domain.ErrUnavailable{Feature: "image storage"}
	}
	if folder == "" {
		folder = defaultImageFolder
	}
	if !folderPattern.MatchString(folder) {
		return nil, &domain.ErrValidation{Field: "type", Message: "invalid image type"}
	}

	img, err := checkImage(f, s.maxBytes)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(path.Ext(safeName(f.Filename)))
	if ext == "" {
		ext = img.Extension
	}

	key := fmt.Sprintf("%s/%s%s", folder, uuid.NewString(), ext)
	obj, err := s.storage.PutObject(ctx, s.bucket, key, img.ContentType, img.Data)
	if err != nil {
		s.metrics.RecordUpload("image", domain.UploadFailed, 0)
		return nil, fmt.Errorf("store tenant image: %w", err)
	}
	s.metrics.RecordUpload("image", domain.UploadCompleted, int64(len(img.Data)))

	s.logger.Info("tenant image uploaded", zap.String("path", key))
	return obj, nil
}

// SubmitInquiry records a tenant question. callerID may be empty; the first
// user then stands in as the tenant.
func (s *TenantService) SubmitInquiry(ctx context.Context, callerID string, req *domain.SubmitInquiryRequest) (_ *domain.Inquiry, err error) {
	ctx, span := tenantTracer.Start(ctx, "TenantService.SubmitInquiry")
	defer span.End()
	defer track(s.metrics, "tenant.inquiry", time.Now(), &err)

	title, content := strings.TrimSpace(req.Title), strings.TrimSpace(req.Content)
	if title == "" {
		return nil, &domain.ErrValidation{Field: "title", Message: "title is required"}
	}
	if content == "" {
		return nil, &domain.ErrValidation{Field: "content", Message: "content is required"}
	}
	kind := req.Type
	if kind == "" {
		kind = defaultInquiryType
	}
	propertyID := req.PropertyID
	if propertyID == "" {
		propertyID = domain.NilUUID
	}
	images := req.Images
	if images == nil {
		images = []string{}
	}

	tenantID := callerID
	if tenantID == "" {
		tenantID, err = s.users.FirstUserID(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve tenant: %w", err)
		}
		if tenantID == "" {
			return nil, &domain.ErrUnavailable{Feature: "anonymous inquiries"}
		}
	}

	history, err := json.Marshal([]domain.ConversationMessage{{
		Role:    "user",
		Content: content,
		Metadata: &domain.ConversationContext{
			Type:    kind,
			Title:   title,
			Contact: req.Contact,
			Images:  images,
		},
	}})
	if err != nil {
		return nil, fmt.Errorf("encode conversation: %w", err)
	}

	inq, err := s.inquiries.CreateInquiry(ctx, &domain.NewInquiry{
		TenantID:            tenantID,
		PropertyID:          propertyID,
		Question:            fmt.Sprintf("[%s] %s", kind, title),
		Status:              "pending",
		ConversationHistory: string(history),
	})
	if err != nil {
		return nil, fmt.Errorf("create inquiry: %w", err)
	}

	s.logger.Info("inquiry submitted",
		zap.String("inquiry_id", inq.ID),
		zap.String("property_id", propertyID),
	)
	return inq, nil
}
