// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"io"
	"time"

	"github.com/boddenberg/rental-api-go/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// UserStore persists users and their refresh tokens.
// Lookups return (nil, nil) when nothing matches.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string, role domain.Role) (*domain.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*domain.User, error)
	GetUserByOpenID(ctx context.Context, openID string) (*domain.User, error)
	FirstUserID(ctx context.Context) (string, error)
	CreateUser(ctx context.Context, u *domain.NewUser) (*domain.User, error)
	UpdateUser(ctx context.Context, id string, updates map[string]any) error

	StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*domain.AuthRefreshToken, error)
	// RevokeRefreshToken reports whether this call revoked a live token.
	RevokeRefreshToken(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllRefreshTokens(ctx context.Context, userID string) error

	Ping(ctx context.Context) error
}

// PropertyStore persists rental listings.
type PropertyStore interface {
	ListProperties(ctx context.Context, f domain.PropertyFilter) (*domain.PropertyList, error)
	ListPropertiesByLandlord(ctx context.Context, landlordID string) ([]domain.Property, error)
	ListHotProperties(ctx context.Context, limit int) ([]domain.Property, error)
	GetProperty(ctx context.Context, id string) (*domain.Property, error)
	CreateProperty(ctx context.Context, fields map[string]any) (*domain.Property, error)
	UpdateProperty(ctx context.Context, id string, fields map[string]any) (*domain.Property, error)
	DeleteProperty(ctx context.Context, id string) error
	IncrementViewCount(ctx context.Context, id string) error
}

// AppointmentStore persists viewing appointments.
type AppointmentStore interface {
	CreateAppointment(ctx context.Context, a *domain.Appointment) (*domain.Appointment, error)
	ListAppointments(ctx context.Context, f domain.AppointmentFilter) ([]domain.Appointment, error)
	ListAppointmentsByProperties(ctx context.Context, propertyIDs []string) ([]domain.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*domain.Appointment, error)
	UpdateAppointment(ctx context.Context, id string, fields map[string]any) (*domain.Appointment, error)
}

// InquiryStore persists tenant inquiries.
type InquiryStore interface {
	ListInquiries(ctx context.Context, f domain.InquiryFilter) ([]domain.Inquiry, error)
	GetInquiry(ctx context.Context, id string) (*domain.Inquiry, error)
	CreateInquiry(ctx context.Context, in *domain.NewInquiry) (*domain.Inquiry, error)
}

// BannerStore persists homepage banners.
type BannerStore interface {
	ListBanners(ctx context.Context, limit int) ([]domain.Banner, error)
	GetBanner(ctx context.Context, id string) (*domain.Banner, error)
	MaxBannerOrder(ctx context.Context) (int, error)
	CreateBanner(ctx context.Context, fields map[string]any) (*domain.Banner, error)
	UpdateBanner(ctx context.Context, id string, fields map[string]any) error
	DeleteBanner(ctx context.Context, id string) error
}

// ContentStore serves read-only editorial content.
type ContentStore interface {
	ListTopics(ctx context.Context, limit int) ([]domain.Topic, error)
	ListRentalGuides(ctx context.Context, t domain.GuideType) ([]domain.RentalGuide, error)
}

// TenantStore serves the tenant dashboard.
type TenantStore interface {
	GetActiveRental(ctx context.Context, tenantID string) (*domain.Rental, error)
	ListBills(ctx context.Context, tenantID string, limit int) ([]domain.Bill, error)
	ListMaintenanceRequests(ctx context.Context, tenantID string, limit int) ([]domain.MaintenanceRequest, error)
	ListAnnouncements(ctx context.Context, propertyID string, limit int) ([]domain.Announcement, error)
}

// ObjectStorage writes single-shot objects and builds their public URLs.
type ObjectStorage interface {
	PutObject(ctx context.Context, bucket, key, contentType string, body []byte) (*domain.StoredObject, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	PublicURL(bucket, key string) string
	Ping(ctx context.Context, bucket string) error
}

// MultipartRequest describes one resumable upload.
type MultipartRequest struct {
	Bucket      string
	Key         string
	ContentType string
	Source      io.ReaderAt
	Size        int64
	// UploadID resumes an upload initiated earlier.
	UploadID string

	OnProgress    func(domain.UploadProgress)
	OnStateChange func(state domain.UploadState, message string)
}

// MultipartUpload is a running (or runnable) resumable upload.
type MultipartUpload interface {
	Start(ctx context.Context) (*domain.StoredObject, error)
	Pause() bool
	Resume() bool
	Cancel(ctx context.Context) bool
	State() domain.UploadState
	UploadID() string
}

// MultipartUploader creates resumable uploads.
type MultipartUploader interface {
	NewMultipartUpload(req MultipartRequest) (MultipartUpload, error)
}

// UploadSessionStore checkpoints large media uploads.
type UploadSessionStore interface {
	CreateSession(ctx context.Context, s *domain.UploadSession) error
	UpdateSession(ctx context.Context, s *domain.UploadSession) error
	GetSession(ctx context.Context, id string) (*domain.UploadSession, error)
}

// WechatAuthenticator exchanges a mini-program login code for a session.
type WechatAuthenticator interface {
	Code2Session(ctx context.Context, code string) (*domain.WechatSession, error)
}
