package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/infra/observability"
	"github.com/boddenberg/rental-api-go/internal/infra/resilience"
	"github.com/boddenberg/rental-api-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var uploadTracer = otel.Tracer("service/upload")

// UploadServiceConfig tunes an UploadService.
type UploadServiceConfig struct {
	ImageBucket        string
	MediaBucket        string
	MaxImageBytes      int64
	MaxMediaBytes      int64
	MaxConcurrentMedia int
}

// UploadService stores images and streams large media through resumable
// multipart uploads.
type UploadService struct {
	storage  port.ObjectStorage
	uploader port.MultipartUploader
	sessions port.UploadSessionStore
	cfg      UploadServiceConfig
	media    *resilience.Bulkhead

	mu      sync.Mutex
	running map[string]port.MultipartUpload

	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewUploadService creates an upload service. storage and uploader may be
// nil when object storage is not configured.
func NewUploadService(storage port.ObjectStorage, uploader port.MultipartUploader, sessions port.UploadSessionStore, cfg UploadServiceConfig, metrics *observability.Metrics, logger *zap.Logger) *UploadService {
	return &UploadService{
		storage:  storage,
		uploader: uploader,
		sessions: sessions,
		cfg:      cfg,
		media:    resilience.NewBulkhead(cfg.MaxConcurrentMedia),
		running:  make(map[string]port.MultipartUpload),
		metrics:  metrics,
		logger:   logger,
	}
}

// ============================================================
// Images: POST /api/upload/image
// ============================================================

// UploadImages validates every file first and then stores them in order.
func (s *UploadService) UploadImages(ctx context.Context, files []domain.ImageUpload) (_ []domain.StoredObject, err error) {
	ctx, span := uploadTracer.Start(ctx, "UploadService.UploadImages")
	defer span.End()
	span.SetAttributes(attribute.Int("files", len(files)))
	defer track(s.metrics, "upload.image", time.Now(), &err)

	if s.storage == nil {
		return nil, &domain.ErrUnavailable{Feature: "image storage"}
	}
	if len(files) == 0 {
		return nil, &domain.ErrValidation{Field: "file", Message: "no file uploaded"}
	}

	images := make([]*sniffedImage, 0, len(files))
	for _, f := range files {
		img, err := checkImage(f, s.cfg.MaxImageBytes)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	out := make([]domain.StoredObject, 0, len(images))
	for _, img := range images {
		key := fmt.Sprintf("banners/%d-%s-%s", time.Now().UnixMilli(), uuid.NewString()[:8], safeName(img.Filename))
		obj, err := s.storage.PutObject(ctx, s.cfg.ImageBucket, key, img.ContentType, img.Data)
		if err != nil {
			s.metrics.RecordUpload("image", domain.UploadFailed, 0)
			return nil, fmt.Errorf("store image: %w", err)
		}
		s.metrics.RecordUpload("image", domain.UploadCompleted, int64(len(img.Data)))
		out = append(out, *obj)
	}

	s.logger.Info("images uploaded", zap.Int("count", len(out)))
	return out, nil
}

// ============================================================
// Media: POST /api/upload/media
// ============================================================

// MediaFile is a large upload buffered by the handler.
type MediaFile struct {
	Filename    string
	ContentType string
	Size        int64
	Source      io.ReaderAt
}

// UploadMedia streams f to the media bucket and checkpoints its session.
// It returns once the upload reaches a terminal state.
func (s *UploadService) UploadMedia(ctx context.Context, p domain.Principal, f MediaFile) (_ *domain.MediaUploadResult, err error) {
	ctx, span := uploadTracer.Start(ctx, "UploadService.UploadMedia")
	defer span.End()
	span.SetAttributes(attribute.Int64("size", f.Size))
	defer track(s.metrics, "upload.media", time.Now(), &err)

	if s.uploader == nil || s.storage == nil {
		return nil, &domain.ErrUnavailable{Feature: "media storage"}
	}
	if !p.Is(domain.RoleLandlord, domain.RoleAdmin) {
		return nil, &domain.ErrForbidden{Action: "upload media"}
	}
	if f.Size <= 0 {
		return nil, &domain.ErrValidation{Field: "file", Message: "file is empty"}
	}
	if s.cfg.MaxMediaBytes > 0 && f.Size > s.cfg.MaxMediaBytes {
		return nil, &domain.ErrValidation{
			Field:   "file",
			Message: fmt.Sprintf("file exceeds the %d byte limit", s.cfg.MaxMediaBytes),
		}
	}
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if !s.media.TryAcquire() {
		return nil, &domain.ErrUnavailable{Feature: "media upload capacity"}
	}
	defer s.media.Release()

	now := time.Now().UTC()
	sess := &domain.UploadSession{
		ID:          uuid.NewString(),
		UserID:      p.UserID,
		Bucket:      s.cfg.MediaBucket,
		ObjectKey:   fmt.Sprintf("%s/%s-%s", p.UserID, uuid.NewString(), safeName(f.Filename)),
		ContentType: contentType,
		State:       domain.UploadWaiting,
		TotalBytes:  f.Size,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create upload session: %w", err)
	}
	span.SetAttributes(attribute.String("session_id", sess.ID))

	cp := &checkpoint{svc: s, sess: sess}
	up, err := s.uploader.NewMultipartUpload(port.MultipartRequest{
		Bucket:        sess.Bucket,
		Key:           sess.ObjectKey,
		ContentType:   contentType,
		Source:        f.Source,
		Size:          f.Size,
		OnProgress:    cp.progress,
		OnStateChange: cp.state,
	})
	if err != nil {
		cp.finish(domain.UploadFailed, err.Error(), "")
		return nil, err
	}
	cp.up = up

	s.register(sess.ID, up)
	defer s.unregister(sess.ID)

	obj, err := up.Start(ctx)
	final := up.State()
	s.metrics.RecordUpload("media", final, f.Size)

	if err != nil {
		cp.finish(final, err.Error(), up.UploadID())
		s.logger.Warn("media upload did not complete",
			zap.String("session_id", sess.ID),
			zap.String("state", string(final)),
			zap.Error(err),
		)
		return nil, err
	}

	cp.finish(domain.UploadCompleted, "", up.UploadID())
	s.logger.Info("media uploaded",
		zap.String("session_id", sess.ID),
		zap.String("key", sess.ObjectKey),
		zap.Int64("bytes", f.Size),
	)
	return &domain.MediaUploadResult{Session: cp.snapshot(), URL: obj.URL}, nil
}

func (s *UploadService) register(id string, up port.MultipartUpload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[id] = up
}

func (s *UploadService) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}

func (s *UploadService) lookup(id string) (port.MultipartUpload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.running[id]
	return up, ok
}

// checkpoint persists session changes reported by a running upload.
// Progress arrives from several workers at once.
type checkpoint struct {
	svc  *UploadService
	up   port.MultipartUpload
	mu   sync.Mutex
	sess *domain.UploadSession
}

func (c *checkpoint) progress(p domain.UploadProgress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.UploadedBytes <= c.sess.UploadedBytes {
		return
	}
	c.sess.UploadedBytes = p.UploadedBytes
	c.save()
}

func (c *checkpoint) state(state domain.UploadState, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess.State = state
	if state == domain.UploadFailed {
		c.sess.Error = msg
	}
	if c.up != nil && c.sess.UploadID == "" {
		c.sess.UploadID = c.up.UploadID()
	}
	c.save()
}

func (c *checkpoint) finish(state domain.UploadState, msg, uploadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess.State = state
	if msg != "" {
		c.sess.Error = msg
	}
	if uploadID != "" {
		c.sess.UploadID = uploadID
	}
	if state == domain.UploadCompleted {
		c.sess.UploadedBytes = c.sess.TotalBytes
	}
	c.save()
}

func (c *checkpoint) snapshot() *domain.UploadSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *c.sess
	return &cp
}

// save must be called with c.mu held. The session outlives the request
// context, so writes use a detached one.
func (c *checkpoint) save() {
	c.sess.UpdatedAt = time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.svc.sessions.UpdateSession(ctx, c.sess); err != nil {
		c.svc.logger.Warn("upload session checkpoint failed",
			zap.String("session_id", c.sess.ID),
			zap.Error(err),
		)
	}
}

// ============================================================
// Sessions: /api/upload/sessions/{id}
// ============================================================

// Session returns a persisted upload session owned by p.
func (s *UploadService) Session(ctx context.Context, p domain.Principal, id string) (*domain.UploadSession, error) {
	ctx, span := uploadTracer.Start(ctx, "UploadService.Session")
	defer span.End()

	sess, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Is(domain.RoleAdmin) {
		if err := ensureOwner(p, sess.UserID, "view upload session"); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// CancelSession aborts an upload that is still running in this process.
func (s *UploadService) CancelSession(ctx context.Context, p domain.Principal, id string) (*domain.UploadSession, error) {
	ctx, span := uploadTracer.Start(ctx, "UploadService.CancelSession")
	defer span.End()

	if _, err := s.Session(ctx, p, id); err != nil {
		return nil, err
	}

	up, ok := s.lookup(id)
	if !ok || !up.Cancel(ctx) {
		return nil, &domain.ErrValidation{Field: "id", Message: "upload session is not running"}
	}

	s.logger.Info("media upload cancelled",
		zap.String("session_id", id),
		zap.String("user_id", p.UserID),
	)
	return s.sessions.GetSession(ctx, id)
}
