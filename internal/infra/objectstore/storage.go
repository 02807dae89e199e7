package objectstore

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/infra/resilience"
)

// Options tunes a Store. Zero values take the defaults.
type Options struct {
	// PublicURL is the base for public object URLs, e.g.
	// https://<ref>.supabase.co/storage/v1/object/public
	PublicURL string

	PartSize     int64
	Concurrency  int
	RetryRounds  int
	RetryBackoff time.Duration
}

// Store implements single-shot object writes and resumable multipart uploads.
type Store struct {
	api       API
	cb        *gobreaker.CircuitBreaker
	cfg       resilience.Config
	publicURL string
	opts      Options
	logger    *zap.Logger
}

// NewStore creates a Store over an S3 API.
func NewStore(api API, cb *gobreaker.CircuitBreaker, cfg resilience.Config, opts Options, logger *zap.Logger) *Store {
	if opts.PartSize <= 0 {
		opts.PartSize = DefaultPartSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.RetryRounds <= 0 {
		opts.RetryRounds = DefaultRetryRounds
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	return &Store{
		api:       api,
		cb:        cb,
		cfg:       cfg,
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		opts:      opts,
		logger:    logger,
	}
}

// PutObject writes body under bucket/key and returns its public location.
func (s *Store) PutObject(ctx context.Context, bucket, key, contentType string, body []byte) (*domain.StoredObject, error) {
	ctx, span := tracer.Start(ctx, "ObjectStore.PutObject")
	defer span.End()

	err := resilience.Call(ctx, s.cb, s.cfg, func() error {
		_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(body),
			ContentLength: aws.Int64(int64(len(body))),
			ContentType:   aws.String(contentType),
		})
		return mapError(err, "put_object", bucket, key)
	})
	if err != nil {
		s.logger.Error("objectstore: put failed",
			zap.String("bucket", bucket),
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Debug("objectstore: put OK",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("size", len(body)),
	)
	return &domain.StoredObject{Bucket: bucket, Key: key, URL: s.PublicURL(bucket, key)}, nil
}

func (s *Store) DeleteObject(ctx context.Context, bucket, key string) error {
	ctx, span := tracer.Start(ctx, "ObjectStore.DeleteObject")
	defer span.End()

	return resilience.Call(ctx, s.cb, s.cfg, func() error {
		_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return mapError(err, "delete_object", bucket, key)
	})
}

// PublicURL returns the public URL of an object. Key segments are escaped
// individually so "/" separators survive.
func (s *Store) PublicURL(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicURL + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

// Ping checks that the bucket is reachable.
func (s *Store) Ping(ctx context.Context, bucket string) error {
	ctx, span := tracer.Start(ctx, "ObjectStore.Ping")
	defer span.End()

	_, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	return mapError(err, "head_bucket", bucket, "")
}
