package objectstore

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/infra/resilience"
	"github.com/boddenberg/rental-api-go/internal/port"
)

// newFakeS3 starts an in-memory S3 server with the given buckets.
func newFakeS3(t *testing.T, buckets ...string) *s3.Client {
	t.Helper()

	backend := s3mem.New()
	for _, b := range buckets {
		require.NoError(t, backend.CreateBucket(b))
	}
	ts := httptest.NewServer(gofakes3.New(backend).Server())
	t.Cleanup(ts.Close)

	client, err := NewS3Client(context.Background(), ClientConfig{
		Endpoint:     ts.URL,
		Region:       "us-east-1",
		AccessKey:    "test",
		SecretKey:    "test",
		UsePathStyle: true,
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func newTestStore(api API, opts Options) *Store {
	if opts.PublicURL == "" {
		opts.PublicURL = "https://cdn.example.com/storage/v1/object/public/"
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Millisecond
	}
	return NewStore(api, resilience.NewCircuitBreaker("storage-test"),
		resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}, opts, zap.NewNop())
}

func TestStore_PutAndDelete(t *testing.T) {
	client := newFakeS3(t, "public-images")
	store := newTestStore(client, Options{})
	ctx := context.Background()

	obj, err := store.PutObject(ctx, "public-images", "banners/1-a b.png", "image/png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "banners/1-a b.png", obj.Key)
	assert.Equal(t, "https://cdn.example.com/storage/v1/object/public/public-images/banners/1-a%20b.png", obj.URL)

	got, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String("public-images"),
		Key:    aws.String("banners/1-a b.png"),
	})
	require.NoError(t, err)
	defer got.Body.Close()
	body, _ := io.ReadAll(got.Body)
	assert.Equal(t, "png-bytes", string(body))

	require.NoError(t, store.DeleteObject(ctx, "public-images", "banners/1-a b.png"))
}

func TestStore_PutMissingBucket(t *testing.T) {
	client := newFakeS3(t)
	store := newTestStore(client, Options{})

	_, err := store.PutObject(context.Background(), "nope", "k", "text/plain", []byte("x"))
	require.Error(t, err)
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestStore_Ping(t *testing.T) {
	client := newFakeS3(t, "media")
	store := newTestStore(client, Options{})

	assert.NoError(t, store.Ping(context.Background(), "media"))
	assert.Error(t, store.Ping(context.Background(), "missing"))
}

func TestMultipart_AgainstFakeS3(t *testing.T) {
	client := newFakeS3(t, "media")
	store := newTestStore(client, Options{})

	data := bytes.Repeat([]byte("r"), int(MinPartSize)+1024)
	var states []domain.UploadState
	var last domain.UploadProgress
	up, err := store.NewMultipartUpload(port.MultipartRequest{
		Bucket:        "media",
		Key:           "u1/video.mp4",
		ContentType:   "video/mp4",
		Source:        bytes.NewReader(data),
		Size:          int64(len(data)),
		OnProgress:    func(p domain.UploadProgress) { last = p },
		OnStateChange: func(s domain.UploadState, _ string) { states = append(states, s) },
	})
	require.NoError(t, err)

	obj, err := up.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1/video.mp4", obj.Key)
	assert.Equal(t, domain.UploadCompleted, up.State())
	assert.Equal(t, []domain.UploadState{domain.UploadInited, domain.UploadRunning, domain.UploadCompleted}, states)
	assert.Equal(t, 1.0, last.Progress)
	assert.Equal(t, "100.00%", last.Percent)

	head, err := client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String("media"),
		Key:    aws.String("u1/video.mp4"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), aws.ToInt64(head.ContentLength))
}
