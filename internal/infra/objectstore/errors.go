package objectstore

import (
	"context"
	"errors"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/infra/resilience"
)

// mapError converts S3 SDK errors into domain errors. Client errors are
// marked permanent so they are not retried.
func mapError(err error, op, bucket, key string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ErrTimeout{Operation: "storage/" + op}
	}

	objectNotFound := &domain.ErrNotFound{Resource: "object", ID: bucket + "/" + key}

	var noSuchKey *types.NoSuchKey
	var noSuchUpload *types.NoSuchUpload
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &noSuchUpload) || errors.As(err, &notFound) {
		return objectNotFound
	}
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return &domain.ErrNotFound{Resource: "bucket", ID: bucket}
	}

	// operations without modeled errors surface generic API errors
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchUpload", "NotFound":
			return objectNotFound
		case "NoSuchBucket":
			return &domain.ErrNotFound{Resource: "bucket", ID: bucket}
		}
	}

	wrapped := &domain.ErrExternalService{Service: "storage/" + op, Err: err}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch status := respErr.HTTPStatusCode(); {
		case status == http.StatusNotFound:
			return objectNotFound
		case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
			return wrapped
		case status >= 400 && status < 500:
			return resilience.Permanent(wrapped)
		}
	}
	return wrapped
}
