package objectstore

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/infra/resilience"
	"github.com/boddenberg/rental-api-go/internal/port"
)

// S3 multipart limits.
const (
	MinPartSize int64 = 5 << 20
	MaxPartSize int64 = 5 << 30
	MaxParts          = 10000

	DefaultPartSize    = MinPartSize
	DefaultConcurrency = 5
	DefaultRetryRounds = 3
)

type partSpec struct {
	number int32
	offset int64
	size   int64
}

// Upload is one resumable multipart upload. The callbacks of its request may
// be invoked from several goroutines at once.
type Upload struct {
	store *Store
	req   port.MultipartRequest

	mu        sync.Mutex
	state     domain.UploadState
	uploadID  string
	done      map[int32]types.CompletedPart
	uploaded  int64         // confirmed bytes, resumed parts included
	speeds    []float64     // bytes/s of every attempted part, failures included
	resumeCh  chan struct{} // non-nil while paused
	cancelRun context.CancelFunc
}

// NewMultipartUpload prepares an upload in the waiting state. Nothing is sent
// until Start.
func (s *Store) NewMultipartUpload(req port.MultipartRequest) (port.MultipartUpload, error) {
	if req.Bucket == "" || req.Key == "" {
		return nil, &domain.ErrValidation{Field: "key", Message: "bucket and key are required"}
	}
	if req.Source == nil {
		return nil, &domain.ErrValidation{Field: "file", Message: "source is required"}
	}
	if req.Size <= 0 {
		return nil, &domain.ErrValidation{Field: "file", Message: "file is empty"}
	}
	return &Upload{
		store:    s,
		req:      req,
		state:    domain.UploadWaiting,
		uploadID: req.UploadID,
		done:     make(map[int32]types.CompletedPart),
	}, nil
}

// partSizeFor grows chunk by whole multiples until the remaining bytes fit in
// the parts still available.
func partSizeFor(remaining, chunk int64, uploadedParts int) (int64, error) {
	if chunk < MinPartSize {
		chunk = MinPartSize
	}
	if uploadedParts >= MaxParts {
		return 0, &domain.ErrValidation{Field: "file", Message: "part limit reached"}
	}
	size := chunk
	for ceilDiv(remaining, size)+int64(uploadedParts) > MaxParts {
		size += chunk
		if size > MaxPartSize {
			return 0, &domain.ErrValidation{Field: "file", Message: "file too large for multipart upload"}
		}
	}
	return size, nil
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

func (u *Upload) State() domain.UploadState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

func (u *Upload) UploadID() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.uploadID
}

// Pause stops workers from picking new parts. Parts in flight finish.
func (u *Upload) Pause() bool {
	u.mu.Lock()
	if u.state != domain.UploadRunning {
		u.mu.Unlock()
		return false
	}
	u.state = domain.UploadPaused
	u.resumeCh = make(chan struct{})
	u.mu.Unlock()

	u.notify(domain.UploadPaused, "paused")
	return true
}

func (u *Upload) Resume() bool {
	u.mu.Lock()
	if u.state != domain.UploadPaused {
		u.mu.Unlock()
		return false
	}
	u.state = domain.UploadRunning
	close(u.resumeCh)
	u.resumeCh = nil
	u.mu.Unlock()

	u.notify(domain.UploadRunning, "resumed")
	return true
}

// Cancel aborts the multipart upload and stops the workers.
func (u *Upload) Cancel(ctx context.Context) bool {
	u.mu.Lock()
	switch u.state {
	case domain.UploadWaiting, domain.UploadCancelled, domain.UploadFailed, domain.UploadCompleted:
		u.mu.Unlock()
		return false
	}
	u.state = domain.UploadCancelled
	if u.resumeCh != nil {
		close(u.resumeCh)
		u.resumeCh = nil
	}
	stop := u.cancelRun
	uploadID := u.uploadID
	u.mu.Unlock()

	if stop != nil {
		stop()
	}
	if uploadID != "" {
		_, err := u.store.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(u.req.Bucket),
			Key:      aws.String(u.req.Key),
			UploadId: aws.String(uploadID),
		})
		if err != nil {
			u.store.logger.Warn("objectstore: abort multipart failed",
				zap.String("key", u.req.Key),
				zap.String("upload_id", uploadID),
				zap.Error(err),
			)
		}
	}

	u.notify(domain.UploadCancelled, "cancelled")
	return true
}

// Start runs the upload to completion, failure or cancellation.
func (u *Upload) Start(ctx context.Context) (*domain.StoredObject, error) {
	ctx, span := tracer.Start(ctx, "ObjectStore.MultipartUpload")
	defer span.End()

	u.mu.Lock()
	if u.state != domain.UploadWaiting || u.cancelRun != nil {
		u.mu.Unlock()
		return nil, &domain.ErrValidation{Message: "upload already started"}
	}
	runCtx, cancel := context.WithCancel(ctx)
	u.cancelRun = cancel
	u.mu.Unlock()
	defer cancel()

	next := int32(1)
	if u.UploadID() != "" {
		n, err := u.loadParts(runCtx)
		if err != nil {
			return nil, u.fail(fmt.Sprintf("list parts: %v", err))
		}
		next = n
	} else if err := u.initiate(runCtx); err != nil {
		return nil, u.fail(fmt.Sprintf("initiate: %v", err))
	}
	if !u.transition(domain.UploadInited, "upload id "+u.UploadID(), domain.UploadWaiting) {
		return nil, u.stopped()
	}

	u.mu.Lock()
	remaining := u.req.Size - u.uploaded
	uploadedParts := len(u.done)
	u.mu.Unlock()

	if remaining > 0 {
		parts, err := u.plan(next, remaining, uploadedParts)
		if err != nil {
			return nil, u.fail(err.Error())
		}
		if !u.transition(domain.UploadRunning, fmt.Sprintf("%d parts", len(parts)), domain.UploadInited) {
			return nil, u.stopped()
		}
		if err := u.runRounds(runCtx, parts); err != nil {
			return nil, err
		}
	}

	return u.complete(runCtx)
}

func (u *Upload) initiate(ctx context.Context) error {
	in := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(u.req.Bucket),
		Key:    aws.String(u.req.Key),
	}
	if u.req.ContentType != "" {
		in.ContentType = aws.String(u.req.ContentType)
	}

	var out *s3.CreateMultipartUploadOutput
	err := resilience.Call(ctx, u.store.cb, u.store.cfg, func() error {
		var err error
		out, err = u.store.api.CreateMultipartUpload(ctx, in)
		return mapError(err, "create_multipart", u.req.Bucket, u.req.Key)
	})
	if err != nil {
		return err
	}

	u.mu.Lock()
	u.uploadID = aws.ToString(out.UploadId)
	u.mu.Unlock()
	return nil
}

// loadParts pages through the parts already uploaded and returns the next
// part number to use.
func (u *Upload) loadParts(ctx context.Context) (int32, error) {
	next := int32(1)
	var marker *string
	for {
		var out *s3.ListPartsOutput
		err := resilience.Call(ctx, u.store.cb, u.store.cfg, func() error {
			var err error
			out, err = u.store.api.ListParts(ctx, &s3.ListPartsInput{
				Bucket:           aws.String(u.req.Bucket),
				Key:              aws.String(u.req.Key),
				UploadId:         aws.String(u.UploadID()),
				PartNumberMarker: marker,
			})
			return mapError(err, "list_parts", u.req.Bucket, u.req.Key)
		})
		if err != nil {
			return 0, err
		}

		u.mu.Lock()
		for _, p := range out.Parts {
			num := aws.ToInt32(p.PartNumber)
			u.done[num] = types.CompletedPart{ETag: p.ETag, PartNumber: aws.Int32(num)}
			u.uploaded += aws.ToInt64(p.Size)
			if num >= next {
				next = num + 1
			}
		}
		u.mu.Unlock()

		if !aws.ToBool(out.IsTruncated) || out.NextPartNumberMarker == nil {
			break
		}
		marker = out.NextPartNumberMarker
	}

	u.store.logger.Info("objectstore: resuming multipart upload",
		zap.String("key", u.req.Key),
		zap.String("upload_id", u.UploadID()),
		zap.Int32("next_part", next),
	)
	return next, nil
}

func (u *Upload) plan(next int32, remaining int64, uploadedParts int) ([]partSpec, error) {
	size, err := partSizeFor(remaining, u.store.opts.PartSize, uploadedParts)
	if err != nil {
		return nil, err
	}

	parts := make([]partSpec, 0, ceilDiv(remaining, size))
	offset := u.req.Size - remaining
	for n := next; offset < u.req.Size; n++ {
		if n > MaxParts {
			return nil, &domain.ErrValidation{Field: "file", Message: "part limit reached"}
		}
		sz := min(size, u.req.Size-offset)
		parts = append(parts, partSpec{number: n, offset: offset, size: sz})
		offset += sz
	}
	return parts, nil
}

// runRounds uploads the queue, then re-queues failed parts with exponential
// backoff until they succeed or the retry rounds run out.
func (u *Upload) runRounds(ctx context.Context, parts []partSpec) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = u.store.opts.RetryBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	queue := parts
	for round := 0; ; round++ {
		failed := u.runParts(ctx, queue)
		if err := u.interrupted(ctx); err != nil {
			return err
		}
		if len(failed) == 0 {
			return nil
		}
		if round >= u.store.opts.RetryRounds {
			return u.fail(fmt.Sprintf("parts %v failed after %d retries", partNumbers(failed), round))
		}

		wait := b.NextBackOff()
		u.store.logger.Warn("objectstore: retrying failed parts",
			zap.String("key", u.req.Key),
			zap.Int("round", round+1),
			zap.Int32s("parts", partNumbers(failed)),
			zap.Duration("backoff", wait),
		)
		select {
		case <-ctx.Done():
			return u.interrupted(ctx)
		case <-time.After(wait):
		}
		queue = failed
	}
}

// runParts uploads queue through a bounded worker pool and returns the parts
// that failed. A failing part does not stop the others.
func (u *Upload) runParts(ctx context.Context, queue []partSpec) []partSpec {
	var g errgroup.Group
	g.SetLimit(u.store.opts.Concurrency)

	var mu sync.Mutex
	var failed []partSpec
	for _, p := range queue {
		if err := u.waitIfPaused(ctx); err != nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// a slot may free up only after Pause
			if u.waitIfPaused(ctx) != nil {
				return nil
			}
			start := time.Now()
			err := u.uploadPart(ctx, p)
			if ctx.Err() != nil {
				// cancelled: the part is neither retried nor reported
				return nil
			}
			u.recordSpeed(p.size, time.Since(start))
			if err != nil {
				mu.Lock()
				failed = append(failed, p)
				mu.Unlock()
			}
			u.reportProgress(false)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(failed, func(i, j int) bool { return failed[i].number < failed[j].number })
	return failed
}

func (u *Upload) uploadPart(ctx context.Context, p partSpec) error {
	out, err := u.store.api.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(u.req.Bucket),
		Key:           aws.String(u.req.Key),
		UploadId:      aws.String(u.UploadID()),
		PartNumber:    aws.Int32(p.number),
		Body:          io.NewSectionReader(u.req.Source, p.offset, p.size),
		ContentLength: aws.Int64(p.size),
	})
	if err != nil {
		err = mapError(err, "upload_part", u.req.Bucket, u.req.Key)
		if ctx.Err() == nil {
			u.store.logger.Warn("objectstore: part upload failed",
				zap.String("key", u.req.Key),
				zap.Int32("part", p.number),
				zap.Error(err),
			)
		}
		return err
	}

	u.mu.Lock()
	u.done[p.number] = types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(p.number)}
	u.uploaded += p.size
	u.mu.Unlock()
	return nil
}

func (u *Upload) complete(ctx context.Context) (*domain.StoredObject, error) {
	if err := u.waitIfPaused(ctx); err != nil {
		if ierr := u.interrupted(ctx); ierr != nil {
			return nil, ierr
		}
		return nil, u.fail(err.Error())
	}

	u.mu.Lock()
	parts := make([]types.CompletedPart, 0, len(u.done))
	for _, p := range u.done {
		parts = append(parts, p)
	}
	u.mu.Unlock()
	sort.Slice(parts, func(i, j int) bool {
		return aws.ToInt32(parts[i].PartNumber) < aws.ToInt32(parts[j].PartNumber)
	})

	if len(parts) == 0 {
		return nil, u.fail("no parts uploaded")
	}

	err := resilience.Call(ctx, u.store.cb, u.store.cfg, func() error {
		_, err := u.store.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:          aws.String(u.req.Bucket),
			Key:             aws.String(u.req.Key),
			UploadId:        aws.String(u.UploadID()),
			MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
		})
		return mapError(err, "complete_multipart", u.req.Bucket, u.req.Key)
	})
	if err != nil {
		if ierr := u.interrupted(ctx); ierr != nil {
			return nil, ierr
		}
		return nil, u.fail(fmt.Sprintf("complete: %v", err))
	}

	if !u.transition(domain.UploadCompleted, fmt.Sprintf("%d parts", len(parts)), domain.UploadRunning, domain.UploadInited) {
		return nil, u.stopped()
	}
	u.reportProgress(true)

	u.store.logger.Info("objectstore: multipart upload completed",
		zap.String("bucket", u.req.Bucket),
		zap.String("key", u.req.Key),
		zap.Int("parts", len(parts)),
		zap.Int64("size", u.req.Size),
	)
	return &domain.StoredObject{
		Bucket: u.req.Bucket,
		Key:    u.req.Key,
		URL:    u.store.PublicURL(u.req.Bucket, u.req.Key),
	}, nil
}

func (u *Upload) waitIfPaused(ctx context.Context) error {
	for {
		u.mu.Lock()
		ch, state := u.resumeCh, u.state
		u.mu.Unlock()

		if state == domain.UploadCancelled {
			return context.Canceled
		}
		if ch == nil {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// transition moves to state when the current state is one of from.
func (u *Upload) transition(state domain.UploadState, msg string, from ...domain.UploadState) bool {
	u.mu.Lock()
	ok := false
	for _, f := range from {
		if u.state == f {
			ok = true
			break
		}
	}
	if ok {
		u.state = state
	}
	u.mu.Unlock()

	if ok {
		u.notify(state, msg)
	}
	return ok
}

// interrupted reports a cancellation or a dead context as the matching terminal error.
func (u *Upload) interrupted(ctx context.Context) error {
	if u.State() == domain.UploadCancelled {
		return &domain.ErrUpload{State: domain.UploadCancelled, Message: "upload cancelled"}
	}
	if err := ctx.Err(); err != nil {
		return u.fail(err.Error())
	}
	return nil
}

// stopped returns the error for a transition refused because the upload
// left the expected state.
func (u *Upload) stopped() error {
	state := u.State()
	if state == domain.UploadCancelled {
		return &domain.ErrUpload{State: state, Message: "upload cancelled"}
	}
	return &domain.ErrUpload{State: state, Message: "unexpected state"}
}

func (u *Upload) fail(msg string) error {
	u.mu.Lock()
	if u.state == domain.UploadCancelled {
		u.mu.Unlock()
		return &domain.ErrUpload{State: domain.UploadCancelled, Message: "upload cancelled"}
	}
	u.state = domain.UploadFailed
	u.mu.Unlock()

	u.store.logger.Error("objectstore: multipart upload failed",
		zap.String("key", u.req.Key),
		zap.String("upload_id", u.UploadID()),
		zap.String("reason", msg),
	)
	u.notify(domain.UploadFailed, msg)
	return &domain.ErrUpload{State: domain.UploadFailed, Message: msg}
}

func (u *Upload) notify(state domain.UploadState, msg string) {
	u.store.logger.Debug("objectstore: upload state",
		zap.String("key", u.req.Key),
		zap.String("state", string(state)),
		zap.String("message", msg),
	)
	if u.req.OnStateChange != nil {
		u.req.OnStateChange(state, msg)
	}
}

func (u *Upload) recordSpeed(size int64, elapsed time.Duration) {
	if elapsed <= 0 {
		elapsed = time.Microsecond
	}
	u.mu.Lock()
	u.speeds = append(u.speeds, float64(size)/elapsed.Seconds())
	u.mu.Unlock()
}

// reportProgress publishes progress with speed as the mean of the per-part
// speeds measured so far.
func (u *Upload) reportProgress(final bool) {
	if u.req.OnProgress == nil {
		return
	}

	u.mu.Lock()
	uploaded := u.uploaded
	var sum float64
	for _, v := range u.speeds {
		sum += v
	}
	var speed float64
	if len(u.speeds) > 0 {
		speed = math.Round(sum / float64(len(u.speeds)))
	}
	u.mu.Unlock()

	total := u.req.Size
	progress := math.Round(float64(uploaded)/float64(total)*10000) / 10000
	if final {
		progress = 1
		uploaded = total
	}
	u.req.OnProgress(domain.UploadProgress{
		UploadedBytes: uploaded,
		TotalBytes:    total,
		Progress:      progress,
		Percent:       fmt.Sprintf("%.2f%%", progress*100),
		Speed:         speed,
	})
}

func partNumbers(parts []partSpec) []int32 {
	out := make([]int32, len(parts))
	for i, p := range parts {
		out[i] = p.number
	}
	return out
}
