package domain

import "time"

// UploadState is the lifecycle state of a multipart upload.
type UploadState string

const (
	UploadWaiting   UploadState = "waiting"
	UploadInited    UploadState = "inited"
	UploadRunning   UploadState = "running"
	UploadPaused    UploadState = "paused"
	UploadCompleted UploadState = "completed"
	UploadCancelled UploadState = "cancelled"
	UploadFailed    UploadState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s UploadState) Terminal() bool {
	return s == UploadCompleted || s == UploadCancelled || s == UploadFailed
}

// UploadProgress is reported after every part.
type UploadProgress struct {
	UploadedBytes int64   `json:"uploaded_bytes"`
	TotalBytes    int64   `json:"total_bytes"`
	Progress      float64 `json:"progress"`
	Percent       string  `json:"percent"`
	Speed         float64 `json:"speed"`
}

// UploadSession is the persisted checkpoint of a large media upload.
type UploadSession struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	Bucket        string      `json:"bucket"`
	ObjectKey     string      `json:"object_key"`
	UploadID      string      `json:"upload_id,omitempty"`
	ContentType   string      `json:"content_type"`
	State         UploadState `json:"state"`
	TotalBytes    int64       `json:"total_bytes"`
	UploadedBytes int64       `json:"uploaded_bytes"`
	Error         string      `json:"error,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// MediaUploadResult is returned by POST /api/upload/media.
type MediaUploadResult struct {
	Session *UploadSession `json:"session"`
	URL     string         `json:"url,omitempty"`
}

// ImageUpload is one file received through a multipart form.
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// StoredObject describes an object written to the object store.
type StoredObject struct {
	Bucket string `json:"bucket"`
	Key    string `json:"path"`
	URL    string `json:"url"`
}

// FileInfo echoes a received file without storing it.
type FileInfo struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Field       string `json:"field"`
}
