package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
	Error       string `json:"error,omitempty"`
}

// ServiceMetrics is returned by GET /api/admin/metrics.
type ServiceMetrics struct {
	UploadsCompleted float64 `json:"uploadsCompleted"`
	UploadsFailed    float64 `json:"uploadsFailed"`
	UploadsCancelled float64 `json:"uploadsCancelled"`
	UploadedBytes    float64 `json:"uploadedBytes"`
	PropertyViews    float64 `json:"propertyViews"`
	ViewsDropped     float64 `json:"viewsDropped"`
	ExternalErrors   float64 `json:"externalErrors"`
	CacheHitRate     float64 `json:"cacheHitRate"`
	Period           string  `json:"period"`
}
