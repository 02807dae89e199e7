package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// JWT / Auth
	JWTSecret     string
	JWTAccessTTL  time.Duration
	JWTRefreshTTL time.Duration

	// Dev mode
	DevAuth bool // DEV_AUTH=true derives WeChat openids locally when no app id is set

	// WeChat mini-program
	WechatAppID     string
	WechatAppSecret string
	WechatAPIURL    string

	// Object storage (Supabase Storage S3 endpoint)
	StorageEndpoint     string
	StorageRegion       string
	StorageAccessKey    string
	StorageSecretKey    string
	StoragePublicURL    string
	StorageUsePathStyle bool

	// Buckets
	BucketPublicImages   string
	BucketPropertyImages string
	BucketTenantImages   string
	BucketMedia          string

	// Uploads
	MaxUploadBytes       int64
	MaxMediaUploadBytes  int64
	MultipartPartSize    int64
	MultipartConcurrency int
	UploadSessionDSN     string

	// Misc
	GuestTenantID      string
	CORSAllowedOrigins []string
	ViewCountWorkers   int
}

// Load reads a .env file (if present) and then configuration from
// environment variables with defaults. Variables already set in the
// environment win over the .env file.
func Load() *Config {
	_ = godotenv.Load()

	supabaseURL := strings.TrimRight(getEnv("SUPABASE_URL", ""), "/")

	return &Config{
		Port:     getEnvInt("PORT", 3000),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL: getEnvDuration("CACHE_TTL", 30*time.Second),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		SupabaseURL:        supabaseURL,
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		JWTSecret:     getEnv("JWT_SECRET", "rental-default-dev-secret-change-me"),
		JWTAccessTTL:  getEnvDuration("JWT_EXPIRES_IN", 7*24*time.Hour),
		JWTRefreshTTL: getEnvDuration("JWT_REFRESH_TTL", 30*24*time.Hour),

		DevAuth: getEnvBool("DEV_AUTH", false),

		WechatAppID:     getEnv("WECHAT_APP_ID", ""),
		WechatAppSecret: getEnv("WECHAT_APP_SECRET", ""),
		WechatAPIURL:    getEnv("WECHAT_API_URL", "https://api.weixin.qq.com"),

		StorageEndpoint:     getEnv("STORAGE_S3_ENDPOINT", supabaseURL+"/storage/v1/s3"),
		StorageRegion:       getEnv("STORAGE_REGION", "us-east-1"),
		StorageAccessKey:    getEnv("STORAGE_ACCESS_KEY", ""),
		StorageSecretKey:    getEnv("STORAGE_SECRET_KEY", ""),
		StoragePublicURL:    getEnv("STORAGE_PUBLIC_URL", supabaseURL+"/storage/v1/object/public"),
		StorageUsePathStyle: getEnvBool("STORAGE_USE_PATH_STYLE", true),

		BucketPublicImages:   getEnv("BUCKET_PUBLIC_IMAGES", "public-images"),
		BucketPropertyImages: getEnv("BUCKET_PROPERTY_IMAGES", "property-images"),
		BucketTenantImages:   getEnv("BUCKET_TENANT_IMAGES", "images"),
		BucketMedia:          getEnv("BUCKET_MEDIA", "media"),

		MaxUploadBytes:       getEnvInt64("MAX_UPLOAD_BYTES", 10<<20),
		MaxMediaUploadBytes:  getEnvInt64("MAX_MEDIA_UPLOAD_BYTES", 512<<20),
		MultipartPartSize:    getEnvInt64("MULTIPART_PART_SIZE", 5<<20),
		MultipartConcurrency: getEnvInt("MULTIPART_CONCURRENCY", 5),
		UploadSessionDSN:     getEnv("UPLOAD_SESSION_DSN", "file:upload_sessions.db?cache=shared&_foreign_keys=on"),

		GuestTenantID:      getEnv("GUEST_TENANT_ID", ""),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		ViewCountWorkers:   getEnvInt("VIEW_COUNT_WORKERS", 8),
	}
}

// SupabaseEnabled reports whether the PostgREST backend is configured.
func (c *Config) SupabaseEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

// StorageEnabled reports whether S3 credentials for object storage are configured.
func (c *Config) StorageEnabled() bool {
	return c.StorageEndpoint != "" && c.StorageAccessKey != "" && c.StorageSecretKey != ""
}

// WechatEnabled reports whether jscode2session can be called.
func (c *Config) WechatEnabled() bool {
	return c.WechatAppID != "" && c.WechatAppSecret != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
