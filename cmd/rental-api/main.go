package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/rental-api-go/internal/config"
	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/handler"
	"github.com/boddenberg/rental-api-go/internal/infra/cache"
	"github.com/boddenberg/rental-api-go/internal/infra/client"
	"github.com/boddenberg/rental-api-go/internal/infra/objectstore"
	"github.com/boddenberg/rental-api-go/internal/infra/observability"
	"github.com/boddenberg/rental-api-go/internal/infra/resilience"
	"github.com/boddenberg/rental-api-go/internal/infra/sessionstore"
	"github.com/boddenberg/rental-api-go/internal/infra/supabase"
	"github.com/boddenberg/rental-api-go/internal/port"
	"github.com/boddenberg/rental-api-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Config (.env is read first for local development) ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, "rental-api")
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("supabase", cfg.SupabaseEnabled()),
		zap.Bool("storage", cfg.StorageEnabled()),
		zap.Bool("wechat", cfg.WechatEnabled()),
		zap.Bool("dev_auth", cfg.DevAuth),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.Duration("jwt_refresh_ttl", cfg.JWTRefreshTTL),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "rental-api")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	homepageCache := cache.New[*domain.Homepage](cfg.CacheTTL)
	defer homepageCache.Close()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var probes []handler.HealthProbe

	var supabaseClient *supabase.Client
	if cfg.SupabaseEnabled() {
		logger.Info("using Supabase as data backend", zap.String("supabase_url", cfg.SupabaseURL))
		supabaseClient = supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			resilienceCfg,
			logger,
		)
		probes = append(probes, handler.HealthProbe{Name: "supabase", Check: supabaseClient.Ping})
	} else {
		logger.Warn("Supabase not configured, /api routes unavailable")
	}

	var storage port.ObjectStorage
	var uploader port.MultipartUploader
	if cfg.StorageEnabled() {
		s3Client, err := objectstore.NewS3Client(context.Background(), objectstore.ClientConfig{
			Endpoint:     cfg.StorageEndpoint,
			Region:       cfg.StorageRegion,
			AccessKey:    cfg.StorageAccessKey,
			SecretKey:    cfg.StorageSecretKey,
			UsePathStyle: cfg.StorageUsePathStyle,
			HTTPClient:   &http.Client{},
		}, logger)
		if err != nil {
			logger.Fatal("failed to create S3 client", zap.Error(err))
		}
		store := objectstore.NewStore(s3Client, resilience.NewCircuitBreaker("storage"), resilienceCfg, objectstore.Options{
			PublicURL:   cfg.StoragePublicURL,
			PartSize:    cfg.MultipartPartSize,
			Concurrency: cfg.MultipartConcurrency,
		}, logger)
		storage, uploader = store, store
		probes = append(probes, handler.HealthProbe{
			Name:  "storage",
			Check: func(ctx context.Context) error { return store.Ping(ctx, cfg.BucketPublicImages) },
		})
		logger.Info("object storage enabled", zap.String("endpoint", cfg.StorageEndpoint))
	} else {
		logger.Warn("object storage not configured, upload routes unavailable")
	}

	sessions, err := sessionstore.Open(cfg.UploadSessionDSN)
	if err != nil {
		logger.Fatal("failed to open upload session store", zap.Error(err))
	}
	defer sessions.Close()
	if err := sessions.Init(context.Background()); err != nil {
		logger.Fatal("failed to init upload session store", zap.Error(err))
	}
	probes = append(probes, handler.HealthProbe{Name: "upload-sessions", Check: sessions.Ping})

	var wechat port.WechatAuthenticator
	if cfg.WechatEnabled() {
		wechat = client.NewWechatClient(httpClient, cfg.WechatAPIURL, cfg.WechatAppID, cfg.WechatAppSecret,
			resilience.NewCircuitBreaker("wechat"), resilienceCfg, logger)
		logger.Info("wechat login enabled")
	}

	// --- Services ---
	deps := handler.Deps{
		Probes:              probes,
		CORSOrigins:         cfg.CORSAllowedOrigins,
		MaxUploadBytes:      cfg.MaxUploadBytes,
		MaxMediaUploadBytes: cfg.MaxMediaUploadBytes,
	}

	var propertySvc *service.PropertyService
	if supabaseClient != nil {
		propertySvc = service.NewPropertyService(supabaseClient, storage, service.PropertyServiceConfig{
			ImageBucket:      cfg.BucketPropertyImages,
			MaxImageBytes:    cfg.MaxUploadBytes,
			ViewCountWorkers: cfg.ViewCountWorkers,
		}, metrics, logger)

		deps.Auth = service.NewAuthService(supabaseClient, wechat, cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, cfg.DevAuth, logger)
		deps.Properties = propertySvc
		deps.Appointments = service.NewAppointmentService(supabaseClient, supabaseClient, supabaseClient, cfg.GuestTenantID, metrics, logger)
		deps.Inquiries = service.NewInquiryService(supabaseClient, supabaseClient, metrics, logger)
		deps.Banners = service.NewBannerService(supabaseClient, homepageCache, metrics, logger)
		deps.Homepage = service.NewHomepageService(supabaseClient, supabaseClient, supabaseClient, homepageCache, metrics, logger)
		deps.Guides = service.NewGuideService(supabaseClient)
		deps.Stats = service.NewStatsService(supabaseClient, supabaseClient, supabaseClient, metrics, logger)
		deps.Tenant = service.NewTenantService(supabaseClient, supabaseClient, supabaseClient, storage, service.TenantServiceConfig{
			ImageBucket:   cfg.BucketTenantImages,
			MaxImageBytes: cfg.MaxUploadBytes,
		}, metrics, logger)
		deps.Uploads = service.NewUploadService(storage, uploader, sessions, service.UploadServiceConfig{
			ImageBucket:        cfg.BucketPublicImages,
			MediaBucket:        cfg.BucketMedia,
			MaxImageBytes:      cfg.MaxUploadBytes,
			MaxMediaBytes:      cfg.MaxMediaUploadBytes,
			MaxConcurrentMedia: cfg.MaxConcurrency,
		}, metrics, logger)
		logger.Info("rental services enabled with Supabase store")
	}

	// --- Router ---
	router := handler.NewRouter(deps, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}
	if propertySvc != nil {
		if err := propertySvc.Drain(ctx); err != nil {
			logger.Warn("view count increments still pending", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}
