package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/infra/observability"
	"github.com/boddenberg/rental-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// HealthProbe is one dependency checked by /healthz.
type HealthProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps holds everything the router serves. A nil Auth service means the
// data backend is not configured and every /api route answers 503.
type Deps struct {
	Auth         *service.AuthService
	Properties   *service.PropertyService
	Appointments *service.AppointmentService
	Inquiries    *service.InquiryService
	Banners      *service.BannerService
	Homepage     *service.HomepageService
	Guides       *service.GuideService
	Stats        *service.StatsService
	Tenant       *service.TenantService
	Uploads      *service.UploadService

	Probes []HealthProbe

	CORSOrigins         []string
	MaxUploadBytes      int64
	MaxMediaUploadBytes int64
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(deps Deps, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/", rootHandler())
	r.Get("/healthz", healthzHandler(deps.Probes, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		if deps.Auth == nil {
			r.HandleFunc("/*", unavailableHandler(logger))
			return
		}

		requireAuth := RequireAuth(deps.Auth, logger)
		optionalAuth := OptionalAuth(deps.Auth)
		landlordOnly := RequireRole(domain.RoleLandlord)

		// =============================================
		// Auth
		// =============================================
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login/password", passwordLoginHandler(deps.Auth, logger))
			r.Post("/login/wechat", wechatLoginHandler(deps.Auth, logger))
			r.Post("/register/landlord", registerLandlordHandler(deps.Auth, logger))
			r.Post("/register", registerHandler(deps.Auth, logger))
			r.Post("/refresh", refreshHandler(deps.Auth, logger))
			r.Get("/test-db", testDBHandler(deps.Auth, logger))

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/logout", logoutHandler(deps.Auth, logger))
				r.Get("/me", meHandler(deps.Auth, logger))
			})
		})

		// =============================================
		// Properties
		// =============================================
		r.Route("/properties", func(r chi.Router) {
			r.Get("/", listPropertiesHandler(deps.Properties, logger))
			r.Get("/public/{id}", getPublicPropertyHandler(deps.Properties, logger))
			r.Get("/{id}", getPropertyHandler(deps.Properties, logger))

			r.Group(func(r chi.Router) {
				r.Use(requireAuth, landlordOnly)
				r.Post("/", createPropertyHandler(deps.Properties, logger))
				r.Put("/{id}", updatePropertyHandler(deps.Properties, logger))
				r.Delete("/{id}", deletePropertyHandler(deps.Properties, logger))
				r.Put("/{id}/status", updatePropertyStatusHandler(deps.Properties, logger))
				r.With(limitBody(10*deps.MaxUploadBytes)).
					Post("/{id}/images", uploadPropertyImagesHandler(deps.Properties, deps.MaxUploadBytes, logger))
			})
		})

		// =============================================
		// Appointments
		// =============================================
		r.Route("/appointments", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(optionalAuth)
				create := createAppointmentHandler(deps.Appointments, logger)
				r.Post("/", create)
				r.Post("/public", create)
				r.Post("/appointmentsmessage", create)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/", listAppointmentsHandler(deps.Appointments, logger))
				r.Get("/{id}", getAppointmentHandler(deps.Appointments, logger))
				r.With(landlordOnly).Put("/{id}/status", updateAppointmentStatusHandler(deps.Appointments, logger))
			})
		})

		// =============================================
		// Inquiries
		// =============================================
		r.Route("/inquiries", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", listInquiriesHandler(deps.Inquiries, logger))
			r.Get("/{id}", getInquiryHandler(deps.Inquiries, logger))
		})

		// =============================================
		// Banners
		// =============================================
		r.Route("/banners", func(r chi.Router) {
			r.Get("/", listBannersHandler(deps.Banners, logger))

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", createBannerHandler(deps.Banners, logger))
				r.Put("/{id}", updateBannerHandler(deps.Banners, logger))
				r.Post("/update", updateBannerHandler(deps.Banners, logger))
				r.Delete("/{id}", deleteBannerHandler(deps.Banners, logger))
				r.Post("/delete", deleteBannerHandler(deps.Banners, logger))
				r.Post("/reorder", reorderBannersHandler(deps.Banners, logger))
			})
		})

		// =============================================
		// Homepage & rental guides
		// =============================================
		r.Get("/homepage", homepageHandler(deps.Homepage, logger))
		r.Get("/rental-guides/{type}", rentalGuidesHandler(deps.Guides, logger))

		// =============================================
		// Landlord statistics
		// =============================================
		r.Route("/stats", func(r chi.Router) {
			r.Use(requireAuth, landlordOnly)
			r.Get("/overview", statsOverviewHandler(deps.Stats, logger))
			r.Get("/properties/{id}", propertyStatsHandler(deps.Stats, logger))
		})

		// =============================================
		// Tenant dashboard
		// =============================================
		r.Route("/tenant", func(r chi.Router) {
			r.Use(optionalAuth)
			r.Get("/rental/current", currentRentalHandler(deps.Tenant, logger))
			r.Get("/bills/summary", billsSummaryHandler(deps.Tenant, logger))
			r.Get("/maintenance/recent", recentMaintenanceHandler(deps.Tenant, logger))
			r.Get("/announcements/recent", recentAnnouncementsHandler(deps.Tenant, logger))
			r.With(limitBody(deps.MaxUploadBytes)).
				Post("/upload-image", tenantUploadImageHandler(deps.Tenant, deps.MaxUploadBytes, logger))
			r.Post("/inquiry/submit", submitInquiryHandler(deps.Tenant, logger))
		})

		// =============================================
		// Uploads
		// =============================================
		r.Route("/upload", func(r chi.Router) {
			r.Use(requireAuth)
			r.With(limitBody(10*deps.MaxUploadBytes)).
				Post("/image", uploadImagesHandler(deps.Uploads, deps.MaxUploadBytes, logger))
			r.With(limitBody(10*deps.MaxUploadBytes)).
				Post("/test", uploadTestHandler(logger))
			r.With(RequireRole(domain.RoleLandlord, domain.RoleAdmin), limitBody(deps.MaxMediaUploadBytes)).
				Post("/media", uploadMediaHandler(deps.Uploads, logger))
			r.Get("/sessions/{id}", getUploadSessionHandler(deps.Uploads, logger))
			r.Delete("/sessions/{id}", cancelUploadSessionHandler(deps.Uploads, logger))
		})

		// =============================================
		// Admin
		// =============================================
		r.With(requireAuth, RequireRole(domain.RoleAdmin)).
			Get("/admin/metrics", adminMetricsHandler(metrics))
	})

	return cors.New(cors.Options{
		AllowedOrigins: deps.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(r)
}

// limitBody caps the request body, leaving room for multipart framing.
func limitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, n+1<<20)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================
// Operational
// ============================================================

func rootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("Rental MiniProgram Backend is running!"))
	}
}

func healthzHandler(probes []HealthProbe, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "rental-api", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		for _, p := range probes {
			start := time.Now()
			err := p.Check(ctx)
			health := domain.ServiceHealth{
				Name:        p.Name,
				Status:      "healthy",
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			}
			if err != nil {
				logger.Warn("health probe failed", zap.String("probe", p.Name), zap.Error(err))
				health.Status = "degraded"
				health.Error = err.Error()
			}
			services = append(services, health)
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func unavailableHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Warn("api called without a data backend", zap.String("path", r.URL.Path))
		writeError(w, http.StatusServiceUnavailable, "data backend not configured")
	}
}

func adminMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, http.StatusOK, envelope{"data": metrics.Snapshot()})
	}
}
