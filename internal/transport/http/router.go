package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"foodtrace/internal/bootstrap"
	"foodtrace/internal/platform/metrics"
	"foodtrace/internal/platform/middleware"
)

// NewRouter assembles the full HTTP surface over a provisioned system.
// Administrative registry routes sit behind the admin bearer token; all other
// routes identify the caller from the X-Caller-Identity header, matching the
// implicit-caller model of the core.
func NewRouter(sys *bootstrap.System, admin middleware.AdminValidator, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Latency(m))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Admission is keyed per caller identity; anonymous reads share a bucket
	// per remote address.
	limiter := middleware.NewSlidingWindow(300, time.Minute)

	identityHandler := NewIdentityHandler(sys.Identities, logger)
	productHandler := NewProductHandler(sys.Products, logger)
	shipmentHandler := NewShipmentHandler(sys.Shipments, logger)
	traceHandler := NewTraceHandler(sys.Trace, logger)
	notificationHandler := NewNotificationHandler(sys.Notifications, logger)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(adminRoutes chi.Router) {
			adminRoutes.Use(middleware.ContentTypeJSON)
			adminRoutes.Use(middleware.RequireAdmin(admin, logger))
			identityHandler.RegisterAdmin(adminRoutes)
		})
		api.Group(func(open chi.Router) {
			open.Use(middleware.CallerIdentity)
			open.Use(middleware.RateLimit(limiter))
			open.Use(middleware.ContentTypeJSON)
			identityHandler.Register(open)
			productHandler.Register(open)
			shipmentHandler.Register(open)
			traceHandler.Register(open)
			notificationHandler.Register(open)
		})
	})

	return r
}
