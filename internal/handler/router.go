package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mir00r/lb-simulator/internal/middleware"
	"github.com/mir00r/lb-simulator/pkg/logger"
)

// RouterOptions lists the handlers mounted by NewRouter. Nil handlers are
// skipped.
type RouterOptions struct {
	Admin       *AdminHandler
	Config      *ConfigHandler
	Health      *HealthHandler
	Metrics     *PrometheusHandler
	MetricsPath string
	RateLimiter *middleware.RateLimiter
	Logger      *logger.Logger
}

// NewRouter builds the HTTP handler of the control API. The rate limiter only
// guards /api/v1; health checks and metrics are never throttled.
func NewRouter(opts RouterOptions) http.Handler {
	router := mux.NewRouter()

	if opts.Health != nil {
		router.HandleFunc("/liveness", opts.Health.LivenessHandler).Methods(http.MethodGet)
		router.HandleFunc("/readiness", opts.Health.ReadinessHandler).Methods(http.MethodGet)
	}

	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.HandleFunc(path, opts.Metrics.MetricsHandler).Methods(http.MethodGet)
	}

	api := router.NewRoute().Subrouter()
	if opts.RateLimiter != nil {
		api.Use(mux.MiddlewareFunc(opts.RateLimiter.RateLimitMiddleware()))
	}
	if opts.Config != nil {
		opts.Config.RegisterRoutes(api)
	}
	if opts.Admin != nil {
		opts.Admin.RegisterRoutes(api)
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RecoveryMiddleware(opts.Logger),
		middleware.LoggingMiddleware(opts.Logger),
		middleware.CORSMiddleware(),
	}

	var finalHandler http.Handler = router
	for i := len(middlewares) - 1; i >= 0; i-- {
		finalHandler = middlewares[i](finalHandler)
	}
	return finalHandler
}
