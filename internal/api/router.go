package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/logging"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/metrics"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/timeparse"
)

type RouterConfig struct {
	Appointments AppointmentService
	Correlation  CorrelationReader
	Engine       EventHandler
	Cipher       FieldCipher
	Times        *timeparse.Normalizer

	Postgres Pinger
	Redis    Pinger

	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	Logger         *logging.Logger

	// AdminJWTSecret enables the /admin routes when set.
	AdminJWTSecret string
	// WebhookRateLimit is requests per second per client IP; 0 disables it.
	WebhookRateLimit float64
	WebhookRateBurst int

	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	times := cfg.Times
	if times == nil {
		times = timeparse.New()
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Group(func(hooks chi.Router) {
		if cfg.WebhookRateLimit > 0 {
			hooks.Use(NewIPRateLimiter(cfg.WebhookRateLimit, cfg.WebhookRateBurst, logger).Middleware)
		}
		handle := webhookHandler(cfg.Engine, cfg.Metrics, logger)
		hooks.Post("/webhook", handle)
		hooks.Post("/webhook/vapi", handle)
	})

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Appointments, cfg.Cipher, times))
		r.Get("/", listAppointmentsHandler(cfg.Appointments))
		r.Get("/{id}", getAppointmentHandler(cfg.Appointments))
		r.Patch("/{id}", updateAppointmentHandler(cfg.Appointments, cfg.Cipher, times))
		r.Delete("/{id}", deleteAppointmentHandler(cfg.Appointments))
	})

	if cfg.AdminJWTSecret != "" {
		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminJWT(cfg.AdminJWTSecret))
			r.Use(adminAudit(logger))
			r.Get("/appointments", adminListAppointmentsHandler(cfg.Appointments, cfg.Cipher))
			r.Get("/appointments/{id}", adminGetAppointmentHandler(cfg.Appointments, cfg.Cipher))
			r.Get("/call-logs", adminListCallLogsHandler(cfg.Correlation, cfg.Cipher))
			r.Get("/call-logs/{id}", adminGetCallLogHandler(cfg.Correlation, cfg.Cipher))
			r.Get("/calls/{callID}/state", adminCallStateHandler(cfg.Correlation))
		})
	}

	return r
}

// adminAudit records who read decrypted data.
func adminAudit(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := AdminClaimsFromContext(r.Context())
			logger.WithRequestID(GetRequestID(r.Context())).Info("admin read", "subject", claims.Subject, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}
