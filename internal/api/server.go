package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/VenkatGGG/idempotency-coordinator/internal/idempotency"
	"github.com/VenkatGGG/idempotency-coordinator/internal/order"
	"github.com/VenkatGGG/idempotency-coordinator/pkg/httpx"
)

type Server struct {
	orders         order.Service
	coordinator    *idempotency.Coordinator
	logger         *slog.Logger
	registry       *prometheus.Registry
	httpMetrics    *httpMetrics
	validate       *validator.Validate
	idempotency    idempotency.Options
	requiredAPIKey string
	rateLimiter    *scopedLimiter
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRegistry sets the registry served on /metrics. HTTP collectors are
// registered on it.
func WithRegistry(registry *prometheus.Registry) ServerOption {
	return func(s *Server) {
		s.registry = registry
	}
}

// WithIdempotencyDefaults sets the header, TTLs and conflict wait shared by
// every idempotent route. Route-specific fields are overridden per route.
func WithIdempotencyDefaults(opts idempotency.Options) ServerOption {
	return func(s *Server) {
		s.idempotency = opts
	}
}

func WithAPIKey(key string) ServerOption {
	return func(s *Server) {
		s.requiredAPIKey = key
	}
}

// WithRateLimit limits mutating requests per client, route and window. A limit <= 0 disables it.
func WithRateLimit(limit int, window time.Duration) ServerOption {
	return func(s *Server) {
		if limit <= 0 {
			s.rateLimiter = nil
			return
		}
		s.rateLimiter = newScopedLimiter(limit, window)
	}
}

func NewServer(orders order.Service, coordinator *idempotency.Coordinator, opts ...ServerOption) *Server {
	s := &Server{
		orders:      orders,
		coordinator: coordinator,
		logger:      slog.Default(),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		idempotency: idempotency.Options{HeaderName: idempotency.DefaultHeaderName, TTL: time.Hour},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.httpMetrics = newHTTPMetrics(s.registry)
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.httpMetrics.middleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metricsHandler())

	r.Route("/v1/orders", func(r chi.Router) {
		r.With(s.withAPISecurity("orders")).Post("/", s.Idempotent(s.createOrderOptions(), s.handleCreateOrder))
		r.Get("/{orderID}", s.handleGetOrder)
		r.With(s.withAPISecurity("order-cancel")).Post("/{orderID}/cancel", s.Idempotent(s.cancelOrderOptions(), s.handleCancelOrder))
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
