package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"marketplace-billing/internal/config"
	"marketplace-billing/internal/infra/logging"
	"marketplace-billing/internal/infra/metrics"
	infraredis "marketplace-billing/internal/infra/redis"
	"marketplace-billing/internal/usecase"
)

// Webhook endpoint guard against redelivery storms from a single source.
const (
	webhookRateLimit  = 300
	webhookRateWindow = time.Minute
)

type Server struct {
	checkoutUC usecase.CheckoutUseCase
	returnUC   usecase.ReturnUseCase
	webhookUC  usecase.WebhookUseCase

	limiter       *infraredis.RateLimiter
	webhookSecret string
	secureCookies bool

	log    *zerolog.Logger
	server *http.Server
}

func NewServer(
	cfg *config.Config,
	checkoutUC usecase.CheckoutUseCase,
	returnUC usecase.ReturnUseCase,
	webhookUC usecase.WebhookUseCase,
	limiter *infraredis.RateLimiter,
	logger *zerolog.Logger,
) *Server {
	s := &Server{
		checkoutUC:    checkoutUC,
		returnUC:      returnUC,
		webhookUC:     webhookUC,
		limiter:       limiter,
		webhookSecret: cfg.Gateway.WebhookSecret,
		secureCookies: !cfg.Runtime.Dev,
		log:           logger,
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(traceContext)
	r.Use(s.metricsMiddleware)

	r.Post("/api/v1/checkout/session", s.handleCheckoutCreate)
	r.Get("/api/v1/payment/return", s.handlePaymentReturn)
	r.With(s.webhookRateLimiter).Post("/api/v1/webhook/payments", s.handleWebhook)
	r.Post("/api/v1/subscription/basic", s.handleBasicTier)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// traceContext carries the request id into the logging context so use-case
// log lines correlate with the HTTP access layer.
func traceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(logging.WithTraceID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.ObserveHTTP(route, r.Method, ww.Status(), float64(time.Since(start).Milliseconds()))
	})
}

// webhookRateLimiter is fail-open: a Redis fault must not drop gateway events.
func (s *Server) webhookRateLimiter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		allowed, err := s.limiter.Allow(r.Context(), infraredis.WebhookSourceKey(host), webhookRateLimit, webhookRateWindow)
		if err != nil {
			s.log.Warn().Err(err).Msg("webhook rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			metrics.IncWebhookRejected("rate_limited")
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
