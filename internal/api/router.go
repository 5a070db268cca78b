package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mbarradev-debug/divisapp-sub000/pkg/logger"
)

// Router builds the chi router for h. metrics, when not nil, is mounted at
// /metrics.
func Router(h *Handler, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health/live", h.live)
	r.Get("/health/ready", h.ready)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/deliveries", h.createDelivery)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Put("/", h.putSubscription)
			r.Get("/", h.getSubscription)
			r.Delete("/", h.deleteSubscriptions)
			r.Post("/cleanup", h.cleanupExpired)
		})

		r.Get("/users/{userID}/subscriptions/active", h.activeSubscriptions)
		r.Get("/vapid/public-key", h.vapidPublicKey)
	})

	return r
}

// requestLogger logs one line per request.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.LogAttrs(r.Context(), slog.LevelDebug, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				logger.StatusCode(status),
				logger.Duration(time.Since(start)),
			)
		})
	}
}
