package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mbarradev-debug/divisapp-sub000/pkg/logger"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/webpush"
)

// Deliverer runs deliveries. *webpush.Dispatcher satisfies it.
type Deliverer interface {
	Dispatch(ctx context.Context, req webpush.DeliveryRequest) (webpush.DeliveryResult, error)
	HasActiveSubscriptions(ctx context.Context, userID string) (bool, error)
}

// Cleaner removes subscriptions. *webpush.Cleaner satisfies it.
type Cleaner interface {
	CleanupInvalidSubscriptions(ctx context.Context, result webpush.DeliveryResult) webpush.CleanupReport
	CleanupExpiredSubscriptions(ctx context.Context) webpush.CleanupReport
	CleanupSubscriptionsByID(ctx context.Context, ids []string) webpush.CleanupReport
}

// Probe reports whether a dependency is usable.
type Probe func(ctx context.Context) error

// Handler serves the push API.
type Handler struct {
	deliverer Deliverer
	cleaner   Cleaner
	store     webpush.Store
	publicKey string
	probes    map[string]Probe
	logger    *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithProbe adds a readiness check reported under name.
func WithProbe(name string, p Probe) Option {
	return func(h *Handler) {
		if p != nil {
			h.probes[name] = p
		}
	}
}

// NewHandler creates a Handler. publicKey is the VAPID application server
// key handed to browsers when they subscribe.
func NewHandler(d Deliverer, c Cleaner, store webpush.Store, publicKey string, opts ...Option) *Handler {
	h := &Handler{
		deliverer: d,
		cleaner:   c,
		store:     store,
		publicKey: publicKey,
		probes:    make(map[string]Probe),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(logger.Component("api"))
	return h
}

func (h *Handler) createDelivery(w http.ResponseWriter, r *http.Request) {
	var req webpush.DeliveryRequest
	if err := bindJSON(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	result, err := h.deliverer.Dispatch(r.Context(), req)
	if errors.Is(err, webpush.ErrEventExpired) {
		status, detail := errorDetail(err)
		writeJSON(w, status, Response{Data: result, Error: detail})
		return
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	report := h.cleaner.CleanupInvalidSubscriptions(r.Context(), result)
	respond(w, http.StatusOK, result, map[string]any{"cleanup": report})
}

func (h *Handler) putSubscription(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	sub, err := webpush.ParseSubscription(data)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if sub.UserAgent == "" {
		sub.UserAgent = r.UserAgent()
	}

	if err := h.store.Upsert(r.Context(), sub); err != nil {
		h.respondError(w, r, err)
		return
	}
	stored, err := h.store.FindByEndpoint(r.Context(), sub.Endpoint)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, stored, nil)
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.TrimSpace(r.URL.Query().Get("endpoint"))
	if endpoint == "" {
		h.respondError(w, r, errMissing("endpoint"))
		return
	}
	sub, err := h.store.FindByEndpoint(r.Context(), endpoint)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, sub, nil)
}

type deleteSubscriptionsRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) deleteSubscriptions(w http.ResponseWriter, r *http.Request) {
	var req deleteSubscriptionsRequest
	if err := bindJSON(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if len(req.IDs) == 0 {
		h.respondError(w, r, errMissing("ids"))
		return
	}
	respond(w, http.StatusOK, h.cleaner.CleanupSubscriptionsByID(r.Context(), req.IDs), nil)
}

func (h *Handler) cleanupExpired(w http.ResponseWriter, r *http.Request) {
	report := h.cleaner.CleanupExpiredSubscriptions(r.Context())
	if report.Err != nil {
		h.respondError(w, r, report.Err)
		return
	}
	respond(w, http.StatusOK, report, nil)
}

func (h *Handler) activeSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	active, err := h.deliverer.HasActiveSubscriptions(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"userId": userID, "active": active}, nil)
}

func (h *Handler) vapidPublicKey(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{"publicKey": h.publicKey}, nil)
}

func (h *Handler) live(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "alive"}, nil)
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	failed := make([]string, 0)
	for name, probe := range h.probes {
		if err := probe(r.Context()); err != nil {
			h.logger.LogAttrs(r.Context(), slog.LevelError, "readiness check failed",
				slog.String("probe", name),
				logger.Error(err),
			)
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)

	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, Response{
			Data:  map[string]any{"status": "not_ready", "failed": failed},
			Error: &ErrorDetail{Code: "not_ready", Message: "one or more dependencies are unavailable"},
		})
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ready"}, nil)
}

func errMissing(name string) error {
	return fmt.Errorf("%w: %s is required", ErrMissingParameter, name)
}
