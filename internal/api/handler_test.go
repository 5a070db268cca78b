package api_test

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mbarradev-debug/divisapp-sub000/internal/api"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/logger"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/webpush"
)

type MockDeliverer struct {
	mock.Mock
}

func (m *MockDeliverer) Dispatch(ctx context.Context, req webpush.DeliveryRequest) (webpush.DeliveryResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(webpush.DeliveryResult), args.Error(1)
}

func (m *MockDeliverer) HasActiveSubscriptions(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

type MockCleaner struct {
	mock.Mock
}

func (m *MockCleaner) CleanupInvalidSubscriptions(ctx context.Context, result webpush.DeliveryResult) webpush.CleanupReport {
	return m.Called(ctx, result).Get(0).(webpush.CleanupReport)
}

func (m *MockCleaner) CleanupExpiredSubscriptions(ctx context.Context) webpush.CleanupReport {
	return m.Called(ctx).Get(0).(webpush.CleanupReport)
}

func (m *MockCleaner) CleanupSubscriptionsByID(ctx context.Context, ids []string) webpush.CleanupReport {
	return m.Called(ctx, ids).Get(0).(webpush.CleanupReport)
}

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Meta  map[string]any   `json:"meta"`
	Error *api.ErrorDetail `json:"error"`
}

type fixture struct {
	deliverer *MockDeliverer
	cleaner   *MockCleaner
	store     *webpush.MemoryStore
	router    http.Handler
}

func newFixture(t *testing.T, opts ...api.Option) *fixture {
	t.Helper()
	f := &fixture{
		deliverer: new(MockDeliverer),
		cleaner:   new(MockCleaner),
		store:     webpush.NewMemoryStore(),
	}
	t.Cleanup(func() {
		f.deliverer.AssertExpectations(t)
		f.cleaner.AssertExpectations(t)
	})
	h := api.NewHandler(f.deliverer, f.cleaner, f.store, "BPublicKey", opts...)
	f.router = api.Router(h, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("metrics"))
	}))
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "test-agent")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func subscriptionJSON(t *testing.T, endpoint string) string {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	b, err := json.Marshal(map[string]any{
		"endpoint":       endpoint,
		"expirationTime": nil,
		"keys": map[string]string{
			"p256dh": base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
			"auth":   base64.RawURLEncoding.EncodeToString(auth),
		},
		"userId": "user-1",
	})
	require.NoError(t, err)
	return string(b)
}

func TestCreateDelivery(t *testing.T) {
	t.Parallel()

	const body = `{"eventId":"evt-1","userId":"user-1","notification":{"title":"Hi","body":"there"}}`

	t.Run("delivers and cleans up", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		result := webpush.Aggregate("evt-1", []webpush.AttemptResult{
			{SubscriptionID: "https://push.example.com/a", Success: true, StatusCode: 201},
			{SubscriptionID: "https://push.example.com/b", ErrorCode: webpush.CodeExpiredSubscription, ShouldRemoveSubscription: true, StatusCode: 410},
		})
		f.deliverer.On("Dispatch", mock.Anything, mock.MatchedBy(func(r webpush.DeliveryRequest) bool {
			return r.EventID == "evt-1" && r.Notification.Title == "Hi"
		})).Return(result, nil).Once()
		f.cleaner.On("CleanupInvalidSubscriptions", mock.Anything, result).
			Return(webpush.CleanupReport{Removed: 1, FailedIDs: []string{}}).Once()

		rec, env := f.do(t, http.MethodPost, "/v1/deliveries", body)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, env.Error)

		var got webpush.DeliveryResult
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, 2, got.TotalAttempts)
		assert.Equal(t, 1, got.SuccessCount)
		assert.Equal(t, []string{"https://push.example.com/b"}, got.SubscriptionsToRemove)
		assert.Equal(t, map[string]any{"removed": float64(1), "failedIds": []any{}}, env.Meta["cleanup"])
	})

	t.Run("expired event answers conflict with skipped result", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		skipped := webpush.Aggregate("evt-1", nil)
		skipped.Skipped = true
		f.deliverer.On("Dispatch", mock.Anything, mock.Anything).Return(skipped, webpush.ErrEventExpired).Once()

		rec, env := f.do(t, http.MethodPost, "/v1/deliveries", body)
		require.Equal(t, http.StatusConflict, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "event_expired", env.Error.Code)

		var got webpush.DeliveryResult
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.True(t, got.Skipped)
		assert.Zero(t, got.TotalAttempts)
	})

	errorCases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid event", fmt.Errorf("%w: notification.title is required", webpush.ErrInvalidEvent), http.StatusUnprocessableEntity, "invalid_event"},
		{"payload too large", webpush.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge, "payload_too_large"},
		{"authentication", fmt.Errorf("%w: bad key", webpush.ErrAuthentication), http.StatusInternalServerError, "authentication_failed"},
		{"unmapped", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.deliverer.On("Dispatch", mock.Anything, mock.Anything).Return(webpush.DeliveryResult{}, tc.err).Once()

			rec, env := f.do(t, http.MethodPost, "/v1/deliveries", body)
			assert.Equal(t, tc.status, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.code, env.Error.Code)
			if tc.status >= http.StatusInternalServerError {
				assert.NotContains(t, env.Error.Message, "bad key")
			}
		})
	}

	bindCases := []struct {
		name        string
		contentType string
		body        string
		status      int
		code        string
	}{
		{"wrong content type", "text/plain", body, http.StatusUnsupportedMediaType, "unsupported_media_type"},
		{"malformed json", "application/json", `{"eventId":`, http.StatusBadRequest, "invalid_json"},
		{"unknown field", "application/json", `{"eventId":"e","bogus":1}`, http.StatusBadRequest, "invalid_json"},
		{"trailing data", "application/json", body + `{}`, http.StatusBadRequest, "invalid_json"},
		{"empty body", "application/json", "", http.StatusBadRequest, "invalid_json"},
		{"too large", "application/json", `{"eventId":"` + strings.Repeat("x", 1<<20) + `"}`, http.StatusRequestEntityTooLarge, "body_too_large"},
	}
	for _, tc := range bindCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			req := httptest.NewRequest(http.MethodPost, "/v1/deliveries", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", tc.contentType)
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			var env envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.code, env.Error.Code)
		})
	}
}

func TestSubscriptions(t *testing.T) {
	t.Parallel()

	t.Run("put then get", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		body := subscriptionJSON(t, "https://push.example.com/a")

		rec, env := f.do(t, http.MethodPut, "/v1/subscriptions", body)
		require.Equal(t, http.StatusOK, rec.Code)
		var stored webpush.Subscription
		require.NoError(t, json.Unmarshal(env.Data, &stored))
		assert.Equal(t, "https://push.example.com/a", stored.Endpoint)
		assert.Equal(t, "test-agent", stored.UserAgent)
		assert.False(t, stored.CreatedAt.IsZero())

		rec, env = f.do(t, http.MethodGet, "/v1/subscriptions?endpoint=https://push.example.com/a", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var found webpush.Subscription
		require.NoError(t, json.Unmarshal(env.Data, &found))
		assert.Equal(t, "user-1", found.UserID)
	})

	t.Run("put is an upsert", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.do(t, http.MethodPut, "/v1/subscriptions", subscriptionJSON(t, "https://push.example.com/a"))
		rec, _ := f.do(t, http.MethodPut, "/v1/subscriptions", subscriptionJSON(t, "https://push.example.com/a"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, f.store.Len())
	})

	t.Run("put rejects invalid keys", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		rec, env := f.do(t, http.MethodPut, "/v1/subscriptions",
			`{"endpoint":"https://push.example.com/a","keys":{"p256dh":"AAAA","auth":"AAAA"}}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "invalid_subscription", env.Error.Code)
		assert.Zero(t, f.store.Len())
	})

	t.Run("get requires endpoint", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		rec, env := f.do(t, http.MethodGet, "/v1/subscriptions", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "missing_parameter", env.Error.Code)
		assert.Contains(t, env.Error.Message, "endpoint is required")
	})

	t.Run("get unknown", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		rec, env := f.do(t, http.MethodGet, "/v1/subscriptions?endpoint=https://push.example.com/none", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "not_found", env.Error.Code)
	})

	t.Run("delete by ids", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ids := []string{"https://push.example.com/a", "https://push.example.com/b"}
		f.cleaner.On("CleanupSubscriptionsByID", mock.Anything, ids).
			Return(webpush.CleanupReport{Removed: 2, FailedIDs: []string{}}).Once()

		rec, env := f.do(t, http.MethodDelete, "/v1/subscriptions", `{"ids":["https://push.example.com/a","https://push.example.com/b"]}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"removed":2,"failedIds":[]}`, string(env.Data))
	})

	t.Run("delete requires ids", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		rec, env := f.do(t, http.MethodDelete, "/v1/subscriptions", `{"ids":[]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "missing_parameter", env.Error.Code)
	})

	t.Run("cleanup expired", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.cleaner.On("CleanupExpiredSubscriptions", mock.Anything).
			Return(webpush.CleanupReport{Removed: 3, FailedIDs: []string{"x"}}).Once()

		rec, env := f.do(t, http.MethodPost, "/v1/subscriptions/cleanup", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"removed":3,"failedIds":["x"]}`, string(env.Data))
	})

	t.Run("cleanup expired listing failure", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.cleaner.On("CleanupExpiredSubscriptions", mock.Anything).
			Return(webpush.CleanupReport{FailedIDs: []string{}, Err: errors.New("db down")}).Once()

		rec, env := f.do(t, http.MethodPost, "/v1/subscriptions/cleanup", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "internal_error", env.Error.Code)
	})
}

func TestActiveSubscriptions(t *testing.T) {
	t.Parallel()

	t.Run("active", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.deliverer.On("HasActiveSubscriptions", mock.Anything, "user-1").Return(true, nil).Once()

		rec, env := f.do(t, http.MethodGet, "/v1/users/user-1/subscriptions/active", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"userId":"user-1","active":true}`, string(env.Data))
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.deliverer.On("HasActiveSubscriptions", mock.Anything, "user-1").Return(false, errors.New("db down")).Once()

		rec, _ := f.do(t, http.MethodGet, "/v1/users/user-1/subscriptions/active", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestPublicEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("vapid public key", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		rec, env := f.do(t, http.MethodGet, "/v1/vapid/public-key", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"publicKey":"BPublicKey"}`, string(env.Data))
	})

	t.Run("live", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		rec, env := f.do(t, http.MethodGet, "/health/live", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"alive"}`, string(env.Data))
	})

	t.Run("ready", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, api.WithProbe("postgres", func(context.Context) error { return nil }))
		rec, env := f.do(t, http.MethodGet, "/health/ready", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ready"}`, string(env.Data))
	})

	t.Run("not ready lists failed probes", func(t *testing.T) {
		t.Parallel()
		down := func(context.Context) error { return errors.New("down") }
		f := newFixture(t,
			api.WithProbe("redis", down),
			api.WithProbe("postgres", down),
			api.WithProbe("kafka", func(context.Context) error { return nil }),
		)
		rec, env := f.do(t, http.MethodGet, "/health/ready", "")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"status":"not_ready","failed":["postgres","redis"]}`, string(env.Data))
		require.NotNil(t, env.Error)
		assert.Equal(t, "not_ready", env.Error.Code)
	})

	t.Run("metrics", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		rec, _ := f.do(t, http.MethodGet, "/metrics", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "metrics", rec.Body.String())
	})

	t.Run("request id reaches handler logs", func(t *testing.T) {
		t.Parallel()
		var logs bytes.Buffer
		log := logger.New(
			logger.WithOutput(&logs),
			logger.WithContextValue("request_id", middleware.RequestIDKey),
		)
		f := newFixture(t, api.WithLogger(log))
		req := httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil)
		req.Header.Set(middleware.RequestIDHeader, "req-42")
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, logs.String(), `"request_id":"req-42"`)
	})
}
