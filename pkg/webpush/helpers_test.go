package webpush_test

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mbarradev-debug/divisapp-sub000/pkg/webpush"
)

// MockStore is a testify mock of webpush.Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Upsert(ctx context.Context, sub webpush.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *MockStore) FindByEndpoint(ctx context.Context, endpoint string) (webpush.Subscription, error) {
	args := m.Called(ctx, endpoint)
	return args.Get(0).(webpush.Subscription), args.Error(1)
}

func (m *MockStore) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	args := m.Called(ctx, endpoint)
	return args.Error(0)
}

func (m *MockStore) DeleteByEndpoints(ctx context.Context, endpoints []string) (int, error) {
	args := m.Called(ctx, endpoints)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) ListByUser(ctx context.Context, userID string) ([]webpush.Subscription, error) {
	args := m.Called(ctx, userID)
	if v := args.Get(0); v != nil {
		return v.([]webpush.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) ListExpired(ctx context.Context, now time.Time) ([]webpush.Subscription, error) {
	args := m.Called(ctx, now)
	if v := args.Get(0); v != nil {
		return v.([]webpush.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

// browser holds the user agent side of a subscription.
type browser struct {
	private *ecdh.PrivateKey
	auth    []byte
	sub     webpush.Subscription
}

func newBrowser(t *testing.T, endpoint, userID string) browser {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	return browser{
		private: priv,
		auth:    auth,
		sub: webpush.Subscription{
			Endpoint: endpoint,
			UserID:   userID,
			Keys: webpush.Keys{
				P256dh: base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
				Auth:   base64.RawURLEncoding.EncodeToString(auth),
			},
		},
	}
}

// pushRequest is what the fake push service received.
type pushRequest struct {
	Path   string
	Header http.Header
	Body   []byte
}

// pushService is an httptest push service answering with a status per path.
type pushService struct {
	*httptest.Server

	mu       sync.Mutex
	requests []pushRequest
	statuses map[string]int
	header   http.Header
}

func newPushService(t *testing.T, statuses map[string]int) *pushService {
	t.Helper()
	ps := &pushService{statuses: statuses, header: http.Header{}}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ps.mu.Lock()
		ps.requests = append(ps.requests, pushRequest{Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
		status, ok := ps.statuses[r.URL.Path]
		for k, v := range ps.header {
			w.Header()[k] = v
		}
		ps.mu.Unlock()
		if !ok {
			status = http.StatusCreated
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *pushService) endpoint(path string) string {
	return ps.URL + path
}

func (ps *pushService) received() []pushRequest {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	out := make([]pushRequest, len(ps.requests))
	copy(out, ps.requests)
	return out
}

// request returns the latest request received for path.
func (ps *pushService) request(t *testing.T, path string) pushRequest {
	t.Helper()
	received := ps.received()
	for i := len(received) - 1; i >= 0; i-- {
		if received[i].Path == path {
			return received[i]
		}
	}
	t.Fatalf("no request received for %s", path)
	return pushRequest{}
}

// staticAuth returns a header derived from the audience and counts calls.
type staticAuth struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (a *staticAuth) Authorization(_ context.Context, audience string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.calls == nil {
		a.calls = make(map[string]int)
	}
	a.calls[audience]++
	if a.err != nil {
		return "", a.err
	}
	return "vapid t=token-for-" + audience + ", k=key", nil
}

func (a *staticAuth) count(audience string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[audience]
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func ptr[T any](v T) *T {
	return &v
}
