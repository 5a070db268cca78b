package webpush

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultTimeout bounds a single push service call.
	DefaultTimeout = 30 * time.Second
	// DefaultTTL is how long the push service may hold an undelivered message.
	DefaultTTL = 24 * time.Hour

	responseBodyLimit   = 64 * 1024
	errorSnippetLength  = 200
	defaultUserAgent    = "pushd/1.0"
	contentEncodingECE  = "aes128gcm"
	contentTypeEnvelope = "application/octet-stream"
)

// Urgency is the RFC 8030 delivery urgency hint.
type Urgency string

const (
	UrgencyVeryLow Urgency = "very-low"
	UrgencyLow     Urgency = "low"
	UrgencyNormal  Urgency = "normal"
	UrgencyHigh    Urgency = "high"
)

// Valid reports whether u is one of the RFC 8030 values.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyVeryLow, UrgencyLow, UrgencyNormal, UrgencyHigh:
		return true
	}
	return false
}

// Message is one encrypted push ready to be posted.
type Message struct {
	Subscription  Subscription
	Authorization string
	Body          []byte
	TTL           time.Duration
	Urgency       Urgency
	// Topic replaces a pending message with the same topic on the push service.
	Topic string
}

// Transport posts encrypted messages to push services.
// Zero value is not usable; use NewTransport.
type Transport struct {
	client    *http.Client
	timeout   time.Duration
	urgency   Urgency
	userAgent string
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *Transport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) TransportOption {
	return func(t *Transport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithUrgency sets the urgency used when a message carries none.
func WithUrgency(u Urgency) TransportOption {
	return func(t *Transport) {
		if u.Valid() {
			t.urgency = u
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) TransportOption {
	return func(t *Transport) {
		if ua != "" {
			t.userAgent = ua
		}
	}
}

// NewTransport creates a Transport with a pooled HTTP client.
func NewTransport(opts ...TransportOption) *Transport {
	t := &Transport{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout:   DefaultTimeout,
		urgency:   UrgencyNormal,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send posts msg and classifies the outcome. It never returns an error;
// failures are described by the returned AttemptResult.
func (t *Transport) Send(ctx context.Context, msg Message) AttemptResult {
	start := time.Now()
	result := AttemptResult{SubscriptionID: msg.Subscription.Endpoint}

	fail := func(terr *TransportError) AttemptResult {
		result.Duration = time.Since(start)
		result.ErrorCode = terr.Code
		result.ErrorMessage = terr.Error()
		result.StatusCode = terr.StatusCode
		return result
	}

	u, err := url.Parse(msg.Subscription.Endpoint)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		if err == nil {
			err = fmt.Errorf("endpoint %q is not an absolute http(s) url", msg.Subscription.Endpoint)
		}
		return fail(&TransportError{Code: CodeInvalidSubscription, Err: err})
	}

	reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, u.String(), bytes.NewReader(msg.Body))
	if err != nil {
		return fail(&TransportError{Code: CodeUnknown, Err: fmt.Errorf("create request: %w", err)})
	}

	urgency := msg.Urgency
	if !urgency.Valid() {
		urgency = t.urgency
	}
	ttl := msg.TTL
	if ttl < 0 {
		ttl = 0
	}

	req.Header.Set("Authorization", msg.Authorization)
	req.Header.Set("Content-Encoding", contentEncodingECE)
	req.Header.Set("Content-Type", contentTypeEnvelope)
	req.Header.Set("TTL", strconv.FormatInt(int64(ttl/time.Second), 10))
	req.Header.Set("Urgency", string(urgency))
	req.Header.Set("User-Agent", t.userAgent)
	if msg.Topic != "" {
		req.Header.Set("Topic", msg.Topic)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", t.timeout, err)
		}
		return fail(&TransportError{Code: CodeNetworkError, Err: err})
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	result.StatusCode = resp.StatusCode

	code, remove := Classify(resp.StatusCode)
	if code == "" {
		result.Success = true
		result.Duration = time.Since(start)
		return result
	}

	result.ShouldRemoveSubscription = remove
	if code == CodeRateLimited {
		result.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	return fail(&TransportError{
		Code:       code,
		StatusCode: resp.StatusCode,
		Err:        statusError(resp.StatusCode, body),
	})
}

// Classify maps a push service status code to an error code. An empty code
// means success. remove is true only when the subscription is gone for good.
func Classify(status int) (code ErrorCode, remove bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusNotFound, status == http.StatusGone:
		return CodeExpiredSubscription, true
	case status == http.StatusTooManyRequests:
		return CodeRateLimited, false
	default:
		return CodeProviderError, false
	}
}

func statusError(status int, body []byte) error {
	msg := fmt.Sprintf("push service returned status %d", status)
	if len(body) > 0 {
		// Single line keeps the message safe to log.
		snippet := strings.Join(strings.Fields(string(body)), " ")
		if len(snippet) > errorSnippetLength {
			cut := errorSnippetLength
			for cut > 0 && !utf8.RuneStart(snippet[cut]) {
				cut--
			}
			snippet = snippet[:cut] + "..."
		}
		if snippet != "" {
			msg += ": " + snippet
		}
	}
	return errors.New(msg)
}

// parseRetryAfter accepts delta-seconds or an HTTP date and returns seconds.
func parseRetryAfter(v string, now time.Time) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil {
		return max(n, 0)
	}
	if t, err := http.ParseTime(v); err == nil {
		return max(int(t.Sub(now).Round(time.Second)/time.Second), 0)
	}
	return 0
}
