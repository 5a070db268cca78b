package webpush

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mbarradev-debug/divisapp-sub000/pkg/ece"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/vapid"
)

// Keys is the subscriber key material as handed over by the browser.
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription identifies one deliverable browser instance. Endpoint is the
// identity; writes are upserts keyed on it.
type Subscription struct {
	Endpoint       string
	Keys           Keys
	ExpirationTime *time.Time
	UserID         string
	UserAgent      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// subscriptionJSON mirrors PushSubscription.toJSON(). expirationTime is a
// millisecond timestamp or null in browsers; RFC 3339 strings are accepted too.
type subscriptionJSON struct {
	Endpoint       string          `json:"endpoint"`
	ExpirationTime json.RawMessage `json:"expirationTime,omitempty"`
	Keys           Keys            `json:"keys"`
	UserID         string          `json:"userId,omitempty"`
	UserAgent      string          `json:"userAgent,omitempty"`
	CreatedAt      *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt      *time.Time      `json:"updatedAt,omitempty"`
}

func (s Subscription) MarshalJSON() ([]byte, error) {
	out := subscriptionJSON{
		Endpoint:  s.Endpoint,
		Keys:      s.Keys,
		UserID:    s.UserID,
		UserAgent: s.UserAgent,
	}
	if s.ExpirationTime != nil {
		out.ExpirationTime = json.RawMessage(fmt.Sprint(s.ExpirationTime.UnixMilli()))
	} else {
		out.ExpirationTime = json.RawMessage("null")
	}
	if !s.CreatedAt.IsZero() {
		out.CreatedAt = &s.CreatedAt
	}
	if !s.UpdatedAt.IsZero() {
		out.UpdatedAt = &s.UpdatedAt
	}
	return json.Marshal(out)
}

func (s *Subscription) UnmarshalJSON(data []byte) error {
	var in subscriptionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	exp, err := parseExpiration(in.ExpirationTime)
	if err != nil {
		return err
	}

	*s = Subscription{
		Endpoint:       in.Endpoint,
		Keys:           in.Keys,
		ExpirationTime: exp,
		UserID:         in.UserID,
		UserAgent:      in.UserAgent,
	}
	if in.CreatedAt != nil {
		s.CreatedAt = *in.CreatedAt
	}
	if in.UpdatedAt != nil {
		s.UpdatedAt = *in.UpdatedAt
	}
	return nil
}

func parseExpiration(raw json.RawMessage) (*time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		t := time.UnixMilli(int64(ms)).UTC()
		return &t, nil
	}

	var t time.Time
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("%w: expirationTime must be a millisecond timestamp or RFC 3339 string", ErrInvalidSubscription)
	}
	return &t, nil
}

// ParseSubscription decodes a browser subscription and validates it fully,
// key material included.
func ParseSubscription(data []byte) (Subscription, error) {
	var s Subscription
	if err := json.Unmarshal(data, &s); err != nil {
		return Subscription{}, fmt.Errorf("%w: %w", ErrInvalidSubscription, err)
	}
	if err := s.Validate(); err != nil {
		return Subscription{}, err
	}
	if err := s.ValidateKeys(); err != nil {
		return Subscription{}, err
	}
	return s, nil
}

// Validate checks the shape required to attempt a delivery: an absolute
// http(s) endpoint and both keys present.
func (s Subscription) Validate() error {
	if strings.TrimSpace(s.Endpoint) == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidSubscription)
	}
	if _, err := vapid.Audience(s.Endpoint); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSubscription, err)
	}
	if s.Keys.P256dh == "" {
		return fmt.Errorf("%w: keys.p256dh is required", ErrInvalidSubscription)
	}
	if s.Keys.Auth == "" {
		return fmt.Errorf("%w: keys.auth is required", ErrInvalidSubscription)
	}
	return nil
}

// ValidateKeys decodes the key material: p256dh must be a 65-byte
// uncompressed P-256 point and auth exactly 16 bytes.
func (s Subscription) ValidateKeys() error {
	p256dh, err := ece.DecodeKey(s.Keys.P256dh)
	if err != nil {
		return fmt.Errorf("%w: keys.p256dh: %w", ErrInvalidSubscription, err)
	}
	if _, err := ece.ParsePublicKey(p256dh); err != nil {
		return fmt.Errorf("%w: keys.p256dh: %w", ErrInvalidSubscription, err)
	}

	auth, err := ece.DecodeKey(s.Keys.Auth)
	if err != nil {
		return fmt.Errorf("%w: keys.auth: %w", ErrInvalidSubscription, err)
	}
	if len(auth) != ece.AuthSecretSize {
		return fmt.Errorf("%w: keys.auth must decode to %d bytes, got %d", ErrInvalidSubscription, ece.AuthSecretSize, len(auth))
	}
	return nil
}

// Expired reports whether the browser-announced expiration has passed.
func (s Subscription) Expired(now time.Time) bool {
	return s.ExpirationTime != nil && s.ExpirationTime.Before(now)
}

// Audience returns the push service origin the VAPID token is scoped to.
func (s Subscription) Audience() (string, error) {
	return vapid.Audience(s.Endpoint)
}
