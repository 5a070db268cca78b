package vapid

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

const (
	// DefaultExpiration is the lifetime of minted tokens.
	DefaultExpiration = 12 * time.Hour
	// DefaultRefreshMargin is how long before expiry a cached token is replaced.
	DefaultRefreshMargin = 10 * time.Minute

	// Push services reject tokens valid for more than a day.
	maxExpiration = 24 * time.Hour

	coordinateSize = 32
)

// encodedHeader is base64url({"typ":"JWT","alg":"ES256"}).
var encodedHeader = encodeBase64URL([]byte(`{"typ":"JWT","alg":"ES256"}`))

type claims struct {
	Audience  string `json:"aud"`
	ExpiresAt int64  `json:"exp"`
	Subject   string `json:"sub"`
}

// Token is a signed credential for one audience.
type Token struct {
	Value     string    `json:"value"`
	Audience  string    `json:"audience"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Signer mints VAPID tokens and Authorization header values.
type Signer struct {
	keys          *Keys
	expiration    time.Duration
	refreshMargin time.Duration
	now           func() time.Time
	random        io.Reader
	cache         TokenCache
	cachePrefix   string
}

// Option configures a Signer.
type Option func(*Signer)

// WithExpiration sets the token lifetime. Values outside (0, 24h] are ignored.
func WithExpiration(d time.Duration) Option {
	return func(s *Signer) {
		if d > 0 && d <= maxExpiration {
			s.expiration = d
		}
	}
}

// WithRefreshMargin sets how long before expiry a cached token stops being served.
func WithRefreshMargin(d time.Duration) Option {
	return func(s *Signer) {
		if d >= 0 {
			s.refreshMargin = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRandom overrides the entropy source used for ECDSA nonces.
func WithRandom(r io.Reader) Option {
	return func(s *Signer) {
		if r != nil {
			s.random = r
		}
	}
}

// WithTokenCache enables token reuse across calls.
func WithTokenCache(c TokenCache) Option {
	return func(s *Signer) {
		s.cache = c
	}
}

// NewSigner creates a Signer for keys.
func NewSigner(keys *Keys, opts ...Option) (*Signer, error) {
	if keys == nil || keys.private == nil {
		return nil, ErrMissingKey
	}

	s := &Signer{
		keys:          keys,
		expiration:    DefaultExpiration,
		refreshMargin: DefaultRefreshMargin,
		now:           time.Now,
		random:        rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.refreshMargin >= s.expiration {
		s.refreshMargin = s.expiration / 2
	}

	// Cache entries are namespaced by key so a rotated key never reuses
	// tokens signed by its predecessor.
	sum := sha256.Sum256(keys.public)
	s.cachePrefix = hex.EncodeToString(sum[:6]) + "|"

	return s, nil
}

// PublicKey returns the base64url public key sent in the k= parameter.
func (s *Signer) PublicKey() string {
	return s.keys.PublicKey()
}

// Authorization returns the Authorization header value for audience,
// reusing a cached token when one is still fresh.
func (s *Signer) Authorization(ctx context.Context, audience string) (string, error) {
	token, err := s.cachedToken(ctx, audience)
	if err != nil {
		return "", err
	}
	return FormatAuthorization(token.Value, s.keys.PublicKey()), nil
}

func (s *Signer) cachedToken(ctx context.Context, audience string) (Token, error) {
	if s.cache == nil {
		return s.Token(audience)
	}

	key := s.cachePrefix + audience
	if token, ok := s.cache.Get(ctx, key); ok && s.now().Before(token.ExpiresAt.Add(-s.refreshMargin)) {
		return token, nil
	}

	token, err := s.Token(audience)
	if err != nil {
		return Token{}, err
	}
	s.cache.Set(ctx, key, token)
	return token, nil
}

// Token signs a fresh token for audience.
func (s *Signer) Token(audience string) (Token, error) {
	if err := validateAudience(audience); err != nil {
		return Token{}, err
	}

	expiresAt := s.now().Add(s.expiration).Truncate(time.Second)
	payload, err := json.Marshal(claims{
		Audience:  audience,
		ExpiresAt: expiresAt.Unix(),
		Subject:   s.keys.subject,
	})
	if err != nil {
		return Token{}, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	signingInput := encodedHeader + "." + encodeBase64URL(payload)
	digest := sha256.Sum256([]byte(signingInput))

	der, err := ecdsa.SignASN1(s.random, s.keys.private, digest[:])
	if err != nil {
		return Token{}, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	sig, err := derToRaw(der)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	return Token{
		Value:     signingInput + "." + encodeBase64URL(sig),
		Audience:  audience,
		ExpiresAt: expiresAt,
	}, nil
}

// FormatAuthorization renders the vapid Authorization scheme.
func FormatAuthorization(token, publicKey string) string {
	return "vapid t=" + token + ", k=" + publicKey
}

// Audience returns the origin (scheme://host) of a push endpoint.
func Audience(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAudience, err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidAudience, endpoint)
	}
	return u.Scheme + "://" + u.Host, nil
}

func validateAudience(audience string) error {
	origin, err := Audience(audience)
	if err != nil {
		return err
	}
	if origin != audience {
		return fmt.Errorf("%w: %q is not an origin", ErrInvalidAudience, audience)
	}
	return nil
}

// derToRaw converts an ASN.1 ECDSA signature into the fixed r||s form JWS
// requires, each half left-padded to 32 bytes.
func derToRaw(der []byte) ([]byte, error) {
	var (
		r, s  []byte
		inner cryptobyte.String
	)
	input := cryptobyte.String(der)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) || !input.Empty() ||
		!inner.ReadASN1Integer(&r) || !inner.ReadASN1Integer(&s) || !inner.Empty() {
		return nil, fmt.Errorf("malformed DER signature")
	}
	if len(r) > coordinateSize || len(s) > coordinateSize {
		return nil, fmt.Errorf("signature component exceeds %d bytes", coordinateSize)
	}

	raw := make([]byte, 2*coordinateSize)
	copy(raw[coordinateSize-len(r):coordinateSize], r)
	copy(raw[2*coordinateSize-len(s):], s)
	return raw, nil
}
