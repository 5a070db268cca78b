package vapid

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the verified contents of a VAPID token.
type Claims struct {
	Audience  string
	Subject   string
	ExpiresAt time.Time
}

// ParseAuthorization splits a "vapid t=..., k=..." header value.
func ParseAuthorization(header string) (token, publicKey string, err error) {
	scheme, params, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "vapid") {
		return "", "", ErrInvalidAuthorization
	}

	for _, part := range strings.Split(params, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return "", "", ErrInvalidAuthorization
		}
		switch name {
		case "t":
			token = value
		case "k":
			publicKey = value
		}
	}
	if token == "" || publicKey == "" {
		return "", "", ErrInvalidAuthorization
	}
	return token, publicKey, nil
}

// Verify checks an ES256 token against publicKey and, when audience is not
// empty, that the token is scoped to it.
func Verify(token, publicKey, audience string) (*Claims, error) {
	pub, err := parseVerifyingKey(publicKey)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	var registered jwt.RegisteredClaims
	if _, err := jwt.ParseWithClaims(token, &registered, func(*jwt.Token) (any, error) {
		return pub, nil
	}, opts...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	c := &Claims{Subject: registered.Subject}
	if len(registered.Audience) > 0 {
		c.Audience = registered.Audience[0]
	}
	if registered.ExpiresAt != nil {
		c.ExpiresAt = registered.ExpiresAt.Time
	}
	return c, nil
}

func parseVerifyingKey(publicKey string) (*ecdsa.PublicKey, error) {
	b, err := decodeBase64URL(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	if _, err := ecdh.P256().NewPublicKey(b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(b[1:33]),
		Y:     new(big.Int).SetBytes(b[33:65]),
	}, nil
}
