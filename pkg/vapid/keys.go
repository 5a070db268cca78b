package vapid

import (
	"bytes"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/url"
	"strings"
)

const (
	privateKeySize = 32
	publicKeySize  = 65
)

// Keys is the deployment's VAPID identity.
type Keys struct {
	private *ecdsa.PrivateKey
	public  []byte
	subject string
}

// ParseKeys builds Keys from base64url encoded key material.
//
// The public point is derived from the private scalar. When publicKey is not
// empty it must encode the same point.
func ParseKeys(privateKey, publicKey, subject string) (*Keys, error) {
	if strings.TrimSpace(privateKey) == "" {
		return nil, ErrMissingKey
	}
	d, err := decodeBase64URL(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrivateKey, err)
	}

	keys, err := newKeys(d, subject)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(publicKey) != "" {
		pub, err := decodeBase64URL(publicKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
		}
		if len(pub) != publicKeySize {
			return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidPublicKey, publicKeySize, len(pub))
		}
		if !bytes.Equal(pub, keys.public) {
			return nil, ErrKeyMismatch
		}
	}

	return keys, nil
}

// GenerateKeys creates a fresh key pair for subject.
func GenerateKeys(subject string) (*Keys, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("vapid: generate key: %w", err)
	}
	return newKeys(priv.Bytes(), subject)
}

func newKeys(d []byte, subject string) (*Keys, error) {
	if err := validateSubject(subject); err != nil {
		return nil, err
	}
	if len(d) != privateKeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidPrivateKey, privateKeySize, len(d))
	}

	// ecdh rejects zero and out-of-range scalars.
	ecdhKey, err := ecdh.P256().NewPrivateKey(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrivateKey, err)
	}
	pub := ecdhKey.PublicKey().Bytes()

	// pub is 0x04 || X(32) || Y(32).
	priv := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(pub[1:33]),
			Y:     new(big.Int).SetBytes(pub[33:65]),
		},
		D: new(big.Int).SetBytes(d),
	}

	return &Keys{private: priv, public: pub, subject: subject}, nil
}

// PublicKey returns the base64url encoded uncompressed public point, as used
// in the k= parameter and as the applicationServerKey on the client.
func (k *Keys) PublicKey() string {
	return base64.RawURLEncoding.EncodeToString(k.public)
}

// PublicKeyBytes returns a copy of the uncompressed public point.
func (k *Keys) PublicKeyBytes() []byte {
	return bytes.Clone(k.public)
}

// PrivateKey returns the base64url encoded private scalar.
func (k *Keys) PrivateKey() string {
	d := make([]byte, privateKeySize)
	k.private.D.FillBytes(d)
	return base64.RawURLEncoding.EncodeToString(d)
}

// Subject returns the contact URI placed in the sub claim.
func (k *Keys) Subject() string {
	return k.subject
}

// ECDSA exposes the signing key for verification in tests and tooling.
func (k *Keys) ECDSA() *ecdsa.PrivateKey {
	return k.private
}

func validateSubject(subject string) error {
	switch {
	case strings.HasPrefix(subject, "mailto:") && len(subject) > len("mailto:"):
		return nil
	case strings.HasPrefix(subject, "https:"):
		u, err := url.Parse(subject)
		if err != nil || u.Host == "" {
			return ErrInvalidSubject
		}
		return nil
	default:
		return ErrInvalidSubject
	}
}

// decodeBase64URL accepts url and standard alphabets, padded or not.
func decodeBase64URL(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	return base64.RawURLEncoding.DecodeString(s)
}

func encodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
