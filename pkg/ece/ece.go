package ece

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// SaltSize is the size of the random per-message salt.
	SaltSize = 16
	// AuthSecretSize is the size of the subscriber's auth secret.
	AuthSecretSize = 16
	// PublicKeySize is the size of an uncompressed P-256 point.
	PublicKeySize = 65
	// RecordSize is the record size advertised in every envelope.
	RecordSize = 4096
	// HeaderSize is the size of the envelope header carrying a P-256 key id.
	HeaderSize = SaltSize + 4 + 1 + PublicKeySize

	// MaxContentSize is the largest content whose envelope fits in RecordSize bytes.
	MaxContentSize = RecordSize - HeaderSize - tagSize - 1

	tagSize   = 16
	keySize   = 16
	nonceSize = 12
	ikmSize   = 32

	uncompressedPoint byte = 0x04
	lastRecord        byte = 0x02
)

var (
	webPushInfo    = []byte("WebPush: info\x00")
	legacyAuthInfo = []byte("Content-Encoding: auth\x00")
	cekInfo        = []byte("Content-Encoding: aes128gcm\x00")
	nonceInfo      = []byte("Content-Encoding: nonce\x00")
)

// Option configures Encrypt and Decrypt.
type Option func(*options)

type options struct {
	random     io.Reader
	legacyInfo bool
}

// WithRandom sets the entropy source for ephemeral keys and salts.
// Nil readers are ignored.
func WithRandom(r io.Reader) Option {
	return func(o *options) {
		if r != nil {
			o.random = r
		}
	}
}

// WithLegacyAuthInfo derives the first HKDF stage with the bare
// "Content-Encoding: auth\0" info string instead of the RFC 8291 key info.
// Both sides of an exchange must agree on this setting.
func WithLegacyAuthInfo() Option {
	return func(o *options) { o.legacyInfo = true }
}

func newOptions(opts []Option) *options {
	o := &options{random: rand.Reader}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Encrypt seals content for the subscriber identified by p256dh and auth and
// returns the complete aes128gcm envelope.
func Encrypt(content, p256dh, auth []byte, opts ...Option) ([]byte, error) {
	o := newOptions(opts)

	if len(content) > MaxContentSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrContentTooLarge, len(content), MaxContentSize)
	}

	uaPublic, err := ParsePublicKey(p256dh)
	if err != nil {
		return nil, err
	}
	if len(auth) != AuthSecretSize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidAuthSecret, AuthSecretSize, len(auth))
	}

	asPrivate, err := ecdh.P256().GenerateKey(o.random)
	if err != nil {
		return nil, fmt.Errorf("%w: ephemeral key: %w", ErrEncryption, err)
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(o.random, salt); err != nil {
		return nil, fmt.Errorf("%w: salt: %w", ErrEncryption, err)
	}

	return seal(content, uaPublic, auth, asPrivate, salt, o.legacyInfo)
}

func seal(content []byte, uaPublic *ecdh.PublicKey, auth []byte, asPrivate *ecdh.PrivateKey, salt []byte, legacy bool) ([]byte, error) {
	secret, err := asPrivate.ECDH(uaPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: key agreement: %w", ErrEncryption, err)
	}

	asPublic := asPrivate.PublicKey().Bytes()
	cek, nonce, err := deriveKeys(secret, auth, salt, uaPublic.Bytes(), asPublic, legacy)
	if err != nil {
		return nil, errors.Join(ErrEncryption, err)
	}

	gcm, err := newGCM(cek)
	if err != nil {
		return nil, errors.Join(ErrEncryption, err)
	}

	plaintext := make([]byte, 0, len(content)+1)
	plaintext = append(plaintext, content...)
	plaintext = append(plaintext, lastRecord)

	out := make([]byte, HeaderSize, HeaderSize+len(plaintext)+gcm.Overhead())
	copy(out[:SaltSize], salt)
	binary.BigEndian.PutUint32(out[SaltSize:SaltSize+4], RecordSize)
	out[SaltSize+4] = byte(len(asPublic))
	copy(out[SaltSize+5:], asPublic)

	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts an envelope and returns the raw record plaintext, including
// the 0x02 delimiter and any padding.
func Open(body []byte, uaPrivate *ecdh.PrivateKey, auth []byte, opts ...Option) ([]byte, error) {
	o := newOptions(opts)

	if uaPrivate == nil {
		return nil, fmt.Errorf("%w: missing private key", ErrDecryption)
	}
	if len(auth) != AuthSecretSize {
		return nil, fmt.Errorf("%w: auth secret must be %d bytes", ErrDecryption, AuthSecretSize)
	}

	h, err := ParseHeader(body)
	if err != nil {
		return nil, err
	}

	asPublic, err := ecdh.P256().NewPublicKey(h.KeyID)
	if err != nil {
		return nil, fmt.Errorf("%w: sender key: %w", ErrInvalidHeader, err)
	}

	ciphertext := body[h.Len():]
	if len(ciphertext) < tagSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}
	if len(ciphertext) > int(h.RecordSize) {
		return nil, ErrMultipleRecord
	}

	secret, err := uaPrivate.ECDH(asPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: key agreement: %w", ErrDecryption, err)
	}

	cek, nonce, err := deriveKeys(secret, auth, h.Salt, uaPrivate.PublicKey().Bytes(), h.KeyID, o.legacyInfo)
	if err != nil {
		return nil, errors.Join(ErrDecryption, err)
	}

	gcm, err := newGCM(cek)
	if err != nil {
		return nil, errors.Join(ErrDecryption, err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Join(ErrDecryption, err)
	}
	return plaintext, nil
}

// Decrypt decrypts an envelope and returns the original content.
func Decrypt(body []byte, uaPrivate *ecdh.PrivateKey, auth []byte, opts ...Option) ([]byte, error) {
	plaintext, err := Open(body, uaPrivate, auth, opts...)
	if err != nil {
		return nil, err
	}
	return unpad(plaintext)
}

// ParsePublicKey validates an uncompressed P-256 point.
func ParsePublicKey(b []byte) (*ecdh.PublicKey, error) {
	if len(b) != PublicKeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidPublicKey, PublicKeySize, len(b))
	}
	if b[0] != uncompressedPoint {
		return nil, fmt.Errorf("%w: missing uncompressed point prefix", ErrInvalidPublicKey)
	}
	pub, err := ecdh.P256().NewPublicKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

// DecodeKey decodes base64 key material as found in browser subscriptions.
// URL-safe and standard alphabets are accepted, with or without padding.
func DecodeKey(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	return base64.RawURLEncoding.DecodeString(s)
}

// deriveKeys runs the two HKDF-SHA-256 stages and returns the content
// encryption key and nonce.
func deriveKeys(secret, auth, salt, uaPublic, asPublic []byte, legacy bool) (cek, nonce []byte, err error) {
	info := legacyAuthInfo
	if !legacy {
		info = make([]byte, 0, len(webPushInfo)+len(uaPublic)+len(asPublic))
		info = append(info, webPushInfo...)
		info = append(info, uaPublic...)
		info = append(info, asPublic...)
	}

	ikm := make([]byte, ikmSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, auth, info), ikm); err != nil {
		return nil, nil, err
	}

	prk := hkdf.Extract(sha256.New, ikm, salt)

	cek = make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, cekInfo), cek); err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, nonceSize)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, nonceInfo), nonce); err != nil {
		return nil, nil, err
	}
	return cek, nonce, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// unpad strips trailing zero padding and the final record delimiter.
func unpad(plaintext []byte) ([]byte, error) {
	i := len(plaintext) - 1
	for i >= 0 && plaintext[i] == 0 {
		i--
	}
	if i < 0 || plaintext[i] != lastRecord {
		return nil, ErrInvalidPadding
	}
	return plaintext[:i], nil
}
