// Package ece implements the aes128gcm content encoding used by Web Push
// (RFC 8188 framing with the RFC 8291 key schedule).
//
// Every call to Encrypt generates a fresh ephemeral P-256 key pair and a fresh
// 16-byte salt, so no two envelopes ever share key material even when they
// carry the same content to the same subscriber.
//
// # Envelope layout
//
//	salt (16) | record size (4, big endian) | idlen (1) | ephemeral public key (65) | ciphertext
//
// The plaintext is the content followed by a single 0x02 delimiter. The
// encoder never adds padding; Decrypt accepts zero padding after the
// delimiter so that envelopes produced by other implementations can be read.
//
// # Usage
//
//	body, err := ece.Encrypt(payload, p256dh, auth)
//	if errors.Is(err, ece.ErrEncryption) {
//	    // the subscriber's key material is unusable
//	}
//
// Receivers (and tests) use Decrypt with the subscriber's private key:
//
//	content, err := ece.Decrypt(body, uaPrivate, auth)
//
// # Key schedule
//
// The first HKDF stage uses the subscriber's auth secret as salt and the ECDH
// shared secret as input keying material. Its info string is
// "WebPush: info\0" followed by the subscriber and sender public keys.
// This is the RFC 8291 form that browsers and push services decrypt, and it
// is the default. WithLegacyAuthInfo switches it to the bare
// "Content-Encoding: auth\0" string used by pre-RFC drafts; envelopes built
// that way only open for peers that derive keys the same way. The second stage, salted with
// the random salt, yields the 16-byte content encryption key and the 12-byte
// nonce.
package ece
