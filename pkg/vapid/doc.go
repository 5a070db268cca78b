// Package vapid signs Voluntary Application Server Identification (RFC 8292)
// credentials for Web Push.
//
// A deployment owns one P-256 key pair and a contact subject. Signer mints an
// ES256 JWT per push-service origin and formats it as the Authorization header
// value push services expect:
//
//	vapid t=<jwt>, k=<base64url public key>
//
// Tokens are audience scoped. One token is minted per distinct origin and,
// when a TokenCache is configured, reused until shortly before it expires.
//
// # Usage
//
//	keys, err := vapid.ParseKeys(cfg.PrivateKey, cfg.PublicKey, "mailto:ops@example.com")
//	if err != nil {
//	    return err // wraps vapid.ErrAuthentication
//	}
//
//	signer, err := vapid.NewSigner(keys, vapid.WithTokenCache(vapid.NewMemoryCache(256)))
//	header, err := signer.Authorization(ctx, "https://fcm.googleapis.com")
//
// Keys use the raw base64url encoding shared by webpush-go and the web-push
// npm package: a 32-byte private scalar and a 65-byte uncompressed public point.
//
// Verify and ParseAuthorization implement the receiving side and are used to
// check issued tokens.
package vapid
