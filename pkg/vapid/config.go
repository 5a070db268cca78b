package vapid

import "time"

// Config holds the deployment's VAPID settings.
type Config struct {
	PublicKey       string        `env:"VAPID_PUBLIC_KEY"`
	PrivateKey      string        `env:"VAPID_PRIVATE_KEY,required"`
	Subject         string        `env:"VAPID_SUBJECT,required"`
	TokenExpiration time.Duration `env:"VAPID_TOKEN_EXPIRATION" envDefault:"12h"`
	RefreshMargin   time.Duration `env:"VAPID_TOKEN_REFRESH_MARGIN" envDefault:"10m"`
	CacheSize       int           `env:"VAPID_TOKEN_CACHE_SIZE" envDefault:"256"`
}

// NewFromConfig parses the configured keys and builds a Signer. Without a
// WithTokenCache option the signer uses a MemoryCache of CacheSize entries.
func NewFromConfig(cfg Config, opts ...Option) (*Signer, error) {
	keys, err := ParseKeys(cfg.PrivateKey, cfg.PublicKey, cfg.Subject)
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithExpiration(cfg.TokenExpiration),
		WithRefreshMargin(cfg.RefreshMargin),
	}
	if cfg.CacheSize > 0 {
		base = append(base, WithTokenCache(NewMemoryCache(cfg.CacheSize)))
	}

	return NewSigner(keys, append(base, opts...)...)
}
