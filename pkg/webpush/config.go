package webpush

import "time"

// Config holds delivery tuning.
type Config struct {
	Timeout         time.Duration `env:"PUSH_TIMEOUT" envDefault:"30s"`
	TTL             time.Duration `env:"PUSH_TTL" envDefault:"24h"`
	Urgency         string        `env:"PUSH_URGENCY" envDefault:"normal"`
	Concurrency     int           `env:"PUSH_CONCURRENCY" envDefault:"16"`
	UserAgent       string        `env:"PUSH_USER_AGENT" envDefault:"pushd/1.0"`
	PriorityUrgency bool          `env:"PUSH_PRIORITY_URGENCY" envDefault:"false"`
}

// NewTransportFromConfig builds a Transport from cfg. opts are applied last.
func NewTransportFromConfig(cfg Config, opts ...TransportOption) *Transport {
	base := []TransportOption{
		WithTimeout(cfg.Timeout),
		WithUrgency(Urgency(cfg.Urgency)),
		WithUserAgent(cfg.UserAgent),
	}
	return NewTransport(append(base, opts...)...)
}

// NewDispatcherFromConfig builds a Dispatcher posting through a Transport
// built from cfg. opts are applied last and may replace the sender.
func NewDispatcherFromConfig(cfg Config, resolver *Resolver, auth Authenticator, opts ...DispatcherOption) *Dispatcher {
	base := []DispatcherOption{
		WithSender(NewTransportFromConfig(cfg)),
		WithConcurrency(cfg.Concurrency),
		WithTTL(cfg.TTL),
	}
	if cfg.PriorityUrgency {
		base = append(base, WithPriorityUrgency())
	}
	return NewDispatcher(resolver, auth, append(base, opts...)...)
}
