package intake

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Config configures the broker intake. The intake is disabled when Brokers
// is empty.
type Config struct {
	Brokers       []string      `env:"KAFKA_BROKERS" envSeparator:","`
	Topic         string        `env:"KAFKA_TOPIC" envDefault:"push.deliveries"`
	Group         string        `env:"KAFKA_GROUP" envDefault:"pushd"`
	ClientID      string        `env:"KAFKA_CLIENT_ID" envDefault:"pushd"`
	InitialOffset string        `env:"KAFKA_INITIAL_OFFSET" envDefault:"newest"`
	MaxBackoff    time.Duration `env:"KAFKA_MAX_BACKOFF" envDefault:"30s"`
}

// Enabled reports whether brokers are configured.
func (c Config) Enabled() bool {
	return len(c.Brokers) > 0
}

// SaramaConfig builds the client configuration for a consumer group.
func (c Config) SaramaConfig() (*sarama.Config, error) {
	sc := sarama.NewConfig()
	if c.ClientID != "" {
		sc.ClientID = c.ClientID
	}
	sc.Consumer.Return.Errors = true
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}

	switch c.InitialOffset {
	case "", "newest":
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	case "oldest":
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		return nil, fmt.Errorf("%w: unknown initial offset %q", ErrInvalidConfig, c.InitialOffset)
	}

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return sc, nil
}

// NewConsumerGroup connects a consumer group to the configured brokers.
func NewConsumerGroup(cfg Config) (sarama.ConsumerGroup, error) {
	if !cfg.Enabled() {
		return nil, ErrNoBrokers
	}
	sc, err := cfg.SaramaConfig()
	if err != nil {
		return nil, err
	}
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.Group, sc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	return group, nil
}
