package pubsub

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// KafkaConfig configures the Kafka producer.
type KafkaConfig struct {
	Brokers    string `mapstructure:"brokers"`
	Partitions int    `mapstructure:"partitions"`
}

// Config selects the bus driver.
type Config struct {
	Driver string      `mapstructure:"driver"` // none, redis, kafka
	Kafka  KafkaConfig `mapstructure:"kafka"`
}

// NewPublisher builds the publisher for cfg.Driver. The redis driver publishes
// through rdb, which the caller keeps owning.
func NewPublisher(cfg Config, rdb *redis.Client) (Publisher, error) {
	switch cfg.Driver {
	case "", "none":
		return NopPublisher{}, nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis publisher requires a redis client")
		}
		return NewRedisPublisher(rdb), nil
	case "kafka":
		return NewKafkaPublisher(cfg.Kafka)
	default:
		return nil, fmt.Errorf("unsupported pubsub driver: %s", cfg.Driver)
	}
}
