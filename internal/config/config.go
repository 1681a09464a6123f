// Configuration loading for the quotefeed daemon
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// FeedConfig configures the protocol client.
type FeedConfig struct {
	URL                   string        `mapstructure:"url" validate:"required,url"`
	APIKey                string        `mapstructure:"api_key" validate:"required"`
	Dataset               string        `mapstructure:"dataset"`
	HeartbeatInterval     time.Duration `mapstructure:"heartbeat_interval"`
	AutoReconnect         bool          `mapstructure:"auto_reconnect"`
	MaxReconnectAttempts  int           `mapstructure:"max_reconnect_attempts" validate:"min=0"`
	InitialReconnectDelay time.Duration `mapstructure:"initial_reconnect_delay"`
}

// CacheConfig configures the quote cache adapter.
type CacheConfig struct {
	StaleThreshold time.Duration `mapstructure:"stale_threshold"`
	PublishUpdates bool          `mapstructure:"publish_updates"`
	Symbols        []string      `mapstructure:"symbols"`
}

// ServerConfig configures the ops HTTP server.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr" validate:"required"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// PubSubConfig selects and configures the downstream distribution backend.
type PubSubConfig struct {
	Backend      string   `mapstructure:"backend" validate:"oneof=none redis kafka nats"`
	RedisAddr    string   `mapstructure:"redis_addr"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
	NATSURL      string   `mapstructure:"nats_url"`
}

// Config is the root daemon configuration.
type Config struct {
	LogLevel string       `mapstructure:"log_level"`
	Feed     FeedConfig   `mapstructure:"feed"`
	Cache    CacheConfig  `mapstructure:"cache"`
	Server   ServerConfig `mapstructure:"server"`
	PubSub   PubSubConfig `mapstructure:"pubsub"`

	// SubscriptionsFile optionally names a YAML manifest of additional
	// subscriptions applied after connect.
	SubscriptionsFile string `mapstructure:"subscriptions_file"`
}

// Load reads configuration from an optional YAML file and QUOTEFEED_*
// environment variables (env wins), applies defaults, and validates the
// result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("QUOTEFEED")

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("subscriptions_file", "")

	v.SetDefault("feed.url", "wss://live.databrokers.example.com/v0/stream")
	// Empty default so the env-only key is visible to Unmarshal.
	v.SetDefault("feed.api_key", "")
	v.SetDefault("feed.dataset", "EQUS.MINI")
	v.SetDefault("feed.heartbeat_interval", 30*time.Second)
	v.SetDefault("feed.auto_reconnect", true)
	v.SetDefault("feed.max_reconnect_attempts", 5)
	v.SetDefault("feed.initial_reconnect_delay", time.Second)

	v.SetDefault("cache.stale_threshold", time.Duration(0))
	v.SetDefault("cache.publish_updates", false)
	v.SetDefault("cache.symbols", []string{})

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("pubsub.backend", "none")
	v.SetDefault("pubsub.redis_addr", "localhost:6379")
	v.SetDefault("pubsub.kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("pubsub.kafka_topic", "quotefeed.updates")
	v.SetDefault("pubsub.nats_url", "nats://localhost:4222")
}
