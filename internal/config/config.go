package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Bids     BidsConfig     `mapstructure:"bids"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type PostgresConfig struct {
	Conn         string `mapstructure:"conn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type BidsConfig struct {
	Horizon time.Duration `mapstructure:"horizon"`
}

type SweepConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// NotifyConfig selects where outbox events are delivered.
type NotifyConfig struct {
	Driver       string        `mapstructure:"driver"` // log | kafka | redis
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	Kafka        KafkaConfig   `mapstructure:"kafka"`
	Redis        RedisConfig   `mapstructure:"redis"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sourcing")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("server.address", "0.0.0.0:8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("postgres.conn", "")
	v.SetDefault("postgres.max_open_conns", 20)
	v.SetDefault("postgres.max_idle_conns", 5)

	v.SetDefault("bids.horizon", 7*24*time.Hour)

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.interval", 10*time.Minute)

	v.SetDefault("notify.driver", "log")
	v.SetDefault("notify.poll_interval", 2*time.Second)
	v.SetDefault("notify.batch_size", 50)
	v.SetDefault("notify.max_attempts", 3)
	v.SetDefault("notify.retry_delay", 2*time.Second)
	v.SetDefault("notify.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("notify.kafka.topic", "sourcing-events")
	v.SetDefault("notify.redis.addr", "localhost:6379")
	v.SetDefault("notify.redis.db", 0)
	v.SetDefault("notify.redis.channel_prefix", "sourcing")
}

// Load reads the optional YAML file at path, then applies environment
// overrides. SOURCING_SERVER_ADDRESS style names work for every key; the
// POSTGRES_CONN and SERVER_ADDRESS names are also honoured.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config failed: %w", err)
		}
	}

	v.SetEnvPrefix("SOURCING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("postgres.conn", "SOURCING_POSTGRES_CONN", "POSTGRES_CONN")
	_ = v.BindEnv("server.address", "SOURCING_SERVER_ADDRESS", "SERVER_ADDRESS")
	_ = v.BindEnv("notify.kafka.brokers", "SOURCING_NOTIFY_KAFKA_BROKERS", "KAFKA_BROKERS")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c.Postgres.Conn == "" {
		return fmt.Errorf("postgres.conn is required (POSTGRES_CONN)")
	}
	if c.Bids.Horizon <= 0 {
		return fmt.Errorf("bids.horizon must be positive")
	}
	if c.Sweep.Enabled && c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be positive")
	}
	switch c.Notify.Driver {
	case "log":
	case "kafka":
		if len(c.Notify.Kafka.Brokers) == 0 || c.Notify.Kafka.Topic == "" {
			return fmt.Errorf("notify.kafka.brokers and notify.kafka.topic are required")
		}
	case "redis":
		if c.Notify.Redis.Addr == "" {
			return fmt.Errorf("notify.redis.addr is required")
		}
	default:
		return fmt.Errorf("unknown notify.driver %q", c.Notify.Driver)
	}
	if c.Notify.MaxAttempts < 1 {
		return fmt.Errorf("notify.max_attempts must be at least 1")
	}
	return nil
}
