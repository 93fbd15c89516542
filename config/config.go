package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

const (
	FailureQueuePostgres = "postgres"
	FailureQueueRedis    = "redis"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Reship   ReshipConfig   `yaml:"reship"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	InboundTopicName         string `yaml:"inbound_topic_name"`
	ReconcileEventsTopicName string `yaml:"reconcile_events_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ReshipConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`
	LogLevel           string `yaml:"log_level"`

	// "postgres" (по умолчанию) или "redis".
	FailureQueueBackend string `yaml:"failure_queue_backend"`

	CustomerLookupTTLSeconds         int `yaml:"customer_lookup_ttl_seconds"`
	CustomerLookupRateLimitPerMinute int `yaml:"customer_lookup_rate_limit_per_minute"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Kafka.InboundTopicName == "" {
		c.Kafka.InboundTopicName = "inbound.messages"
	}
	if c.Kafka.ReconcileEventsTopicName == "" {
		c.Kafka.ReconcileEventsTopicName = "reconcile.completed"
	}
	if c.Reship.HTTPAddr == "" {
		c.Reship.HTTPAddr = ":8080"
	}
	if c.Reship.KafkaConsumerGroup == "" {
		c.Reship.KafkaConsumerGroup = "reship-api"
	}
	if c.Reship.LogLevel == "" {
		c.Reship.LogLevel = "info"
	}
	if c.Reship.FailureQueueBackend == "" {
		c.Reship.FailureQueueBackend = FailureQueuePostgres
	}
	if c.Reship.CustomerLookupTTLSeconds <= 0 {
		c.Reship.CustomerLookupTTLSeconds = 60
	}
	if c.Reship.CustomerLookupRateLimitPerMinute <= 0 {
		c.Reship.CustomerLookupRateLimitPerMinute = 30
	}
}

func (c *Config) validate() error {
	switch c.Reship.FailureQueueBackend {
	case FailureQueuePostgres, FailureQueueRedis:
	default:
		return fmt.Errorf("unknown failure_queue_backend %q", c.Reship.FailureQueueBackend)
	}
	return nil
}

func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}
