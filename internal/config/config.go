package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Temporal TemporalConfig `yaml:"temporal"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	PubSub   PubSubConfig   `yaml:"pubsub"`
	QR       QRConfig       `yaml:"qr"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type TemporalConfig struct {
	HostPort  string `yaml:"host_port"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PubSubConfig struct {
	ProjectID string `yaml:"project_id"`
	TopicID   string `yaml:"topic_id"`
}

type QRConfig struct {
	Scheme      string `yaml:"scheme"`
	Host        string `yaml:"host"`
	ExpiryHours int    `yaml:"expiry_hours"`
}

type MetricsConfig struct {
	Port string `yaml:"port"`
}

func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return &cfg, nil
}

// Default returns a config with defaults applied, for use when no config
// file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Temporal.HostPort == "" {
		c.Temporal.HostPort = "localhost:7233"
	}
	if c.Temporal.Namespace == "" {
		c.Temporal.Namespace = "default"
	}
	if c.Temporal.TaskQueue == "" {
		c.Temporal.TaskQueue = "verification"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.QR.Scheme == "" {
		c.QR.Scheme = "https"
	}
	if c.QR.Host == "" {
		c.QR.Host = "nabr.app"
	}
	if c.QR.ExpiryHours == 0 {
		c.QR.ExpiryHours = 72
	}
	if c.Metrics.Port == "" {
		c.Metrics.Port = "9090"
	}
}

// applyEnvOverrides lets secrets and endpoints come from the environment
// (loaded via godotenv in cmd/) rather than the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("TEMPORAL_HOST_PORT"); v != "" {
		c.Temporal.HostPort = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		c.PubSub.ProjectID = v
	}
}

// QRTokenTTL returns the validity window for issued QR tokens.
func (c *Config) QRTokenTTL() time.Duration {
	return time.Duration(c.QR.ExpiryHours) * time.Hour
}
