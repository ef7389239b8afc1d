// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	TransportSMTP = "smtp"
	TransportAMQP = "amqp"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Mail     MailConfig     `yaml:"mail"`
	Log      LogConfig      `yaml:"log"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

type ServerConfig struct {
	Host           string   `yaml:"host" env:"HOST"`
	Port           int      `yaml:"port" env:"PORT"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

type DatabaseConfig struct {
	URL      string        `yaml:"url" env:"DATABASE_URL"`
	MongoURI string        `yaml:"-" env:"MONGO_URI"`
	Timeout  time.Duration `yaml:"timeout" env:"DATABASE_TIMEOUT"`
}

// MailConfig describes the operator account that notifications are sent
// from and to.
type MailConfig struct {
	Transport  string        `yaml:"transport" env:"MAIL_TRANSPORT"`
	Host       string        `yaml:"host" env:"SMTP_HOST"`
	Port       int           `yaml:"port" env:"SMTP_PORT"`
	User       string        `yaml:"user" env:"EMAIL_USER"`
	Password   string        `yaml:"password" env:"EMAIL_PASS"`
	Recipient  string        `yaml:"recipient" env:"EMAIL_TO"`
	Timeout    time.Duration `yaml:"timeout" env:"MAIL_TIMEOUT"`
	RelayURL   string        `yaml:"relay_url" env:"RABBITMQ_URL"`
	RelayQueue string        `yaml:"relay_queue" env:"MAIL_RELAY_QUEUE"`
}

type LogConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Pretty     bool   `yaml:"pretty" env:"LOG_PRETTY"`
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSize    int    `yaml:"max_size" env:"LOG_MAX_SIZE"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS"`
	MaxAge     int    `yaml:"max_age" env:"LOG_MAX_AGE"`
}

type TracingConfig struct {
	Endpoint string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure bool   `yaml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Default returns the configuration used when neither a file nor the
// environment says otherwise.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Database: DatabaseConfig{
			Timeout: 10 * time.Second,
		},
		Mail: MailConfig{
			Transport:  TransportSMTP,
			Host:       "smtp.gmail.com",
			Port:       587,
			Timeout:    10 * time.Second,
			RelayQueue: "contact_mail_relay",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// LoadConfig layers the YAML file at path (optional) and then the process
// environment, including a .env file if one exists, over Default().
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config: %w", err)
			}
		}
	}

	_ = godotenv.Load()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.applyFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFallbacks() {
	if c.Database.URL == "" {
		c.Database.URL = c.Database.MongoURI
	}
	if c.Mail.Recipient == "" {
		c.Mail.Recipient = c.Mail.User
	}
}

// Validate rejects structurally broken settings. Missing credentials or
// connection strings are left for the store and notifier to report when
// they are first used.
func (c *Config) Validate() error {
	switch c.Mail.Transport {
	case TransportSMTP, TransportAMQP:
	default:
		return fmt.Errorf("unknown mail transport %q", c.Mail.Transport)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.Mail.Timeout <= 0 {
		return fmt.Errorf("mail timeout must be positive")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
