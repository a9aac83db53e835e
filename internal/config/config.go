package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Relay     RelayConfig     `yaml:"relay"`
	Events    EventsConfig    `yaml:"events"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host        string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port        int           `yaml:"port" envconfig:"SERVER_PORT" default:"8591"`
	ReadTimeout time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	// WriteTimeout bounds a whole relayed download, so it is generous.
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"2h"`
}

// AuthConfig holds token verification configuration.
type AuthConfig struct {
	Secret string `yaml:"secret" envconfig:"AUTH_SECRET"`
}

// ExtractorConfig holds metadata extractor configuration.
type ExtractorConfig struct {
	Path      string        `yaml:"path" envconfig:"EXTRACTOR_PATH" default:"yt-dlp"`
	Timeout   time.Duration `yaml:"timeout" envconfig:"EXTRACTOR_TIMEOUT" default:"60s"`
	Workers   int           `yaml:"workers" envconfig:"EXTRACTOR_WORKERS" default:"4"`
	QueueSize int           `yaml:"queue_size" envconfig:"EXTRACTOR_QUEUE_SIZE" default:"16"`
}

// RelayConfig holds streaming relay configuration.
type RelayConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path" envconfig:"RELAY_FFMPEG_PATH" default:"ffmpeg"`
	UserAgent  string `yaml:"user_agent" envconfig:"RELAY_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
}

// EventsConfig holds event journal configuration.
type EventsConfig struct {
	RingBufferSize  int    `yaml:"ring_buffer_size" envconfig:"EVENTS_RING_BUFFER_SIZE" default:"1000"`
	PersistToSQLite bool   `yaml:"persist_to_sqlite" envconfig:"EVENTS_PERSIST"`
	SQLitePath      string `yaml:"sqlite_path" envconfig:"EVENTS_SQLITE_PATH" default:"/data/events.db"`
	RetentionDays   int    `yaml:"retention_days" envconfig:"EVENTS_RETENTION_DAYS" default:"30"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Auth.Secret == "" {
		return fmt.Errorf("AUTH_SECRET is required")
	}
	if c.Extractor.Path == "" {
		return fmt.Errorf("EXTRACTOR_PATH is required")
	}
	if c.Events.PersistToSQLite && c.Events.SQLitePath == "" {
		return fmt.Errorf("EVENTS_SQLITE_PATH is required when persistence is enabled")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
