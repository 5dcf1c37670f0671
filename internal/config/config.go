// Package config loads service configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/planquant/collab/internal/slogging"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Redis     RedisConfig     `yaml:"redis"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port      string `yaml:"port" env:"SERVER_PORT"`
	Interface string `yaml:"interface" env:"SERVER_INTERFACE"`
	// ReadHeaderTimeout bounds handshake header reads; a plain read timeout
	// would kill long-lived websocket connections.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"SERVER_READ_HEADER_TIMEOUT"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
}

// AuthConfig holds credential validation configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
	// ValidationTimeout bounds the credential validation call during the
	// websocket handshake.
	ValidationTimeout time.Duration `yaml:"validation_timeout" env:"AUTH_VALIDATION_TIMEOUT"`
}

// RedisConfig holds the optional Redis connection used for the token
// revocation list. An empty host disables the revocation check.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST"`
	Port     string `yaml:"port" env:"REDIS_PORT"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// WebSocketConfig holds per-connection tuning
type WebSocketConfig struct {
	// SendBufferSize is the per-client outbound frame buffer; frames are
	// dropped when it is full.
	SendBufferSize int `yaml:"send_buffer_size" env:"WS_SEND_BUFFER_SIZE"`
	// MaxMessageSize limits inbound frames in bytes
	MaxMessageSize int64         `yaml:"max_message_size" env:"WS_MAX_MESSAGE_SIZE"`
	PingInterval   time.Duration `yaml:"ping_interval" env:"WS_PING_INTERVAL"`
	PongWait       time.Duration `yaml:"pong_wait" env:"WS_PONG_WAIT"`
	WriteWait      time.Duration `yaml:"write_wait" env:"WS_WRITE_WAIT"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level" env:"LOG_LEVEL"`
	IsDev            bool   `yaml:"is_dev" env:"LOG_IS_DEV"`
	LogDir           string `yaml:"log_dir" env:"LOG_DIR"`
	MaxAgeDays       int    `yaml:"max_age_days" env:"LOG_MAX_AGE_DAYS"`
	MaxSizeMB        int    `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB"`
	MaxBackups       int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS"`
	AlsoLogToConsole bool   `yaml:"also_log_to_console" env:"LOG_ALSO_CONSOLE"`
}

// Load reads configuration from the given YAML file (optional) and applies
// environment variable overrides on top of the defaults.
func Load(configFile string) (*Config, error) {
	config := getDefaultConfig()

	if configFile != "" {
		if err := loadFromYAML(config, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              "8080",
			Interface:         "0.0.0.0",
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Auth: AuthConfig{
			ValidationTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Port: "6379",
		},
		WebSocket: WebSocketConfig{
			SendBufferSize: 256,
			MaxMessageSize: 4096,
			PingInterval:   30 * time.Second,
			PongWait:       60 * time.Second,
			WriteWait:      10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:            "info",
			AlsoLogToConsole: true,
		},
	}
}

func loadFromYAML(config *Config, filename string) error {
	data, err := os.ReadFile(filename) // #nosec G304 - path comes from operator flags
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, config)
}

// overrideWithEnv walks the config struct and applies COLLAB_-prefixed
// environment variables declared in `env` tags.
func overrideWithEnv(config *Config) error {
	return overrideStructWithEnv(reflect.ValueOf(config).Elem())
}

func overrideStructWithEnv(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := overrideStructWithEnv(field); err != nil {
				return err
			}
			continue
		}

		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" {
			continue
		}
		envValue, ok := os.LookupEnv("COLLAB_" + envTag)
		if !ok {
			continue
		}
		if err := setFieldFromString(field, envValue); err != nil {
			return fmt.Errorf("invalid value for COLLAB_%s: %w", envTag, err)
		}
	}
	return nil
}

func setFieldFromString(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// Validate checks the configuration for invalid combinations
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server port must be numeric: %w", err)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret is required")
	}
	if c.Auth.ValidationTimeout <= 0 {
		return fmt.Errorf("auth validation_timeout must be positive")
	}
	if c.WebSocket.SendBufferSize <= 0 {
		return fmt.Errorf("websocket send_buffer_size must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("websocket max_message_size must be positive")
	}
	if c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		return fmt.Errorf("websocket ping_interval must be shorter than pong_wait")
	}
	return nil
}

// GetLogLevel returns the configured slogging level
func (c *Config) GetLogLevel() slogging.LogLevel {
	return slogging.ParseLogLevel(c.Logging.Level)
}

// RedisEnabled reports whether a revocation-list Redis connection is
// configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

// RedisAddr returns the host:port address for the Redis client
func (c *Config) RedisAddr() string {
	port := c.Redis.Port
	if port == "" {
		port = "6379"
	}
	return c.Redis.Host + ":" + port
}

// ListenAddr returns the interface:port address for the HTTP server
func (c *Config) ListenAddr() string {
	iface := c.Server.Interface
	if strings.TrimSpace(iface) == "" {
		iface = "0.0.0.0"
	}
	return iface + ":" + c.Server.Port
}
