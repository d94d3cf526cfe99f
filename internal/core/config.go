package core

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the streaming session.
const (
	DefaultServerURL            = "ws://localhost:8000/ws/chat"
	DefaultAPIBaseURL           = "http://localhost:8000/api"
	DefaultDataDir              = ".streamchat"
	DefaultConnectTimeout       = 5 * time.Second
	DefaultReconnectInterval    = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultDialTimeout          = 10 * time.Second
)

// Config holds the application configuration.
type Config struct {
	LogLevel       string `yaml:"log_level"` // debug, info, warn, error
	ServerURL      string `yaml:"server_url"`
	APIBaseURL     string `yaml:"api_base_url"`
	APIToken       string `yaml:"api_token"`
	ConversationID string `yaml:"conversation_id"` // Generated when empty
	DataDir        string `yaml:"data_dir"`

	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	DialTimeout          time.Duration `yaml:"dial_timeout"`
}

// DefaultConfig returns a configuration with every field at its default.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:             "info",
		ServerURL:            DefaultServerURL,
		APIBaseURL:           DefaultAPIBaseURL,
		DataDir:              DefaultDataDir,
		ConnectTimeout:       DefaultConnectTimeout,
		ReconnectInterval:    DefaultReconnectInterval,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		DialTimeout:          DefaultDialTimeout,
	}
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile loads a YAML config file and then applies environment
// overrides on top of it. Fields missing from the file keep their defaults.
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)

	// DEBUG flag overrides log level
	if os.Getenv("DEBUG") == "1" {
		c.LogLevel = "debug"
	}

	c.ServerURL = getEnvOrDefault("STREAMCHAT_WS_URL", c.ServerURL)
	c.APIBaseURL = getEnvOrDefault("STREAMCHAT_API_URL", c.APIBaseURL)
	c.APIToken = getEnvOrDefault("STREAMCHAT_API_TOKEN", c.APIToken)
	c.ConversationID = getEnvOrDefault("STREAMCHAT_CONVERSATION", c.ConversationID)
	c.DataDir = getEnvOrDefault("STREAMCHAT_DATA_DIR", c.DataDir)

	var err error
	if c.ConnectTimeout, err = getEnvDuration("STREAMCHAT_CONNECT_TIMEOUT", c.ConnectTimeout); err != nil {
		return err
	}
	if c.ReconnectInterval, err = getEnvDuration("STREAMCHAT_RECONNECT_INTERVAL", c.ReconnectInterval); err != nil {
		return err
	}
	if c.DialTimeout, err = getEnvDuration("STREAMCHAT_DIAL_TIMEOUT", c.DialTimeout); err != nil {
		return err
	}
	if c.MaxReconnectAttempts, err = getEnvInt("STREAMCHAT_MAX_RECONNECTS", c.MaxReconnectAttempts); err != nil {
		return err
	}

	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return &ValidationError{Field: "server_url", Message: "must be a valid URL", Err: err}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return &ValidationError{Field: "server_url", Message: "scheme must be ws or wss"}
	}

	if c.APIBaseURL != "" {
		u, err := url.Parse(c.APIBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return &ValidationError{Field: "api_base_url", Message: "must be an http(s) URL", Err: err}
		}
	}

	if c.ConnectTimeout <= 0 {
		return &ValidationError{Field: "connect_timeout", Message: "must be positive"}
	}
	if c.ReconnectInterval <= 0 {
		return &ValidationError{Field: "reconnect_interval", Message: "must be positive"}
	}
	if c.MaxReconnectAttempts < 0 {
		return &ValidationError{Field: "max_reconnect_attempts", Message: "must not be negative"}
	}
	if c.DataDir == "" {
		return &ValidationError{Field: "data_dir", Message: "is required"}
	}

	return nil
}

// getEnvOrDefault returns the value of an environment variable or a default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, &ValidationError{Field: key, Message: "must be a duration such as 5s", Err: err}
	}
	return d, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &ValidationError{Field: key, Message: "must be an integer", Err: err}
	}
	return n, nil
}
