// Package config loads client and server settings. Values are layered:
// built-in defaults, then an optional YAML file, then an optional .env file,
// then the process environment. Command-line flags are applied last by the
// caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/christopherjohns/groupchat/internal/api"
	"github.com/christopherjohns/groupchat/internal/live"
)

// EnvPrefix prefixes every environment variable, e.g. GROUPCHAT_URL.
const EnvPrefix = "GROUPCHAT"

// Client holds terminal client settings.
type Client struct {
	// URL is the chat server's page origin; the snapshot and send endpoints
	// hang off it and the live endpoint is derived from its host.
	URL string `yaml:"url" split_words:"true"`
	// LiveURL overrides the derived live endpoint.
	LiveURL  string `yaml:"live_url" split_words:"true"`
	LivePort int    `yaml:"live_port" split_words:"true"`
	Username string `yaml:"username" split_words:"true"`

	ReconnectDelay time.Duration `yaml:"reconnect_delay" split_words:"true"`
	DialTimeout    time.Duration `yaml:"dial_timeout" split_words:"true"`
	RequestTimeout time.Duration `yaml:"request_timeout" split_words:"true"`

	LogLevel string `yaml:"log_level" split_words:"true"`
	LogFile  string `yaml:"log_file" split_words:"true"`
}

// DefaultClient returns the client defaults.
func DefaultClient() Client {
	return Client{
		URL:            "http://localhost:5000",
		LivePort:       live.DefaultPort,
		ReconnectDelay: live.DefaultReconnectDelay,
		RequestTimeout: api.DefaultTimeout,
		LogLevel:       "info",
	}
}

// Validate checks the client settings for values that cannot work.
func (c Client) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url %q must be an absolute http or https url", c.URL)
	}
	if c.LiveURL != "" {
		lu, err := url.Parse(c.LiveURL)
		if err != nil {
			return fmt.Errorf("live_url: %w", err)
		}
		if (lu.Scheme != "ws" && lu.Scheme != "wss") || lu.Host == "" {
			return fmt.Errorf("live_url %q must be an absolute ws or wss url", c.LiveURL)
		}
	}
	if c.LivePort < 1 || c.LivePort > 65535 {
		return fmt.Errorf("live_port %d out of range", c.LivePort)
	}
	if c.ReconnectDelay <= 0 {
		return errors.New("reconnect_delay must be positive")
	}
	if c.DialTimeout < 0 {
		return errors.New("dial_timeout must not be negative")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	return nil
}

// LiveEndpoint returns the live channel url: LiveURL when set, otherwise
// derived from URL and LivePort.
func (c Client) LiveEndpoint() (string, error) {
	if c.LiveURL != "" {
		return c.LiveURL, nil
	}
	return live.Endpoint(c.URL, c.LivePort)
}

// Server holds reference server settings.
type Server struct {
	Addr        string `yaml:"addr" split_words:"true"`
	RedisAddr   string `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	DataPath    string `yaml:"data_path" split_words:"true"`
	MaxMessages int    `yaml:"max_messages" split_words:"true"`

	// RateLimit is the number of sends allowed per client IP per
	// RateWindow. Zero disables limiting.
	RateLimit  int           `yaml:"rate_limit" split_words:"true"`
	RateWindow time.Duration `yaml:"rate_window" split_words:"true"`

	// MaxConns caps live connections. Zero means unlimited.
	MaxConns       int      `yaml:"max_conns" split_words:"true"`
	AllowedOrigins []string `yaml:"allowed_origins" split_words:"true"`

	LogLevel string `yaml:"log_level" split_words:"true"`
}

// DefaultServer returns the server defaults.
func DefaultServer() Server {
	return Server{
		Addr:        ":5000",
		MaxMessages: 1000,
		RateLimit:   30,
		RateWindow:  time.Minute,
		LogLevel:    "info",
	}
}

// Validate checks the server settings.
func (s Server) Validate() error {
	if s.Addr == "" {
		return errors.New("addr is required")
	}
	if s.RedisAddr != "" && s.DataPath != "" {
		return errors.New("redis_addr and data_path are mutually exclusive")
	}
	if s.MaxMessages <= 0 {
		return errors.New("max_messages must be positive")
	}
	if s.RateLimit < 0 {
		return errors.New("rate_limit must not be negative")
	}
	if s.RateLimit > 0 && s.RateWindow <= 0 {
		return errors.New("rate_window must be positive when rate_limit is set")
	}
	if s.MaxConns < 0 {
		return errors.New("max_conns must not be negative")
	}
	return nil
}

// LoadClient layers file, env files and the environment over DefaultClient.
// An empty file skips the YAML layer; with no envFiles, ./.env is tried.
func LoadClient(file string, envFiles ...string) (Client, error) {
	cfg := DefaultClient()
	if err := load(file, envFiles, &cfg); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

// LoadServer layers file, env files and the environment over DefaultServer.
func LoadServer(file string, envFiles ...string) (Server, error) {
	cfg := DefaultServer()
	if err := load(file, envFiles, &cfg); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func load(file string, envFiles []string, dst any) error {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, dst); err != nil {
			return fmt.Errorf("parse config %s: %w", file, err)
		}
	}
	// Variables already set in the environment take precedence over .env.
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, dst); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}
