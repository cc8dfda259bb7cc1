// Package config loads echo-chat settings from built-in defaults, an optional
// YAML file and ECHO_CHAT_* environment variables, in that order.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultURL is the public echo server the client talks to out of the box.
const DefaultURL = "wss://echo.websocket.org"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Echo      EchoConfig      `yaml:"echo"`
	Log       LogConfig       `yaml:"log"`
	UI        UIConfig        `yaml:"ui"`
}

// ServerConfig describes the remote WebSocket endpoint.
type ServerConfig struct {
	URL   string `yaml:"url" env:"ECHO_CHAT_URL"`
	Token string `yaml:"token" env:"ECHO_CHAT_TOKEN"`
}

type TransportConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"ECHO_CHAT_HANDSHAKE_TIMEOUT"`
	WriteTimeout     time.Duration `yaml:"write_timeout" env:"ECHO_CHAT_WRITE_TIMEOUT"`
	CloseTimeout     time.Duration `yaml:"close_timeout" env:"ECHO_CHAT_CLOSE_TIMEOUT"`
	PingInterval     time.Duration `yaml:"ping_interval" env:"ECHO_CHAT_PING_INTERVAL"`
	SendBuffer       int           `yaml:"send_buffer" env:"ECHO_CHAT_SEND_BUFFER"`
}

// EchoConfig configures the local echo server started by `echo-chat serve`.
type EchoConfig struct {
	Addr           string   `yaml:"addr" env:"ECHO_CHAT_ECHO_ADDR"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ECHO_CHAT_ECHO_ALLOWED_ORIGINS"`
	Token          string   `yaml:"token" env:"ECHO_CHAT_ECHO_TOKEN"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"ECHO_CHAT_LOG_LEVEL"`
	File  string `yaml:"file" env:"ECHO_CHAT_LOG_FILE"`
}

type UIConfig struct {
	MaxMessagesRendered int `yaml:"max_messages_rendered" env:"ECHO_CHAT_MAX_MESSAGES_RENDERED"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL: DefaultURL,
		},
		Transport: TransportConfig{
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     10 * time.Second,
			CloseTimeout:     5 * time.Second,
			PingInterval:     30 * time.Second,
			SendBuffer:       64,
		},
		Echo: EchoConfig{
			Addr: "127.0.0.1:8080",
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(os.TempDir(), "echo-chat.log"),
		},
		UI: UIConfig{
			MaxMessagesRendered: 500,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return errors.Wrapf(err, "invalid server url %q", c.Server.URL)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.Errorf("server url %q must use ws or wss", c.Server.URL)
	}
	if u.Host == "" {
		return errors.Errorf("server url %q has no host", c.Server.URL)
	}

	t := c.Transport
	if t.HandshakeTimeout <= 0 {
		return errors.New("transport.handshake_timeout must be positive")
	}
	if t.WriteTimeout <= 0 {
		return errors.New("transport.write_timeout must be positive")
	}
	if t.CloseTimeout <= 0 {
		return errors.New("transport.close_timeout must be positive")
	}
	if t.PingInterval < 0 {
		return errors.New("transport.ping_interval must not be negative")
	}
	if t.SendBuffer <= 0 {
		return errors.New("transport.send_buffer must be positive")
	}

	if c.Echo.Addr == "" {
		return errors.New("echo.addr must not be empty")
	}
	if c.UI.MaxMessagesRendered <= 0 {
		return errors.New("ui.max_messages_rendered must be positive")
	}
	return nil
}
