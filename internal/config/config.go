// Package config handles loading, parsing, and validating the YAML
// configuration file for the gateway. Secrets may be supplied or
// overridden through environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/availex/twitch-gateway-go/internal/constants"
)

// DefaultConfigFile is the default configuration file path.
const DefaultConfigFile = "gateway.yaml"

// Config is the top-level gateway configuration.
type Config struct {
	Username     string `yaml:"username"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`

	// Events lists the friendly event names to subscribe to, on top of
	// the mandatory set.
	Events []string `yaml:"events"`

	// Reconnect controls whether the channels retry recoverable
	// failures. Disabled mainly for tests and one-shot tooling.
	Reconnect *bool `yaml:"reconnect"`

	Chat   ChatConfig   `yaml:"chat"`
	Log    LogConfig    `yaml:"log"`
	Status StatusConfig `yaml:"status"`
}

// ChatConfig tunes the chat channel.
type ChatConfig struct {
	// Rooms are joined at startup, by broadcaster login name.
	Rooms []string `yaml:"rooms"`

	// MinSendInterval is the minimum spacing between outbound lines.
	// It is a lower bound; the channel never sends faster than this.
	MinSendInterval time.Duration `yaml:"min_send_interval"`

	QueueSize   int `yaml:"queue_size"`
	MaxInFlight int `yaml:"max_in_flight"`
}

// LogConfig tunes logging output.
type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// StatusConfig tunes the optional status HTTP server.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ShouldReconnect reports the effective reconnect setting.
func (c *Config) ShouldReconnect() bool {
	return c.Reconnect == nil || *c.Reconnect
}

// Load reads a Config from a YAML file, then overlays environment
// variables for secrets.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Chat.MinSendInterval == 0 {
		cfg.Chat.MinSendInterval = constants.ChatSendMinInterval
	}
	if cfg.Chat.QueueSize == 0 {
		cfg.Chat.QueueSize = constants.ChatSendQueueSize
	}
	if cfg.Chat.MaxInFlight == 0 {
		cfg.Chat.MaxInFlight = constants.ChatMaxInFlight
	}
	if cfg.Status.Addr == "" {
		cfg.Status.Addr = ":8080"
	}
}

// applyEnvOverrides overlays environment variables for secrets so they
// never need to live in the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TWITCH_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("TWITCH_CLIENT_SECRET"); v != "" {
		cfg.ClientSecret = v
	}
	if v := os.Getenv("TWITCH_ACCESS_TOKEN"); v != "" {
		cfg.AccessToken = v
	}
	if v := os.Getenv("TWITCH_REFRESH_TOKEN"); v != "" {
		cfg.RefreshToken = v
	}
	if v := os.Getenv("TWITCH_USERNAME"); v != "" {
		cfg.Username = v
	}
}

// Validate checks that the configuration can authenticate at all.
func Validate(cfg *Config) error {
	if cfg.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if cfg.AccessToken == "" && cfg.RefreshToken == "" {
		return fmt.Errorf("either access_token or refresh_token is required")
	}
	if cfg.RefreshToken != "" && cfg.AccessToken == "" && cfg.ClientSecret == "" {
		return fmt.Errorf("refresh_token without access_token requires client_secret")
	}
	if cfg.Chat.MinSendInterval < 0 {
		return fmt.Errorf("chat.min_send_interval must not be negative")
	}
	return nil
}
