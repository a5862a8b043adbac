package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	envConfigPath = "WISOCHAT_CONFIG"
	envRelayURL   = "WISOCHAT_RELAY_URL"
	envEmojis     = "WISOCHAT_EMOJIS"
	envServerPort = "WISOCHAT_SERVER_PORT"
	envTelegram   = "WISOCHAT_TELEGRAM_TOKEN"

	defaultRelayURL          = "ws://127.0.0.1:4000/ws"
	defaultServerHost        = "0.0.0.0"
	defaultServerPort        = 4000
	defaultTitle             = "wisoChat"
	defaultReconnectMinMilli = 500
	defaultReconnectMaxMilli = 10000
)

var defaultEmojis = []string{"😀", "😂", "😍", "😎", "🤔", "😢", "👍", "👋", "🎉", "🔥", "❤️", "🙏"}

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Relay    RelayClientConfig `json:"relay"`
	Server   RelayServerConfig `json:"server"`
	UI       UIConfig          `json:"ui"`
	Telegram TelegramConfig    `json:"telegram,omitempty"`
	Logging  LoggingConfig     `json:"logging,omitempty"`
}

// TelegramConfig selects a Telegram group as the chat room instead of the
// relay.
type TelegramConfig struct {
	Token     string   `json:"token,omitempty"`
	ChatID    int64    `json:"chat_id,omitempty"`
	AllowFrom []string `json:"allow_from,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
	File      string `json:"file,omitempty"`
}

// RelayClientConfig describes how the chat client reaches the relay.
type RelayClientConfig struct {
	URL                string `json:"url"`
	ReconnectMinMillis int    `json:"reconnect_min_millis"`
	ReconnectMaxMillis int    `json:"reconnect_max_millis"`
}

// ReconnectMin returns the first reconnect delay.
func (c RelayClientConfig) ReconnectMin() time.Duration {
	return time.Duration(c.ReconnectMinMillis) * time.Millisecond
}

// ReconnectMax returns the reconnect delay ceiling.
func (c RelayClientConfig) ReconnectMax() time.Duration {
	return time.Duration(c.ReconnectMaxMillis) * time.Millisecond
}

// RelayServerConfig configures the relay bind address.
type RelayServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Addr returns host:port.
func (c RelayServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// UIConfig configures the terminal client.
type UIConfig struct {
	Title  string   `json:"title"`
	Emojis []string `json:"emojis"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig resolves config.json, unmarshals it, and applies defaults and
// environment overrides. An empty explicitPath falls back to
// WISOCHAT_CONFIG and then to cwd-local paths.
func LoadConfig(explicitPath string) (*Config, error) {
	configPath, err := findConfigPath(explicitPath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Relay.URL) == "" {
		cfg.Relay.URL = defaultRelayURL
	}
	if cfg.Relay.ReconnectMinMillis <= 0 {
		cfg.Relay.ReconnectMinMillis = defaultReconnectMinMilli
	}
	if cfg.Relay.ReconnectMaxMillis <= 0 {
		cfg.Relay.ReconnectMaxMillis = defaultReconnectMaxMilli
	}
	if cfg.Relay.ReconnectMaxMillis < cfg.Relay.ReconnectMinMillis {
		cfg.Relay.ReconnectMaxMillis = cfg.Relay.ReconnectMinMillis
	}

	if strings.TrimSpace(cfg.Server.Host) == "" {
		cfg.Server.Host = defaultServerHost
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = defaultServerPort
	}

	if strings.TrimSpace(cfg.UI.Title) == "" {
		cfg.UI.Title = defaultTitle
	}
	if len(cfg.UI.Emojis) == 0 {
		cfg.UI.Emojis = slices.Clone(defaultEmojis)
	}
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	if url := strings.TrimSpace(os.Getenv(envRelayURL)); url != "" {
		cfg.Relay.URL = url
	}

	if token := strings.TrimSpace(os.Getenv(envTelegram)); token != "" {
		cfg.Telegram.Token = token
	}

	if rawEmojis := strings.TrimSpace(os.Getenv(envEmojis)); rawEmojis != "" {
		cfg.UI.Emojis = parseCSV(rawEmojis)
	}

	if rawPort := strings.TrimSpace(os.Getenv(envServerPort)); rawPort != "" {
		port, err := strconv.Atoi(rawPort)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("%s must be a TCP port, got %q", envServerPort, rawPort)
		}
		cfg.Server.Port = port
	}

	return nil
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is the explicit path, then WISOCHAT_CONFIG, then cwd-local
// fallback paths. An empty result means no file and defaults apply.
func findConfigPath(explicitPath string) (string, error) {
	if value := strings.TrimSpace(explicitPath); value != "" {
		if isFile(value) {
			return value, nil
		}
		return "", fmt.Errorf("config path does not point to a file: %s", value)
	}

	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if isFile(value) {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if isFile(candidate) {
			return candidate, nil
		}
	}

	return "", nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Validate reports settings the commands cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if !strings.HasPrefix(c.Relay.URL, "ws://") && !strings.HasPrefix(c.Relay.URL, "wss://") {
		errs = append(errs, fmt.Errorf("relay.url must use ws:// or wss://, got %q", c.Relay.URL))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	return errors.Join(errs...)
}
