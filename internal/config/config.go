// Package config loads the TOML configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads the TOML file at path, applies defaults and expands
// environment variables and home directories.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(string(data))
}

// Parse is Load for TOML text.
func Parse(data string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := expandEnvVars(&cfg); err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}
	applyDefaults(&cfg)

	return &cfg, nil
}

// Default is the configuration used without a config file.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Validate returns every problem found.
func (c *Config) Validate() []error {
	var errs []error

	if c.Bot.Name == "" {
		errs = append(errs, fmt.Errorf("bot.name is required"))
	} else if strings.ContainsAny(c.Bot.Name, " \t\r\n") {
		errs = append(errs, fmt.Errorf("bot.name must be a single word: %q", c.Bot.Name))
	}

	if err := validatePath(c.Document.Path, "document.path"); err != nil {
		errs = append(errs, err)
	}
	if err := validatePath(c.Storage.Path, "storage.path"); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage.Driver {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("invalid storage.driver: %s (expected: sqlite, memory)", c.Storage.Driver))
	}
	if c.Storage.BusyTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("storage.busy_timeout_ms must be >= 0"))
	}

	if c.Scheduler.OneshotTickMS < 10 {
		errs = append(errs, fmt.Errorf("scheduler.oneshot_tick_ms must be >= 10 (got %d)", c.Scheduler.OneshotTickMS))
	}
	if c.Watcher.DebounceMS < 0 {
		errs = append(errs, fmt.Errorf("watcher.debounce_ms must be >= 0"))
	}

	if c.API.Listen != "" {
		if _, _, err := net.SplitHostPort(c.API.Listen); err != nil {
			errs = append(errs, fmt.Errorf("invalid api.listen: %w", err))
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
	}

	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.Token == "" {
			errs = append(errs, fmt.Errorf("notify.telegram.token is required when telegram is enabled"))
		} else if err := validateTelegramToken(c.Notify.Telegram.Token); err != nil {
			errs = append(errs, err)
		}
		if c.Notify.Telegram.ChatID == 0 {
			errs = append(errs, fmt.Errorf("notify.telegram.chat_id is required when telegram is enabled"))
		}
	}

	return errs
}

// JobsDir is where the job file lives.
func (c *Config) JobsDir() string { return c.Storage.Path }

// KVPath is the sqlite database file.
func (c *Config) KVPath() string { return filepath.Join(c.Storage.Path, "kv.db") }

// BusyTimeout is storage.busy_timeout_ms as a duration.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.Storage.BusyTimeoutMS) * time.Millisecond
}

// OneshotTick is scheduler.oneshot_tick_ms as a duration.
func (c *Config) OneshotTick() time.Duration {
	return time.Duration(c.Scheduler.OneshotTickMS) * time.Millisecond
}

// Debounce is watcher.debounce_ms as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watcher.DebounceMS) * time.Millisecond
}

func validateTelegramToken(token string) error {
	parts := strings.Split(token, ":")
	if len(parts) != 2 {
		return fmt.Errorf("telegram token has invalid format (expected format: <bot_id>:<token>, got: %s)", maskTelegramToken(token))
	}

	botID := parts[0]
	if len(botID) < 3 || len(botID) > 15 {
		return fmt.Errorf("telegram token has invalid bot ID length (expected 3-15 digits, got %d digits)", len(botID))
	}
	for _, r := range botID {
		if r < '0' || r > '9' {
			return fmt.Errorf("telegram token has invalid bot ID (expected digits only, got: %s)", botID)
		}
	}
	if n := len(parts[1]); n < 10 || n > 50 {
		return fmt.Errorf("telegram token has invalid token length (expected 10-50 characters, got %d)", n)
	}
	return nil
}

func validatePath(path, fieldName string) error {
	if path == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("%s contains potentially dangerous path traversal sequence", fieldName)
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.Bot.Name == "" {
		c.Bot.Name = "ruletoggle"
	}

	if c.Document.Path == "" {
		c.Document.Path = expandHome("~/.ruletoggle/automoderator.yaml")
	}
	if c.Document.ValidateYAML == nil {
		c.Document.ValidateYAML = boolPtr(true)
	}
	if c.Document.History == nil {
		c.Document.History = boolPtr(true)
	}

	if c.Storage.Path == "" {
		c.Storage.Path = expandHome("~/.ruletoggle/state")
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.BusyTimeoutMS == 0 {
		c.Storage.BusyTimeoutMS = 5000
	}

	if c.Scheduler.OneshotTickMS == 0 {
		c.Scheduler.OneshotTickMS = 1000
	}

	if c.Watcher.Enabled == nil {
		c.Watcher.Enabled = boolPtr(true)
	}
	if c.Watcher.DebounceMS == 0 {
		c.Watcher.DebounceMS = 500
	}

	if c.API.Listen == "" {
		c.API.Listen = "127.0.0.1:8085"
	}

	if c.Metrics.Enabled == nil {
		c.Metrics.Enabled = boolPtr(true)
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "ruletoggle"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

func expandEnvVars(c *Config) error {
	c.Bot.Name = expandEnv(c.Bot.Name)
	c.Document.Path = expandHome(expandEnv(c.Document.Path))
	c.Storage.Path = expandHome(expandEnv(c.Storage.Path))
	c.API.Listen = expandEnv(c.API.Listen)
	c.Logging.Output = expandHome(expandEnv(c.Logging.Output))
	c.Notify.Telegram.Token = expandEnv(c.Notify.Telegram.Token)
	return nil
}

// expandEnv expands a value of the form ${VAR} or ${VAR:default}.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	if parts := strings.SplitN(content, ":", 2); len(parts) == 2 {
		if val := os.Getenv(parts[0]); val != "" {
			return val
		}
		return parts[1]
	}
	return os.Getenv(content)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

func boolPtr(b bool) *bool { return &b }
