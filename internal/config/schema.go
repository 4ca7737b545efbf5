package config

// Config is the daemon configuration.
type Config struct {
	Bot       BotConfig       `toml:"bot"`
	Document  DocumentConfig  `toml:"document"`
	Storage   StorageConfig   `toml:"storage"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Watcher   WatcherConfig   `toml:"watcher"`
	API       APIConfig       `toml:"api"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Logging   LoggingConfig   `toml:"logging"`
	Notify    NotifyConfig    `toml:"notify"`
}

// BotConfig identifies this instance inside the document.
type BotConfig struct {
	Name string `toml:"name"`
}

// DocumentConfig locates the shared document.
type DocumentConfig struct {
	Path         string `toml:"path"`
	ValidateYAML *bool  `toml:"validate_yaml"`
	History      *bool  `toml:"history"`
}

// StorageConfig locates the job file and the key-value store.
type StorageConfig struct {
	Path          string `toml:"path"`
	Driver        string `toml:"driver"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
}

// SchedulerConfig tunes the job scheduler.
type SchedulerConfig struct {
	OneshotTickMS int `toml:"oneshot_tick_ms"`
}

// WatcherConfig controls reconciliation on external edits.
type WatcherConfig struct {
	Enabled    *bool `toml:"enabled"`
	DebounceMS int   `toml:"debounce_ms"`
}

// APIConfig is the HTTP listener.
type APIConfig struct {
	Listen string `toml:"listen"`
}

// MetricsConfig controls the /metrics endpoint.
type MetricsConfig struct {
	Enabled   *bool  `toml:"enabled"`
	Namespace string `toml:"namespace"`
}

// LoggingConfig mirrors logger.Config.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// NotifyConfig lists notification channels.
type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

// TelegramConfig sends rule events to one chat.
type TelegramConfig struct {
	Enabled bool   `toml:"enabled"`
	Token   string `toml:"token"`
	ChatID  int64  `toml:"chat_id"`
}

// Enabled reads an optional switch.
func Enabled(b *bool) bool {
	return b != nil && *b
}
