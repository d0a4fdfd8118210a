package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the full bot configuration, loaded from a TOML file.
type Config struct {
	Telegram     TelegramConfig     `toml:"telegram"`
	Aria2        Aria2Config        `toml:"aria2"`
	Database     DatabaseConfig     `toml:"database"`
	Pagination   PaginationConfig   `toml:"pagination"`
	Logging      LoggingConfig      `toml:"logging"`
	Notification NotificationConfig `toml:"notification"`
	Monitor      MonitorConfig      `toml:"monitor"`
	Observer     ObserverConfig     `toml:"observer"`
}

type TelegramConfig struct {
	Token           string  `toml:"token"`
	APIBaseURL      string  `toml:"api_base_url"`
	AuthorizedUsers []int64 `toml:"authorized_users"`
}

type Aria2Config struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Secret         string `toml:"secret"`
	TimeoutSeconds int    `toml:"timeout"`
}

type DatabaseConfig struct {
	Path       string `toml:"path"`
	MaxHistory int    `toml:"max_history"`
}

type PaginationConfig struct {
	ItemsPerPage int `toml:"items_per_page"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type NotificationConfig struct {
	Enabled         bool    `toml:"enabled"`
	IntervalSeconds int     `toml:"check_interval"`
	NotifyUsers     []int64 `toml:"notify_users"`
}

type MonitorConfig struct {
	IntervalSeconds int `toml:"interval"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Aria2:        Aria2Config{Host: "http://localhost", Port: 6800, TimeoutSeconds: 10},
		Database:     DatabaseConfig{Path: "aria2bot.db", MaxHistory: 100},
		Pagination:   PaginationConfig{ItemsPerPage: 5},
		Logging:      LoggingConfig{Level: "info"},
		Notification: NotificationConfig{IntervalSeconds: 60},
		Monitor:      MonitorConfig{IntervalSeconds: 5},
	}
}

// Load reads TOML config from path, merged over Default.
// The TELEGRAM_API_BASE environment variable, when set, overrides the
// configured Telegram API base URL.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	if base := os.Getenv("TELEGRAM_API_BASE"); base != "" {
		cfg.Telegram.APIBaseURL = base
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that all required fields are present.
func (c Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("config: telegram.token is required")
	}
	if len(c.Telegram.AuthorizedUsers) == 0 {
		return fmt.Errorf("config: telegram.authorized_users must be a non-empty list")
	}
	if c.Aria2.Host == "" {
		return fmt.Errorf("config: aria2.host is required")
	}
	if c.Aria2.Port <= 0 {
		return fmt.Errorf("config: aria2.port must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("config: database.path is required")
	}
	if c.Pagination.ItemsPerPage <= 0 {
		return fmt.Errorf("config: pagination.items_per_page must be positive")
	}
	return nil
}

// NotifyRecipients returns the notification recipients, defaulting to the
// authorized user list when none are configured explicitly.
func (c Config) NotifyRecipients() []int64 {
	if len(c.Notification.NotifyUsers) > 0 {
		return c.Notification.NotifyUsers
	}
	return c.Telegram.AuthorizedUsers
}
