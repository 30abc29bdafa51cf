// Package config loads crosswire configuration from a JSON file with
// environment variable overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	LogLevel  string          `env:"CROSSWIRE_LOG_LEVEL" json:"log_level"`
	Storage   StorageConfig   `json:"storage"`
	Channels  ChannelsConfig  `json:"channels"`
	Retention RetentionConfig `json:"retention"`
}

type StorageConfig struct {
	Path string `env:"CROSSWIRE_STORAGE_PATH" json:"path"`
}

type ChannelsConfig struct {
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`
	Slack    SlackConfig    `json:"slack"`
}

type DiscordConfig struct {
	Enabled bool   `env:"CROSSWIRE_CHANNELS_DISCORD_ENABLED"  json:"enabled"`
	Token   string `env:"CROSSWIRE_CHANNELS_DISCORD_TOKEN"    json:"token"`
	// GuildID scopes slash command registration to one guild, which makes
	// the commands visible immediately. Empty means global registration.
	GuildID string `env:"CROSSWIRE_CHANNELS_DISCORD_GUILD_ID" json:"guild_id,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `env:"CROSSWIRE_CHANNELS_TELEGRAM_ENABLED" json:"enabled"`
	Token   string `env:"CROSSWIRE_CHANNELS_TELEGRAM_TOKEN"   json:"token"`
}

type SlackConfig struct {
	Enabled  bool   `env:"CROSSWIRE_CHANNELS_SLACK_ENABLED"   json:"enabled"`
	BotToken string `env:"CROSSWIRE_CHANNELS_SLACK_BOT_TOKEN" json:"bot_token"`
	AppToken string `env:"CROSSWIRE_CHANNELS_SLACK_APP_TOKEN" json:"app_token"`
}

// RetentionConfig controls the optional message-link sweeper. Disabled by
// default: links are kept forever so arbitrarily late replies resolve.
type RetentionConfig struct {
	Enabled    bool   `env:"CROSSWIRE_RETENTION_ENABLED"      json:"enabled"`
	Schedule   string `env:"CROSSWIRE_RETENTION_SCHEDULE"     json:"schedule"`
	MaxAgeDays int    `env:"CROSSWIRE_RETENTION_MAX_AGE_DAYS" json:"max_age_days"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LogLevel: "info",
		Storage: StorageConfig{
			Path: filepath.Join(home, ".crosswire", "crosswire.db"),
		},
		Retention: RetentionConfig{
			Schedule:   "0 4 * * *",
			MaxAgeDays: 90,
		},
	}
}

// LoadConfig reads the config file at path (missing file means defaults)
// and applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate rejects configurations that cannot possibly relay: an enabled
// channel without credentials, or retention with a nonsensical age.
func (c *Config) Validate() error {
	if c.Channels.Discord.Enabled && c.Channels.Discord.Token == "" {
		return errors.New("discord channel is enabled but token is empty")
	}
	if c.Channels.Telegram.Enabled && c.Channels.Telegram.Token == "" {
		return errors.New("telegram channel is enabled but token is empty")
	}
	if c.Channels.Slack.Enabled && (c.Channels.Slack.BotToken == "" || c.Channels.Slack.AppToken == "") {
		return errors.New("slack channel is enabled but bot_token or app_token is empty")
	}
	if c.Retention.Enabled && c.Retention.MaxAgeDays <= 0 {
		return errors.New("retention is enabled but max_age_days is not positive")
	}
	return nil
}

// EnabledCount returns how many channels are enabled. The relay needs at
// least two platforms to do anything useful.
func (c *Config) EnabledCount() int {
	n := 0
	if c.Channels.Discord.Enabled {
		n++
	}
	if c.Channels.Telegram.Enabled {
		n++
	}
	if c.Channels.Slack.Enabled {
		n++
	}
	return n
}
