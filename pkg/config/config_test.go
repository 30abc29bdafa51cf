package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.Storage.Path)
	assert.False(t, cfg.Retention.Enabled)
	assert.Equal(t, "0 4 * * *", cfg.Retention.Schedule)
	assert.Equal(t, 0, cfg.EnabledCount())
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"log_level": "debug",
		"storage": {"path": "/tmp/cw.db"},
		"channels": {
			"discord": {"enabled": true, "token": "d-token", "guild_id": "G1"},
			"telegram": {"enabled": true, "token": "t-token"}
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/cw.db", cfg.Storage.Path)
	assert.Equal(t, "d-token", cfg.Channels.Discord.Token)
	assert.Equal(t, "G1", cfg.Channels.Discord.GuildID)
	assert.Equal(t, 2, cfg.EnabledCount())
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"channels": {"telegram": {"enabled": true, "token": "from-file"}}}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	t.Setenv("CROSSWIRE_CHANNELS_TELEGRAM_TOKEN", "from-env")
	t.Setenv("CROSSWIRE_LOG_LEVEL", "warn")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Channels.Telegram.Token)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "disabled channels need no tokens",
			mutate: func(*Config) {},
		},
		{
			name: "discord enabled without token",
			mutate: func(c *Config) {
				c.Channels.Discord.Enabled = true
			},
			wantErr: "discord",
		},
		{
			name: "telegram enabled without token",
			mutate: func(c *Config) {
				c.Channels.Telegram.Enabled = true
			},
			wantErr: "telegram",
		},
		{
			name: "slack needs both tokens",
			mutate: func(c *Config) {
				c.Channels.Slack.Enabled = true
				c.Channels.Slack.BotToken = "xoxb-1"
			},
			wantErr: "slack",
		},
		{
			name: "retention needs positive age",
			mutate: func(c *Config) {
				c.Retention.Enabled = true
				c.Retention.MaxAgeDays = 0
			},
			wantErr: "max_age_days",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	cfg := DefaultConfig()
	cfg.Channels.Discord.Enabled = true
	cfg.Channels.Discord.Token = "d-token"
	require.NoError(t, SaveConfig(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Channels.Discord, loaded.Channels.Discord)
	assert.Equal(t, cfg.Storage.Path, loaded.Storage.Path)
}
