package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "file-token", cfg.Discord.Token)
	assert.Equal(t, "123", cfg.Discord.GuildID)
	assert.Equal(t, "456", cfg.Discord.ChannelID)
	assert.Equal(t, "789", cfg.Discord.RoleID)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "geburtstage", cfg.Database.Table)
	assert.Equal(t, "Europe/Vienna", cfg.Timezone)
	assert.Equal(t, 72*time.Hour, cfg.SaveCooldown)
	assert.Equal(t, 65, cfg.AdminMatchThreshold)

	hour, minute, err := cfg.AnnounceTime()
	require.NoError(t, err)
	assert.Equal(t, uint(7), hour)
	assert.Equal(t, uint(30), minute)
	assert.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultTimezone, cfg.Timezone)
	assert.Equal(t, DefaultDriver, cfg.Database.Driver)
	assert.Equal(t, DefaultDSN, cfg.Database.DSN)
	assert.Equal(t, DefaultTable, cfg.Database.Table)
	assert.Equal(t, DefaultAnnounceAt, cfg.AnnounceAt)
	assert.Equal(t, DefaultSaveCooldown, cfg.SaveCooldown)
	assert.Equal(t, DefaultMatchScore, cfg.AdminMatchThreshold)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "env-token")
	t.Setenv("DISCORD_CHANNEL_ID", "999")
	t.Setenv("SAVE_COOLDOWN", "10m")
	t.Setenv("ADMIN_MATCH_THRESHOLD", "80")

	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Discord.Token)
	assert.Equal(t, "999", cfg.Discord.ChannelID)
	assert.Equal(t, "123", cfg.Discord.GuildID)
	assert.Equal(t, 10*time.Minute, cfg.SaveCooldown)
	assert.Equal(t, 80, cfg.AdminMatchThreshold)
}

func TestInvalidEnvironment(t *testing.T) {
	t.Setenv("SAVE_COOLDOWN", "soon")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("discord: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	assert.ErrorContains(t, cfg.Validate(), "discord.token")

	cfg.Discord = Discord{Token: "t", GuildID: "g", ChannelID: "c"}
	assert.NoError(t, cfg.Validate())

	cfg.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())

	cfg.Timezone = DefaultTimezone
	cfg.AnnounceAt = "25:00"
	assert.Error(t, cfg.Validate())
}
