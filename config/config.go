// Package config loads the bot's settings once at start-up.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // canonical zone must resolve in minimal containers

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied to missing settings.
const (
	DefaultPath         = "config.yaml"
	DefaultTimezone     = "Europe/Berlin"
	DefaultDriver       = "sqlite"
	DefaultDSN          = "birthdays.db"
	DefaultTable        = "birthdays"
	DefaultAnnounceAt   = "00:00"
	DefaultSaveCooldown = time.Hour
	DefaultMatchScore   = 70
	tokenSecretPath     = "/run/secrets/discord_token"
)

// Discord holds the platform identifiers.
type Discord struct {
	Token     string `yaml:"token"`
	GuildID   string `yaml:"guild_id"`
	ChannelID string `yaml:"channel_id"`
	// RoleID is optional; when set the role is given to members on their
	// birthday.
	RoleID string `yaml:"role_id"`
}

// Database selects the record store.
type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
}

// Config is the complete, immutable bot configuration.
type Config struct {
	Discord             Discord       `yaml:"discord"`
	Database            Database      `yaml:"database"`
	Timezone            string        `yaml:"timezone"`
	AnnounceAt          string        `yaml:"announce_at"`
	SaveCooldown        time.Duration `yaml:"save_cooldown"`
	AdminMatchThreshold int           `yaml:"admin_match_threshold"`
}

// Load reads the YAML file at path (a missing file is not an error), applies
// .env and environment overrides and fills in defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %v: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %v: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	overrides := map[string]*string{
		"DISCORD_TOKEN":      &c.Discord.Token,
		"DISCORD_GUILD_ID":   &c.Discord.GuildID,
		"DISCORD_CHANNEL_ID": &c.Discord.ChannelID,
		"DISCORD_ROLE_ID":    &c.Discord.RoleID,
		"DATABASE_DRIVER":    &c.Database.Driver,
		"DATABASE_DSN":       &c.Database.DSN,
		"DATABASE_TABLE":     &c.Database.Table,
		"TIMEZONE":           &c.Timezone,
		"ANNOUNCE_AT":        &c.AnnounceAt,
	}
	for key, field := range overrides {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			*field = value
		}
	}

	if value := os.Getenv("SAVE_COOLDOWN"); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid SAVE_COOLDOWN %q: %w", value, err)
		}
		c.SaveCooldown = d
	}
	if value := os.Getenv("ADMIN_MATCH_THRESHOLD"); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ADMIN_MATCH_THRESHOLD %q: %w", value, err)
		}
		c.AdminMatchThreshold = n
	}

	if c.Discord.Token == "" {
		if data, err := os.ReadFile(tokenSecretPath); err == nil {
			c.Discord.Token = strings.TrimSpace(string(data))
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.AnnounceAt == "" {
		c.AnnounceAt = DefaultAnnounceAt
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDriver
	}
	if c.Database.DSN == "" && c.Database.Driver == DefaultDriver {
		c.Database.DSN = DefaultDSN
	}
	if c.Database.Table == "" {
		c.Database.Table = DefaultTable
	}
	if c.SaveCooldown == 0 {
		c.SaveCooldown = DefaultSaveCooldown
	}
	if c.AdminMatchThreshold == 0 {
		c.AdminMatchThreshold = DefaultMatchScore
	}
}

// Location resolves the canonical timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// AnnounceTime parses AnnounceAt as HH:MM.
func (c *Config) AnnounceTime() (hour, minute uint, err error) {
	t, err := time.Parse("15:04", c.AnnounceAt)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid announce_at %q: expected HH:MM", c.AnnounceAt)
	}
	return uint(t.Hour()), uint(t.Minute()), nil
}

// Validate checks the settings needed to connect to the platform.
func (c *Config) Validate() error {
	var missing []string
	if c.Discord.Token == "" {
		missing = append(missing, "discord.token")
	}
	if c.Discord.GuildID == "" {
		missing = append(missing, "discord.guild_id")
	}
	if c.Discord.ChannelID == "" {
		missing = append(missing, "discord.channel_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %v", strings.Join(missing, ", "))
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, _, err := c.AnnounceTime(); err != nil {
		return err
	}
	if c.AdminMatchThreshold < 0 || c.AdminMatchThreshold > 100 {
		return fmt.Errorf("admin_match_threshold must be between 0 and 100, got %d", c.AdminMatchThreshold)
	}
	return nil
}
