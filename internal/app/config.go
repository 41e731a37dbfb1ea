package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/pelletier/go-toml/v2"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/yogaroll/internal/store"
)

const (
	defaultDSN        = "yoga_attendance.db"
	defaultPort       = ":5000"
	defaultDateFormat = "02/01/2006"
	defaultStateTTL   = 30 * time.Minute
)

type GSheetConfig struct {
	SheetID         string `toml:"sheet_id"`
	SheetName       string `toml:"sheet_name"`
	CredentialsPath string `toml:"credentials_path"`
	Schedule        string `toml:"schedule"`
	TargetRange     string `toml:"target_range"`
	TimestampRange  string `toml:"timestamp_range"`
}

type Config struct {
	Server struct {
		Port string `toml:"port"`
	} `toml:"server"`

	Database struct {
		DSN                 string `toml:"dsn"`
		EnsureSchemaOnWrite *bool  `toml:"ensure_schema_on_write"`
	} `toml:"database"`

	Studio struct {
		Name     string `toml:"name"`
		Timezone string `toml:"timezone"`
	} `toml:"studio"`

	Display struct {
		DateFormat string `toml:"date_format"`
	} `toml:"display"`

	Bot struct {
		Token    string `toml:"token"`
		RedisURL string `toml:"redis_url"`
		StateTTL string `toml:"state_ttl"`
	} `toml:"bot"`

	GSheet        []GSheetConfig `toml:"gsheet"`
	EmojiVariants []string       `toml:"emoji_variants"`

	location *time.Location
}

// LoadConfig reads the TOML file at path and then applies environment overrides.
// A missing file is fine as long as the environment and defaults are enough to run.
func LoadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info.Printf("Config file %s not found, using defaults and environment", path)
	case err != nil:
		return nil, fmt.Errorf("error reading config file: %w", err)
	default:
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf(
				"error reading config file %s\n> Error: %w\n> Content:\n%s",
				path,
				err,
				string(data),
			)
		}
	}

	config.applyEnv()
	config.applyDefaults()

	loc, err := time.LoadLocation(config.Studio.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown studio timezone %q: %w", config.Studio.Timezone, err)
	}
	config.location = loc

	if _, err := time.ParseDuration(config.Bot.StateTTL); err != nil {
		return nil, fmt.Errorf("invalid bot state_ttl %q: %w", config.Bot.StateTTL, err)
	}

	logger.Debug.Printf("Loaded config: db=%s port=%s tz=%s", config.DatabaseType(), config.Server.Port, config.Studio.Timezone)

	return &config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = ":" + v
	}
	if v := os.Getenv("STUDIO_TZ"); v != "" {
		c.Studio.Timezone = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		c.Bot.Token = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Bot.RedisURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.Database.DSN == "" {
		c.Database.DSN = defaultDSN
	}
	if c.Server.Port == "" {
		c.Server.Port = defaultPort
	}
	if c.Studio.Timezone == "" {
		c.Studio.Timezone = "UTC"
	}
	if c.Studio.Name == "" {
		c.Studio.Name = "Yoga"
	}
	if c.Display.DateFormat == "" {
		c.Display.DateFormat = defaultDateFormat
	}
	if c.Bot.StateTTL == "" {
		c.Bot.StateTTL = defaultStateTTL.String()
	}
	if len(c.EmojiVariants) == 0 {
		c.EmojiVariants = []string{"🧘", "🪷", "🌿", "☀️"}
	}
}

func (c *Config) DatabaseType() store.DatabaseType {
	return store.DetectType(c.Database.DSN)
}

// EnsureSchemaOnWrite defaults to on for network databases, which may be recreated under us.
func (c *Config) EnsureSchemaOnWrite() bool {
	if c.Database.EnsureSchemaOnWrite != nil {
		return *c.Database.EnsureSchemaOnWrite
	}
	return c.DatabaseType() == store.DBTypePostgres
}

func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c *Config) BotStateTTL() time.Duration {
	ttl, err := time.ParseDuration(c.Bot.StateTTL)
	if err != nil {
		return defaultStateTTL
	}
	return ttl
}
