package config

import (
	"errors"
	"strings"
	"time"

	"chest/internal/sequencer"
	"chest/internal/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Catalog CatalogConfig
	Reveal  RevealConfig
	Session SessionConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port    string
	Verbose bool
}

// StorageConfig selects where draw records are kept
type StorageConfig struct {
	Driver        string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MongoURI      string
	MongoDatabase string
}

// CatalogConfig points at an optional YAML prize catalog; empty means built-in
type CatalogConfig struct {
	Path string
}

// RevealConfig holds the phase durations in milliseconds
type RevealConfig struct {
	ShakingMS       int
	RevealingMS     int
	PresentingMS    int
	ShortcutPauseMS int
}

// SessionConfig controls the inactive-session janitor
type SessionConfig struct {
	IdleTimeout     time.Duration
	CleanupSchedule string
}

// Load reads an optional .env file, then config.yaml from . or ./config,
// then environment variables such as STORAGE_DRIVER or SERVER_PORT.
func Load() (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// It's okay if config file is not found, we'll use environment variables
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	d := sequencer.DefaultTimings()

	v.SetDefault("Server.Port", "8080")
	v.SetDefault("Server.Verbose", true)
	v.SetDefault("Storage.Driver", "sqlite")
	v.SetDefault("Storage.SQLitePath", "chest.db")
	v.SetDefault("Storage.RedisAddr", "localhost:6379")
	v.SetDefault("Storage.RedisPassword", "")
	v.SetDefault("Storage.RedisDB", 0)
	v.SetDefault("Storage.MongoURI", "")
	v.SetDefault("Storage.MongoDatabase", "chest")
	v.SetDefault("Catalog.Path", "")
	v.SetDefault("Reveal.ShakingMS", d.Shaking.Milliseconds())
	v.SetDefault("Reveal.RevealingMS", d.Revealing.Milliseconds())
	v.SetDefault("Reveal.PresentingMS", d.Presenting.Milliseconds())
	v.SetDefault("Reveal.ShortcutPauseMS", d.ShortcutPause.Milliseconds())
	v.SetDefault("Session.IdleTimeout", time.Hour)
	v.SetDefault("Session.CleanupSchedule", "@every 10m")
}

// Timings converts the reveal durations.
func (c *Config) Timings() sequencer.Timings {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return sequencer.Timings{
		Shaking:       ms(c.Reveal.ShakingMS),
		Revealing:     ms(c.Reveal.RevealingMS),
		Presenting:    ms(c.Reveal.PresentingMS),
		ShortcutPause: ms(c.Reveal.ShortcutPauseMS),
	}
}

// StorageOptions converts the storage section.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Driver:        c.Storage.Driver,
		SQLitePath:    c.Storage.SQLitePath,
		RedisAddr:     c.Storage.RedisAddr,
		RedisPassword: c.Storage.RedisPassword,
		RedisDB:       c.Storage.RedisDB,
		MongoURI:      c.Storage.MongoURI,
		MongoDatabase: c.Storage.MongoDatabase,
	}
}
