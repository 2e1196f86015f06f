// Package config loads service settings and the initial game tables.
//
// Settings come from config/config.yaml (or an explicit path), overridden by
// SCRATCH_* environment variables; a .env file, when present, is loaded into
// the environment first. PORT, DATABASE_URL and REDIS_URL are honoured as
// well so the service runs under the usual container conventions.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/atmx/scratch-engine/internal/asset"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Game     GameConfig     `mapstructure:"game"`
	Limits   LimitsConfig   `mapstructure:"limits"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	DevFaucet       bool          `mapstructure:"dev_faucet"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig configures PostgreSQL. An empty URL selects the in-memory
// store.
type DatabaseConfig struct {
	URL     string `mapstructure:"url"`
	Migrate bool   `mapstructure:"migrate"`
}

// RedisConfig configures the read-through cache. An empty URL disables it.
type RedisConfig struct {
	URL      string        `mapstructure:"url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// GameConfig holds the economic parameters of the game.
type GameConfig struct {
	Treasury     string `mapstructure:"treasury"`
	DefaultAsset string `mapstructure:"default_asset"`
	Cost         uint64 `mapstructure:"cost"`

	// Admin overrides the admin named in the tables file.
	Admin string `mapstructure:"admin"`

	// TablesPath points at the seed odds file; empty uses DefaultTables.
	TablesPath string `mapstructure:"tables_path"`

	// RNGSeed, when non-zero, replaces the crypto source with a seeded
	// generator. Never set it in production.
	RNGSeed uint64 `mapstructure:"rng_seed"`
}

// LimitsConfig bounds purchases.
type LimitsConfig struct {
	MaxCardsPerPurchase uint64  `mapstructure:"max_cards_per_purchase"`
	CardsPerSecond      float64 `mapstructure:"cards_per_second"`
	Burst               int     `mapstructure:"burst"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.dev_faucet", false)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("database.url", "")
	v.SetDefault("database.migrate", true)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.cache_ttl", 30*time.Second)
	v.SetDefault("game.treasury", "treasury")
	v.SetDefault("game.default_asset", "USDC")
	v.SetDefault("game.cost", 1_000_000)
	v.SetDefault("game.admin", "")
	v.SetDefault("game.tables_path", "")
	v.SetDefault("game.rng_seed", 0)
	v.SetDefault("limits.max_cards_per_purchase", 100)
	v.SetDefault("limits.cards_per_second", 10.0)
	v.SetDefault("limits.burst", 100)
}

// Load reads the configuration. An empty path searches ./config for
// config.yaml and falls back to defaults when none exists; an explicit path
// must exist.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SCRATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := overrideFromEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// overrideFromEnv applies the conventional unprefixed variables.
func overrideFromEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	return nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Game.Treasury == "" {
		return errors.New("config: game.treasury must be set")
	}
	if _, err := asset.Parse(c.Game.DefaultAsset); err != nil {
		return fmt.Errorf("config: game.default_asset: %w", err)
	}
	if c.Limits.Burst < 0 {
		return fmt.Errorf("config: limits.burst %d is negative", c.Limits.Burst)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}
