package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Addr      string
	JWTSecret string
	JWTTTLMin int

	// relay document store
	RelayDriver string
	SQLITEDsn   string
	PostgresDsn string
	RateRPS     float64
	RateBurst   int

	// client side
	RemoteURL   string
	AuthToken   string
	LocalDriver string
	LocalPath   string

	ChatInterval       time.Duration
	ListInterval       time.Duration
	BackgroundInterval time.Duration
	PushTimeout        time.Duration

	TypingWindow    time.Duration
	FreshnessWindow time.Duration
	HintCapacity    int
	MaxImageBytes   int
	ContactRegion   string

	LogLevel  string
	LogFormat string
}

var defaults = map[string]any{
	"http_addr":           ":8080",
	"jwt_secret":          "",
	"jwt_ttl_min":         1440,
	"relay_driver":        "sqlite",
	"sqlite_dsn":          "file:tradechat.db?_pragma=foreign_keys(ON)",
	"postgres_dsn":        "",
	"rate_rps":            5.0,
	"rate_burst":          10,
	"remote_url":          "http://localhost:8080",
	"auth_token":          "",
	"local_driver":        "sqlite",
	"local_path":          "tradechat-local.db",
	"chat_interval":       time.Second,
	"list_interval":       3 * time.Second,
	"background_interval": 30 * time.Second,
	"push_timeout":        10 * time.Second,
	"typing_window":       3 * time.Second,
	"freshness_window":    30 * time.Minute,
	"hint_capacity":       100,
	"max_image_bytes":     5 * 1024 * 1024,
	"contact_region":      "EG",
	"log_level":           "info",
	"log_format":          "console",
}

// Load resolves configuration: defaults < config file < environment.
// An empty path looks for an optional tradechat.yaml in the working directory.
func Load(path string) (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tradechat")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Addr:               v.GetString("http_addr"),
		JWTSecret:          v.GetString("jwt_secret"),
		JWTTTLMin:          v.GetInt("jwt_ttl_min"),
		RelayDriver:        v.GetString("relay_driver"),
		SQLITEDsn:          v.GetString("sqlite_dsn"),
		PostgresDsn:        v.GetString("postgres_dsn"),
		RateRPS:            v.GetFloat64("rate_rps"),
		RateBurst:          v.GetInt("rate_burst"),
		RemoteURL:          v.GetString("remote_url"),
		AuthToken:          v.GetString("auth_token"),
		LocalDriver:        v.GetString("local_driver"),
		LocalPath:          v.GetString("local_path"),
		ChatInterval:       v.GetDuration("chat_interval"),
		ListInterval:       v.GetDuration("list_interval"),
		BackgroundInterval: v.GetDuration("background_interval"),
		PushTimeout:        v.GetDuration("push_timeout"),
		TypingWindow:       v.GetDuration("typing_window"),
		FreshnessWindow:    v.GetDuration("freshness_window"),
		HintCapacity:       v.GetInt("hint_capacity"),
		MaxImageBytes:      v.GetInt("max_image_bytes"),
		ContactRegion:      v.GetString("contact_region"),
		LogLevel:           v.GetString("log_level"),
		LogFormat:          v.GetString("log_format"),
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	switch c.RelayDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown relay_driver %q", c.RelayDriver)
	}
	switch c.LocalDriver {
	case "sqlite", "bolt", "pebble":
	default:
		return fmt.Errorf("unknown local_driver %q", c.LocalDriver)
	}
	if c.ChatInterval <= 0 || c.ListInterval <= 0 || c.BackgroundInterval <= 0 {
		return errors.New("sync intervals must be positive")
	}
	if c.HintCapacity <= 0 {
		return errors.New("hint_capacity must be positive")
	}
	return nil
}

func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	return cfg
}
