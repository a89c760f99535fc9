package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the gateway HTTP server settings.
type ServerConfig struct {
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutDownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	CORSAllowedOrigins string        `mapstructure:"cors_allowed_origins"`
}

// UpstreamConfig points at the origin server the gateway fronts.
type UpstreamConfig struct {
	Origin  string        `mapstructure:"origin"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig controls the tier store and the request classifier.
type CacheConfig struct {
	Path         string   `mapstructure:"path"`
	ManifestPath string   `mapstructure:"manifest_path"`
	RootDocument string   `mapstructure:"root_document"`
	APIPrefixes  []string `mapstructure:"api_prefixes"`
	SkipPatterns []string `mapstructure:"skip_patterns"`
}

// SyncConfig controls the durable sync queue and its drain triggers.
type SyncConfig struct {
	Path          string            `mapstructure:"path"`
	DrainInterval time.Duration     `mapstructure:"drain_interval"`
	Endpoints     map[string]string `mapstructure:"endpoints"`  // tag -> replay URL
	TagRoutes     map[string]string `mapstructure:"tag_routes"` // path prefix -> tag
}

// NotifyConfig controls push notification rendering.
type NotifyConfig struct {
	DefaultBody string        `mapstructure:"default_body"`
	WebhookURL  string        `mapstructure:"webhook_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// MiscConfig holds settings that do not belong to a subsystem.
type MiscConfig struct {
	GinMode  string `mapstructure:"gin_mode"`
	LogLevel string `mapstructure:"log_level"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Misc     MiscConfig     `mapstructure:"misc"`
}

// LoadConfig reads config/config.yaml (if present), applies defaults and
// GO_OFFLINE_-prefixed environment overrides, and validates the result.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	// Defaults to allow running without config file
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 10*time.Second)
	viper.SetDefault("server.write_timeout", 10*time.Second)
	viper.SetDefault("server.idle_timeout", 120*time.Second)
	viper.SetDefault("server.shutdown_timeout", 5*time.Second)
	viper.SetDefault("server.request_timeout", 30*time.Second)
	viper.SetDefault("server.cors_allowed_origins", "*")
	viper.SetDefault("upstream.timeout", 15*time.Second)
	viper.SetDefault("cache.path", "./data/tiers")
	viper.SetDefault("cache.manifest_path", "./config/manifest.json")
	viper.SetDefault("cache.root_document", "/")
	viper.SetDefault("cache.api_prefixes", []string{"/api", "/auth"})
	viper.SetDefault("cache.skip_patterns", []string{"/@vite", "hot-update", "/sockjs-node"})
	viper.SetDefault("sync.path", "./data/queue")
	viper.SetDefault("sync.drain_interval", 30*time.Second)
	viper.SetDefault("notify.default_body", "You have new updates waiting.")
	viper.SetDefault("notify.timeout", 10*time.Second)
	viper.SetDefault("misc.gin_mode", "release")
	viper.SetDefault("misc.log_level", "info")

	// Environment variables automatically override config file values,
	// e.g. GO_OFFLINE_SERVER_PORT overrides server.port
	viper.AutomaticEnv()
	viper.SetEnvPrefix("GO_OFFLINE")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, fmt.Errorf("config file error: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.IdleTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}
	if c.Upstream.Origin == "" {
		return errors.New("upstream.origin is required")
	}
	if c.Cache.Path == "" {
		return errors.New("cache.path is required")
	}
	if c.Cache.ManifestPath == "" {
		return errors.New("cache.manifest_path is required")
	}
	if c.Cache.RootDocument == "" {
		return errors.New("cache.root_document is required")
	}
	if c.Sync.Path == "" {
		return errors.New("sync.path is required")
	}
	if c.Sync.DrainInterval <= 0 {
		return errors.New("sync.drain_interval must be positive")
	}
	for prefix, tag := range c.Sync.TagRoutes {
		if _, ok := c.Sync.Endpoints[tag]; !ok {
			return fmt.Errorf("sync.tag_routes %q maps to tag %q with no endpoint", prefix, tag)
		}
	}
	return nil
}
