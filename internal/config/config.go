package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// AppConfig carries the tool-level settings that are not part of a
// connection profile: where the database lives, logging, and the defaults
// applied to deployments when the CLI flags are left unset.
type AppConfig struct {
	DatabaseURL    string
	LogLevel       string
	LogPath        string
	MaxConcurrency int
	MaxRetries     int
	ConnectTimeout time.Duration
	BuildCommand   string
}

var cfg AppConfig

// Init reads config.yaml (if present), environment variables prefixed with
// SITEDEPLOY_, and falls back to defaults. It is safe to call once at startup.
func Init() AppConfig {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "sitedeploy"))
	}

	v.SetDefault("database_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_path", "")
	v.SetDefault("deploy.max_concurrency", 4)
	v.SetDefault("deploy.max_retries", 3)
	v.SetDefault("deploy.connect_timeout", "30s")
	v.SetDefault("deploy.build_command", "")

	v.SetEnvPrefix("SITEDEPLOY")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	cfg = AppConfig{
		DatabaseURL:    v.GetString("database_url"),
		LogLevel:       v.GetString("log_level"),
		LogPath:        v.GetString("log_path"),
		MaxConcurrency: v.GetInt("deploy.max_concurrency"),
		MaxRetries:     v.GetInt("deploy.max_retries"),
		ConnectTimeout: v.GetDuration("deploy.connect_timeout"),
		BuildCommand:   v.GetString("deploy.build_command"),
	}
	return cfg
}

// Get returns the configuration loaded by Init.
func Get() AppConfig { return cfg }
