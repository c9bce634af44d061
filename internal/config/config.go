// Package config loads server configuration from the environment.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime settings. Every field has a default so the server
// starts with no environment at all.
type Config struct {
	ServerAddr string `mapstructure:"SERVER_ADDR"`
	DataDir    string `mapstructure:"DATA_DIR"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	ProviderTimeout     time.Duration `mapstructure:"PROVIDER_TIMEOUT"`
	LowBatteryThreshold int           `mapstructure:"LOW_BATTERY_THRESHOLD"`
	CleanupMaxAttempts  int           `mapstructure:"CLEANUP_MAX_ATTEMPTS"`
	CodeLength          int           `mapstructure:"CODE_LENGTH"`

	ExpiryInterval     time.Duration `mapstructure:"EXPIRY_INTERVAL"`
	CleanupInterval    time.Duration `mapstructure:"CLEANUP_INTERVAL"`
	StatusSyncInterval time.Duration `mapstructure:"STATUS_SYNC_INTERVAL"`
}

// Load reads configuration from environment variables, applying defaults for
// anything unset.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_ADDR", ":8099")
	v.SetDefault("DATA_DIR", "/data")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("PROVIDER_TIMEOUT", 10*time.Second)
	v.SetDefault("LOW_BATTERY_THRESHOLD", 20)
	v.SetDefault("CLEANUP_MAX_ATTEMPTS", 10)
	v.SetDefault("CODE_LENGTH", 6)

	v.SetDefault("EXPIRY_INTERVAL", time.Minute)
	v.SetDefault("CLEANUP_INTERVAL", 5*time.Minute)
	v.SetDefault("STATUS_SYNC_INTERVAL", 15*time.Minute)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
