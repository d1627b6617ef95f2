package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr       string
	DBPath           string
	PhotoPath        string
	InventoryBaseURL string
	InventoryAPIKey  string
	ProbeURL         string
	ProbeInterval    time.Duration
	LogLevel         string
	LogFile          string
}

// Load reads configuration from environment variables, with an optional
// .env file in the working directory. Env vars take priority.
func Load() *Config {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // missing file is fine

	v.AutomaticEnv()

	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("DB_PATH", "/data/stocktake.db")
	v.SetDefault("PHOTO_PATH", "/data/photos")
	v.SetDefault("INVENTORY_BASE_URL", "http://localhost:9090")
	v.SetDefault("INVENTORY_API_KEY", "")
	v.SetDefault("NETWORK_PROBE_URL", "")
	v.SetDefault("NETWORK_PROBE_INTERVAL", "15s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")

	cfg := &Config{
		ListenAddr:       v.GetString("LISTEN_ADDR"),
		DBPath:           v.GetString("DB_PATH"),
		PhotoPath:        v.GetString("PHOTO_PATH"),
		InventoryBaseURL: v.GetString("INVENTORY_BASE_URL"),
		InventoryAPIKey:  v.GetString("INVENTORY_API_KEY"),
		ProbeURL:         v.GetString("NETWORK_PROBE_URL"),
		ProbeInterval:    v.GetDuration("NETWORK_PROBE_INTERVAL"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		LogFile:          v.GetString("LOG_FILE"),
	}

	// The connectivity probe defaults to the inventory backend itself: if
	// that host is unreachable we are offline as far as syncing goes.
	if cfg.ProbeURL == "" {
		cfg.ProbeURL = cfg.InventoryBaseURL + "/healthz"
	}
	return cfg
}
