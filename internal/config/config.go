package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DB struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"db"`

	API struct {
		Listen         string   `mapstructure:"listen"`
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"api"`

	Hub struct {
		TopN       int           `mapstructure:"top_n"`
		DebounceMS int           `mapstructure:"debounce_ms"`
		Debounce   time.Duration `mapstructure:"-"`
		InstanceID string        `mapstructure:"instance_id"`
		TokenTTL   time.Duration `mapstructure:"token_ttl"`
		Heartbeat  time.Duration `mapstructure:"heartbeat"`
		SendBuffer int           `mapstructure:"send_buffer"`
		DemoSeed   bool          `mapstructure:"demo_seed"`
	} `mapstructure:"hub"`

	Sync struct {
		URL     string `mapstructure:"url"`
		Channel string `mapstructure:"channel"`
	} `mapstructure:"sync"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// Load reads an optional yaml file, then .env and LEADERBOARD_* variables.
// A missing db.dsn runs the hub without persistence.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("api.listen", "127.0.0.1:8080")
	v.SetDefault("api.allowed_origins", []string{"*"})
	v.SetDefault("hub.top_n", 20)
	v.SetDefault("hub.debounce_ms", 75)
	v.SetDefault("hub.token_ttl", "24h")
	v.SetDefault("hub.heartbeat", "15s")
	v.SetDefault("hub.send_buffer", 64)
	v.SetDefault("hub.demo_seed", true)
	v.SetDefault("sync.channel", "leaderboard_sync")
	v.SetDefault("log.level", "info")

	// Env overrides
	v.SetEnvPrefix("LEADERBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("db.dsn", "LEADERBOARD_DB_DSN")
	_ = v.BindEnv("hub.instance_id", "LEADERBOARD_HUB_INSTANCE_ID")
	_ = v.BindEnv("sync.url", "LEADERBOARD_SYNC_URL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Hub.Debounce = time.Duration(c.Hub.DebounceMS) * time.Millisecond

	if c.Hub.TopN <= 0 {
		return nil, fmt.Errorf("hub.top_n must be positive, got %d", c.Hub.TopN)
	}
	if c.Hub.DebounceMS <= 0 {
		return nil, fmt.Errorf("hub.debounce_ms must be positive, got %d", c.Hub.DebounceMS)
	}
	// hub.token_ttl: 0 turns expiry off
	if c.Hub.TokenTTL <= 0 {
		c.Hub.TokenTTL = -1
	}
	if c.Hub.SendBuffer <= 0 {
		c.Hub.SendBuffer = 64
	}
	return &c, nil
}

// SyncUsesDB reports whether the sync channel should share the store's pool.
func (c *Config) SyncUsesDB() bool {
	return strings.EqualFold(strings.TrimSpace(c.Sync.URL), "db")
}
