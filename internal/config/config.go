package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Database   Database   `mapstructure:"database"`
	Logger     Logger     `mapstructure:"logger"`
	MarketData MarketData `mapstructure:"market_data"`
	Journal    Journal    `mapstructure:"journal"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MarketData holds the configuration for the market-data REST provider.
type MarketData struct {
	Enabled        bool    `mapstructure:"enabled"`
	BaseURL        string  `mapstructure:"base_url"`
	ApiKey         string  `mapstructure:"api_key"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// Timeout returns the per-request timeout.
func (m MarketData) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// Journal holds the bookkeeping settings.
type Journal struct {
	DefaultUser        string  `mapstructure:"default_user"`
	DefaultAccountName string  `mapstructure:"default_account_name"`
	TaxRate            float64 `mapstructure:"tax_rate"`
	CacheTTLSeconds    int     `mapstructure:"cache_ttl_seconds"`
}

// CacheTTL returns how long read-side aggregates stay cached.
func (j Journal) CacheTTL() time.Duration {
	return time.Duration(j.CacheTTLSeconds) * time.Second
}

// LoadConfig reads configuration from file or environment variables.
// A .env file in the working directory, when present, is loaded into the
// environment first so its values can override the file.
func LoadConfig(path string) (config Config, err error) {
	if err = godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	err = v.ReadInConfig()
	if err != nil {
		return
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.dsn", "journal.db")
	v.SetDefault("database.max_open_conns", 1) // sqlite serializes writers anyway
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("market_data.enabled", false)
	v.SetDefault("market_data.rate_limit", 5) // requests per second
	v.SetDefault("market_data.rate_limit_burst", 2)
	v.SetDefault("market_data.timeout_seconds", 8)

	v.SetDefault("journal.default_user", "default")
	v.SetDefault("journal.default_account_name", "Main")
	v.SetDefault("journal.tax_rate", 0.22)
	v.SetDefault("journal.cache_ttl_seconds", 60)
}
