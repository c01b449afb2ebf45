package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Binance  Binance  `mapstructure:"binance"`
	Trading  Trading  `mapstructure:"trading"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Binance holds the configuration for the Binance API.
type Binance struct {
	ApiKey         string  `mapstructure:"apiKey"`
	SecretKey      string  `mapstructure:"secretKey"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Server holds the configuration for the HTTP API server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Trading holds the configuration for the trading engine.
type Trading struct {
	TickInterval     int     `mapstructure:"tick_interval"`   // seconds between cycles
	CandleInterval   string  `mapstructure:"candle_interval"` // kline interval for signals
	CandleLimit      int     `mapstructure:"candle_limit"`    // klines fetched per signal
	BotTimeout       int     `mapstructure:"bot_timeout"`     // seconds per bot per cycle
	PaperTrading     bool    `mapstructure:"paper_trading"`   // simulate all fills
	PaperBalanceUSDT float64 `mapstructure:"paper_balance_usdt"`
	WinRateBasis     string  `mapstructure:"win_rate_basis"` // "total" or "closed"
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("binance.rate_limit", 20)      // requests per second
	viper.SetDefault("binance.rate_limit_burst", 5) // burst size
	viper.SetDefault("trading.tick_interval", 3600) // hourly, matching the candle interval
	viper.SetDefault("trading.candle_interval", "1h")
	viper.SetDefault("trading.candle_limit", 100)
	viper.SetDefault("trading.bot_timeout", 60)
	viper.SetDefault("trading.paper_balance_usdt", 10000)
	viper.SetDefault("trading.win_rate_basis", "total")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
