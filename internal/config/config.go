package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/escape23/crypto-dashboard/internal/models"
)

// Config is the full runtime configuration, mapped from environment
// variables. An optional .env file is loaded first; its absence is normal in
// production.
type Config struct {
	Addr   string `envconfig:"ADDR" default:":8080"`
	DBPath string `envconfig:"DB_PATH" default:"./dashboard.db"`

	MarketBaseURL string `envconfig:"MARKET_BASE_URL" default:"https://api.coingecko.com/api/v3"`

	// StreamURL enables the live price feed when set, e.g.
	// wss://ws.coincap.io/prices?assets=bitcoin,ethereum
	StreamURL string `envconfig:"STREAM_URL"`

	DefaultCurrency string `envconfig:"DEFAULT_CURRENCY" default:"usd"`
	DefaultWindow   string `envconfig:"DEFAULT_WINDOW" default:"1h"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE" default:"logs/dashboard.log"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}

	if !models.Currency(cfg.DefaultCurrency).Valid() {
		return nil, fmt.Errorf("unsupported DEFAULT_CURRENCY %q", cfg.DefaultCurrency)
	}
	if cfg.DefaultWindow == "" {
		return nil, fmt.Errorf("DEFAULT_WINDOW must not be empty")
	}

	return &cfg, nil
}
