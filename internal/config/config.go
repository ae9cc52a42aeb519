package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when MONTEWALK_CONFIG is unset.
const DefaultPath = "config/montewalk.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for montewalk.
type Config struct {
	Storage     Storage           `yaml:"storage"`
	Server      Server            `yaml:"server"`
	Alpaca      Alpaca            `yaml:"alpaca"`
	Logging     Logging           `yaml:"logging"`
	Redis       Redis             `yaml:"redis"`
	Risk        RiskConfig        `yaml:"risk"`
	Backtest    BacktestConfig    `yaml:"backtest"`
	MonteCarlo  MonteCarloConfig  `yaml:"montecarlo"`
	WalkForward WalkForwardConfig `yaml:"walkforward"`
	Trading     TradingConfig     `yaml:"trading"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir" default:"data"`
	SQLitePath string `yaml:"sqlite_path" default:"data/montewalk.db"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host" default:"0.0.0.0"`
	Port     int    `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	GRPCPort int    `yaml:"grpc_port" default:"9090" validate:"gte=0,lte=65535"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	BaseURL         string `yaml:"base_url" default:"https://paper-api.alpaca.markets"`
	DataURL         string `yaml:"data_url" default:"https://data.alpaca.markets"`
	Feed            string `yaml:"feed" default:"iex" validate:"oneof=iex sip"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min" default:"200" validate:"gte=0"`
}

// Enabled reports whether credentials are configured.
func (a Alpaca) Enabled() bool { return a.APIKey != "" && a.APISecret != "" }

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
}

// Redis configures the bar cache. An empty Addr selects the in-memory cache.
type Redis struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db" validate:"gte=0"`
	TTLSeconds int    `yaml:"ttl_seconds" default:"900" validate:"gte=1"`
}

// RiskConfig holds risk metric defaults.
type RiskConfig struct {
	RiskFreeRate   float64 `yaml:"risk_free_rate" default:"0.04"`
	PeriodsPerYear float64 `yaml:"periods_per_year" default:"252" validate:"gt=0"`
	VaRConfidence  float64 `yaml:"var_confidence" default:"0.95" validate:"gt=0,lt=1"`
}

// BacktestConfig holds backtest defaults.
type BacktestConfig struct {
	InitialCapital float64 `yaml:"initial_capital" default:"100000" validate:"gt=0"`
	CostBps        float64 `yaml:"cost_bps" default:"10" validate:"gte=0"`
	SlippageBps    float64 `yaml:"slippage_bps" validate:"gte=0"`
	AllowShort     bool    `yaml:"allow_short"`
	Period         string  `yaml:"period" default:"2y"`
}

// MonteCarloConfig holds simulation defaults.
type MonteCarloConfig struct {
	Paths       int       `yaml:"paths" default:"10000" validate:"gte=1"`
	HorizonDays int       `yaml:"horizon_days" default:"252" validate:"gte=1"`
	Workers     int       `yaml:"workers" validate:"gte=0"`
	Percentiles []float64 `yaml:"percentiles" default:"[5,50,95]" validate:"dive,gte=0,lte=100"`
}

// WalkForwardConfig holds walk-forward defaults.
type WalkForwardConfig struct {
	TrainMonths int    `yaml:"train_months" default:"12" validate:"gte=1"`
	TestMonths  int    `yaml:"test_months" default:"3" validate:"gte=1"`
	Mode        string `yaml:"mode" default:"partition" validate:"oneof=partition rolling expanding"`
}

// TradingConfig defines paper-trading risk and execution parameters.
type TradingConfig struct {
	MaxPositionPct  float64 `yaml:"max_position_pct" default:"0.25" validate:"gt=0,lte=1"`
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct" default:"0.05" validate:"gt=0,lte=1"`
	PaperMode       bool    `yaml:"paper_mode" default:"true"`
	StartingCash    float64 `yaml:"starting_cash" default:"100000" validate:"gt=0"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

var validate = validator.New()

// Path returns the configuration file path, honouring MONTEWALK_CONFIG.
func Path() string {
	if v := os.Getenv("MONTEWALK_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, fills defaults, applies environment variable overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration with only defaults and env overrides.
func Default() *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}

	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
