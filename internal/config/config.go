// Package config loads marketboard settings from a YAML file, an optional
// .env file and MARKETBOARD_* environment variables.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rxtech-lab/marketboard/internal/synthetic"
	"github.com/rxtech-lab/marketboard/internal/types"
	"github.com/rxtech-lab/marketboard/pkg/errors"
	"github.com/rxtech-lab/marketboard/pkg/marketdata/provider"
	"github.com/rxtech-lab/marketboard/pkg/utils"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Mode      types.Mode            `yaml:"mode" json:"mode" validate:"oneof=live mock" jsonschema:"title=Mode,enum=live,enum=mock,description=live fetches from the provider and falls back on failure; mock serves synthetic data only"`
	Symbol    string                `yaml:"symbol" json:"symbol" validate:"required" jsonschema:"title=Symbol,description=Symbol shown by default such as BTC-USDT"`
	Provider  provider.ProviderType `yaml:"provider" json:"provider" validate:"oneof=proxy binance synthetic" jsonschema:"title=Provider,enum=proxy,enum=binance,enum=synthetic"`
	Providers provider.Config       `yaml:"providers" json:"providers"`
	Market    MarketConfig          `yaml:"market" json:"market"`
	Scheduler SchedulerConfig       `yaml:"scheduler" json:"scheduler"`
	Synthetic synthetic.Config      `yaml:"synthetic" json:"synthetic"`
	Server    ServerConfig          `yaml:"server" json:"server"`
	Redis     RedisConfig           `yaml:"redis" json:"redis"`
	Log       LogConfig             `yaml:"log" json:"log"`
}

// MarketConfig tunes the orchestrator.
type MarketConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout" validate:"gt=0"`
	DepthLimit   int           `yaml:"depth_limit" json:"depth_limit" validate:"gte=1,lte=1000" jsonschema:"description=Levels per side requested from the provider"`
	TradeLimit   int           `yaml:"trade_limit" json:"trade_limit" validate:"gte=1,lte=1000"`
	MaxLevels    int           `yaml:"max_levels" json:"max_levels" validate:"gte=0" jsonschema:"description=Levels per side kept after normalization; 0 keeps all"`
}

// SchedulerConfig tunes automatic refreshing.
type SchedulerConfig struct {
	AutoRefresh      bool          `yaml:"auto_refresh" json:"auto_refresh"`
	Interval         time.Duration `yaml:"interval" json:"interval"`
	Scope            string        `yaml:"scope" json:"scope" validate:"oneof=all ticker depth trades" jsonschema:"enum=all,enum=ticker,enum=depth,enum=trades"`
	LiveTick         bool          `yaml:"live_tick" json:"live_tick"`
	LiveTickInterval time.Duration `yaml:"live_tick_interval" json:"live_tick_interval"`
	SkipWhileLoading bool          `yaml:"skip_while_loading" json:"skip_while_loading"`
	MarketListCron   string        `yaml:"market_list_cron" json:"market_list_cron" jsonschema:"description=Cron spec refreshing the market list; empty disables it"`
}

// ServerConfig configures the HTTP and websocket API.
type ServerConfig struct {
	Address string `yaml:"address" json:"address" validate:"required,hostname_port"`
}

// RedisConfig configures the optional update bridge.
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Addr      string `yaml:"addr" json:"addr" validate:"required_if=Enabled true"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db" validate:"gte=0"`
	Prefix    string `yaml:"prefix" json:"prefix" validate:"required_if=Enabled true"`
	QueueSize int    `yaml:"queue_size" json:"queue_size" validate:"gte=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Mode:     types.ModeLive,
		Symbol:   "BTC-USDT",
		Provider: provider.ProviderProxy,
		Providers: provider.Config{
			Proxy: provider.ProxyConfig{
				BaseURL: "http://localhost:3001/api/market",
				Timeout: 10 * time.Second,
			},
		},
		Market: MarketConfig{
			FetchTimeout: 10 * time.Second,
			DepthLimit:   20,
			TradeLimit:   50,
			MaxLevels:    15,
		},
		Scheduler: SchedulerConfig{
			AutoRefresh:      true,
			Interval:         30 * time.Second,
			Scope:            "all",
			LiveTick:         false,
			LiveTickInterval: 2 * time.Second,
			SkipWhileLoading: false,
			MarketListCron:   "@every 5m",
		},
		Synthetic: synthetic.DefaultConfig(),
		Server: ServerConfig{
			Address: "127.0.0.1:8080",
		},
		Redis: RedisConfig{
			Enabled:   false,
			Addr:      "localhost:6379",
			Prefix:    "marketboard",
			QueueSize: 256,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty) on top of
// Default, loads .env if present and applies MARKETBOARD_* overrides.
// The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config file %s", path)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to parse config file %s", path)
		}
	}

	// .env is optional
	_ = godotenv.Load()

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration", err)
	}

	if c.Scheduler.Interval < time.Second {
		return errors.Newf(errors.ErrCodeInvalidInterval, "scheduler interval must be at least 1s, got %s", c.Scheduler.Interval)
	}

	if c.Scheduler.LiveTick && c.Scheduler.LiveTickInterval <= 0 {
		return errors.New(errors.ErrCodeInvalidInterval, "live tick interval must be positive")
	}

	if c.Provider == provider.ProviderProxy && c.Mode == types.ModeLive && c.Providers.Proxy.BaseURL == "" {
		return errors.New(errors.ErrCodeMissingParameter, "providers.proxy.base_url is required for the proxy provider")
	}

	return nil
}

// Schema returns the JSON schema of Config.
func Schema() (string, error) {
	return utils.GetSchemaFromConfig(&Config{}, "marketboard-config")
}

func applyEnvOverrides(cfg *Config) error {
	setString((*string)(&cfg.Mode), "MARKETBOARD_MODE")
	setString(&cfg.Symbol, "MARKETBOARD_SYMBOL")
	setString((*string)(&cfg.Provider), "MARKETBOARD_PROVIDER")
	setString(&cfg.Providers.Proxy.BaseURL, "MARKETBOARD_PROXY_URL")
	setString(&cfg.Providers.Binance.BaseURL, "MARKETBOARD_BINANCE_URL")
	setString(&cfg.Server.Address, "MARKETBOARD_LISTEN_ADDR")
	setString(&cfg.Redis.Addr, "MARKETBOARD_REDIS_ADDR")
	setString(&cfg.Redis.Password, "MARKETBOARD_REDIS_PASSWORD")
	setString(&cfg.Log.Level, "MARKETBOARD_LOG_LEVEL")

	if err := setDuration(&cfg.Scheduler.Interval, "MARKETBOARD_REFRESH_INTERVAL"); err != nil {
		return err
	}

	if err := setBool(&cfg.Scheduler.AutoRefresh, "MARKETBOARD_AUTO_REFRESH"); err != nil {
		return err
	}

	return setBool(&cfg.Redis.Enabled, "MARKETBOARD_REDIS_ENABLED")
}

func setString(target *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*target = v
	}
}

func setDuration(target *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid %s", key)
	}

	*target = d

	return nil
}

func setBool(target *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid %s", key)
	}

	*target = b

	return nil
}
