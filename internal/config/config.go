package config

import (
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"StockDash/internal/model"
)

// EnvPrefix prefixes every environment override, e.g. STOCKDASH_CACHE_TTL.
const EnvPrefix = "STOCKDASH_"

// Config holds all application configuration.
type Config struct {
	App        AppConfig        `yaml:"app" envPrefix:"APP_"`
	Indicators IndicatorConfig  `yaml:"indicators" envPrefix:"INDICATORS_"`
	DataSource DataSourceConfig `yaml:"data_source" envPrefix:"DATA_SOURCE_"`
	Cache      CacheConfig      `yaml:"cache" envPrefix:"CACHE_"`
	Schedule   ScheduleConfig   `yaml:"schedule" envPrefix:"SCHEDULE_"`
	Metrics    MetricsConfig    `yaml:"metrics" envPrefix:"METRICS_"`
	Telegram   TelegramConfig   `yaml:"telegram" envPrefix:"TELEGRAM_"`
	Proxy      string           `yaml:"proxy" env:"PROXY"`
}

type AppConfig struct {
	LogLevel      string `yaml:"log_level" env:"LOG_LEVEL"`
	Timezone      string `yaml:"timezone" env:"TIMEZONE"`
	DefaultTicker string `yaml:"default_ticker" env:"DEFAULT_TICKER"`
	DefaultStart  string `yaml:"default_start" env:"DEFAULT_START"`
}

// IndicatorConfig selects and parameterizes the indicators used by the
// scheduled refresh and as CLI defaults.
type IndicatorConfig struct {
	SMA       bool `yaml:"sma" env:"SMA"`
	EMA       bool `yaml:"ema" env:"EMA"`
	RSI       bool `yaml:"rsi" env:"RSI"`
	SMAWindow int  `yaml:"sma_window" env:"SMA_WINDOW"`
	EMASpan   int  `yaml:"ema_span" env:"EMA_SPAN"`
	RSIPeriod int  `yaml:"rsi_period" env:"RSI_PERIOD"`
}

type DataSourceConfig struct {
	Provider  string        `yaml:"provider" env:"PROVIDER"`
	BaseURL   string        `yaml:"base_url" env:"BASE_URL"`
	APIKey    string        `yaml:"api_key" env:"API_KEY"`
	RateLimit float64       `yaml:"rate_limit" env:"RATE_LIMIT"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type CacheConfig struct {
	Backend       string        `yaml:"backend" env:"BACKEND"`
	TTL           time.Duration `yaml:"ttl" env:"TTL"`
	EmptyTTL      time.Duration `yaml:"empty_ttl" env:"EMPTY_TTL"`
	SQLitePath    string        `yaml:"sqlite_path" env:"SQLITE_PATH"`
	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB"`
}

type ScheduleConfig struct {
	RefreshCron string `yaml:"refresh_cron" env:"REFRESH_CRON"`
	SweepCron   string `yaml:"sweep_cron" env:"SWEEP_CRON"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// TelegramConfig enables report delivery in watch mode when BotToken is set.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token" env:"BOT_TOKEN"`
	ChatID   string `yaml:"chat_id" env:"CHAT_ID"`
	Polling  bool   `yaml:"polling" env:"POLLING"`
}

// Provider and backend names.
const (
	ProviderYahoo = "yahoo"
	ProviderREST  = "rest"
	ProviderMock  = "mock"

	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Load reads an optional .env file, then the YAML file at path (missing
// files are fine), then applies STOCKDASH_* environment overrides and
// defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "read config")
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config")
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	if cfg.Proxy == "" {
		cfg.Proxy = os.Getenv("HTTPS_PROXY")
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.Timezone == "" {
		c.App.Timezone = model.DefaultTimezone
	}
	if c.App.DefaultTicker == "" {
		c.App.DefaultTicker = "AAPL"
	}
	if c.App.DefaultStart == "" {
		c.App.DefaultStart = "2020-01-01"
	}
	if c.Indicators.SMAWindow == 0 {
		c.Indicators.SMAWindow = model.DefaultSMAWindow
	}
	if c.Indicators.EMASpan == 0 {
		c.Indicators.EMASpan = model.DefaultEMASpan
	}
	if c.Indicators.RSIPeriod == 0 {
		c.Indicators.RSIPeriod = model.DefaultRSIPeriod
	}
	if c.DataSource.Provider == "" {
		c.DataSource.Provider = ProviderYahoo
	}
	if c.DataSource.RateLimit == 0 {
		c.DataSource.RateLimit = 2
	}
	if c.DataSource.Timeout == 0 {
		c.DataSource.Timeout = 30 * time.Second
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendMemory
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = time.Hour
	}
	if c.Cache.EmptyTTL == 0 {
		c.Cache.EmptyTTL = 5 * time.Minute
	}
	if c.Cache.SQLitePath == "" {
		c.Cache.SQLitePath = "data/stockdash.db"
	}
	if c.Schedule.RefreshCron == "" {
		c.Schedule.RefreshCron = "0 30 16 * * 1-5"
	}
	if c.Schedule.SweepCron == "" {
		c.Schedule.SweepCron = "0 */10 * * * *"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.DefaultStart(); err != nil {
		return errors.Wrap(err, "app.default_start")
	}
	if c.Indicators.SMAWindow <= 0 || c.Indicators.EMASpan <= 0 || c.Indicators.RSIPeriod <= 0 {
		return errors.New("indicators: sma_window, ema_span and rsi_period must be positive")
	}

	switch strings.ToLower(c.DataSource.Provider) {
	case ProviderYahoo, ProviderMock:
	case ProviderREST:
		if c.DataSource.BaseURL == "" {
			return errors.New("data_source.base_url is required for the rest provider")
		}
	default:
		return errors.Errorf("data_source.provider %q is not one of yahoo, rest, mock", c.DataSource.Provider)
	}
	if c.DataSource.RateLimit < 0 {
		return errors.New("data_source.rate_limit must not be negative")
	}

	switch strings.ToLower(c.Cache.Backend) {
	case BackendMemory:
	case BackendSQLite:
		if c.Cache.SQLitePath == "" {
			return errors.New("cache.sqlite_path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New("cache.redis_addr is required for the redis backend")
		}
	default:
		return errors.Errorf("cache.backend %q is not one of memory, sqlite, redis", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be positive")
	}
	if c.Cache.EmptyTTL <= 0 {
		return errors.New("cache.empty_ttl must be positive")
	}

	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return errors.New("telegram.chat_id is required when telegram.bot_token is set")
	}
	return nil
}

// Location loads the configured reference timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "app.timezone %q", c.App.Timezone)
	}
	return loc, nil
}

// DefaultStart parses app.default_start.
func (c *Config) DefaultStart() (time.Time, error) {
	return model.ParseDate(c.App.DefaultStart, time.UTC)
}

// Requests returns the configured indicator list.
func (c *Config) Requests() []model.IndicatorRequest {
	var reqs []model.IndicatorRequest
	if c.Indicators.SMA {
		reqs = append(reqs, model.IndicatorRequest{Kind: model.SMA, Param: c.Indicators.SMAWindow})
	}
	if c.Indicators.EMA {
		reqs = append(reqs, model.IndicatorRequest{Kind: model.EMA, Param: c.Indicators.EMASpan})
	}
	if c.Indicators.RSI {
		reqs = append(reqs, model.IndicatorRequest{Kind: model.RSI, Param: c.Indicators.RSIPeriod})
	}
	return reqs
}
