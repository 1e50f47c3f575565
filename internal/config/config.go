package config

import (
	"strings"

	"github.com/spf13/viper"
)

type DataCenterConfig struct {
	BaseURL               string  `mapstructure:"base_url"`
	EnableCache           bool    `mapstructure:"enable_cache"`
	CacheTTLSeconds       float64 `mapstructure:"cache_ttl_seconds"`
	RequestTimeoutSeconds float64 `mapstructure:"request_timeout_seconds"`
	MaxRetries            int     `mapstructure:"max_retries"`
	RetryDelaySeconds     float64 `mapstructure:"retry_delay_seconds"`
}

type TradingConfig struct {
	DefaultLeverage            int     `mapstructure:"default_leverage"`
	DefaultPositionSizePct     float64 `mapstructure:"default_position_size_pct"`
	TakerFee                   float64 `mapstructure:"taker_fee"`
	MakerFee                   float64 `mapstructure:"maker_fee"`
	Slippage                   float64 `mapstructure:"slippage"`
	MaintenanceMarginRatio     float64 `mapstructure:"maintenance_margin_ratio"`
	FundingRateIntervalSeconds int     `mapstructure:"funding_rate_interval_seconds"`
}

type EngineConfig struct {
	BatchSize         int      `mapstructure:"batch_size"`
	PreloadEnabled    bool     `mapstructure:"preload_enabled"`
	MaxSpeed          float64  `mapstructure:"max_speed"`
	DefaultIndicators []string `mapstructure:"default_indicators"`
}

type RiskConfig struct {
	MaxDailyLossPct     float64 `mapstructure:"max_daily_loss_pct"`
	MaxDrawdownPct      float64 `mapstructure:"max_drawdown_pct"`
	MaxTotalPositionPct float64 `mapstructure:"max_total_position_pct"`
	WarningRatio        float64 `mapstructure:"warning_ratio"`
}

type Config struct {
	DataCenter DataCenterConfig `mapstructure:"data_center"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Risk       RiskConfig       `mapstructure:"risk"`

	Timezone string `mapstructure:"timezone"`
	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`

	DBDSN   string `mapstructure:"db_dsn"`
	NatsURL string `mapstructure:"nats_url"`
	Port    string `mapstructure:"port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_center.base_url", "https://api.binance.com")
	v.SetDefault("data_center.enable_cache", true)
	v.SetDefault("data_center.cache_ttl_seconds", 300.0)
	v.SetDefault("data_center.request_timeout_seconds", 10.0)
	v.SetDefault("data_center.max_retries", 3)
	v.SetDefault("data_center.retry_delay_seconds", 0.5)

	v.SetDefault("trading.default_leverage", 10)
	v.SetDefault("trading.default_position_size_pct", 0.1)
	v.SetDefault("trading.taker_fee", 0.0004)
	v.SetDefault("trading.maker_fee", 0.0002)
	v.SetDefault("trading.slippage", 0.0005)
	v.SetDefault("trading.maintenance_margin_ratio", 0.004)
	v.SetDefault("trading.funding_rate_interval_seconds", 28800)

	v.SetDefault("engine.batch_size", 500)
	v.SetDefault("engine.preload_enabled", true)
	v.SetDefault("engine.max_speed", 999.0)
	v.SetDefault("engine.default_indicators", []string{})

	v.SetDefault("risk.max_daily_loss_pct", 0.05)
	v.SetDefault("risk.max_drawdown_pct", 0.15)
	v.SetDefault("risk.max_total_position_pct", 0.8)
	v.SetDefault("risk.warning_ratio", 0.7)

	v.SetDefault("timezone", "UTC")
	v.SetDefault("log_level", "info")
	v.SetDefault("debug", false)

	v.SetDefault("db_dsn", "")
	v.SetDefault("nats_url", "nats://localhost:4222")
	v.SetDefault("port", "8080")
}

// Load reads configuration with the precedence: explicit overrides > env
// vars > config file > defaults. overrides uses dotted keys
// ("trading.taker_fee").
func Load(overrides map[string]any) (Config, error) {
	v := viper.New()
	v.AddConfigPath(".")
	v.SetConfigName("engine")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	err := v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// Env vars and defaults are enough to run.
		err = nil
	}
	if err != nil {
		return Config{}, err
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
