// Package config provides configuration management for the decision engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"tradepilot/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Engine     EngineConfig       `mapstructure:"engine"`
	Execution  ExecutionConfig    `mapstructure:"execution"`
	Risk       RiskConfig         `mapstructure:"risk"`
	Strategies []StrategySettings `mapstructure:"strategies"`
	Log        LogSettings        `mapstructure:"log"`
}

// EngineConfig holds evaluation-cycle configuration.
type EngineConfig struct {
	Symbols          []string      `mapstructure:"symbols"`
	CycleInterval    time.Duration `mapstructure:"cycle_interval"`
	ModelTimeout     time.Duration `mapstructure:"model_timeout"`
	BuyThreshold     float64       `mapstructure:"buy_threshold"`
	SellThreshold    float64       `mapstructure:"sell_threshold"`
	Epsilon          float64       `mapstructure:"epsilon"`
	MinConfidence    float64       `mapstructure:"min_confidence"`     // ensemble band floor
	MaxConfidence    float64       `mapstructure:"max_confidence"`     // ensemble band ceiling
	ModelMinConf     float64       `mapstructure:"model_min_conf"`     // model band floor
	ModelMaxConf     float64       `mapstructure:"model_max_conf"`     // model band ceiling
	MaxCandleHistory int           `mapstructure:"max_candle_history"` // retained candles per series
	AutoTrade        bool          `mapstructure:"auto_trade"`
	OrderQuantity    float64       `mapstructure:"order_quantity"` // quantity for auto-trade orders
}

// ExecutionConfig holds simulated-execution parameters.
type ExecutionConfig struct {
	FeeBps         float64 `mapstructure:"fee_bps"`
	SlippageBps    float64 `mapstructure:"slippage_bps"`
	StartingEquity float64 `mapstructure:"starting_equity"`
}

// RiskConfig holds risk management configuration.
type RiskConfig struct {
	MaxPositionSize float64 `mapstructure:"max_position_size"` // max open notional per symbol
	MaxDailyLoss    float64 `mapstructure:"max_daily_loss"`    // realized loss cap per UTC day
}

// StrategySettings holds per-strategy configuration.
type StrategySettings struct {
	Name    string             `mapstructure:"name"`
	Enabled bool               `mapstructure:"enabled"`
	Weight  float64            `mapstructure:"weight"`
	Params  map[string]float64 `mapstructure:"params"`
}

// LogSettings holds logging configuration.
type LogSettings struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/tradepilot"
	}
	return filepath.Join(home, ".config", "tradepilot")
}

// Default returns a fully populated configuration with defaults applied.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Symbols:          []string{"BTCUSDT"},
			CycleInterval:    time.Minute,
			ModelTimeout:     2 * time.Second,
			BuyThreshold:     0.3,
			SellThreshold:    0.3,
			Epsilon:          1e-9,
			MinConfidence:    0.55,
			MaxConfidence:    0.90,
			ModelMinConf:     0.55,
			ModelMaxConf:     0.95,
			MaxCandleHistory: 500,
			AutoTrade:        false,
			OrderQuantity:    0.01,
		},
		Execution: ExecutionConfig{
			FeeBps:         10,
			SlippageBps:    5,
			StartingEquity: 10000,
		},
		Risk: RiskConfig{
			MaxPositionSize: 50000,
			MaxDailyLoss:    500,
		},
		Strategies: []StrategySettings{
			{Name: "momentum", Enabled: true, Weight: 1.0, Params: map[string]float64{"period": 14, "oversold": 30, "overbought": 70}},
			{Name: "trendcross", Enabled: true, Weight: 1.0, Params: map[string]float64{"fast": 9, "slow": 21}},
			{Name: "breakout", Enabled: true, Weight: 1.0, Params: map[string]float64{"period": 20}},
			{Name: "meanrev", Enabled: true, Weight: 1.0, Params: map[string]float64{"period": 20, "stddev": 2}},
		},
		Log: LogSettings{Level: "info", Console: true, File: true},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// First run: write a template the user can edit.
			if werr := writeTemplate(configDir); werr != nil {
				return nil, fmt.Errorf("writing config template: %w", werr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADEPILOT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TRADEPILOT_AUTO_TRADE"); v != "" {
		cfg.Engine.AutoTrade = v == "1" || v == "true"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Engine.BuyThreshold < 0 || c.Engine.BuyThreshold > 1 {
		return fmt.Errorf("buy_threshold must be between 0 and 1")
	}
	if c.Engine.SellThreshold < 0 || c.Engine.SellThreshold > 1 {
		return fmt.Errorf("sell_threshold must be between 0 and 1")
	}
	if c.Engine.MinConfidence > c.Engine.MaxConfidence {
		return fmt.Errorf("min_confidence must not exceed max_confidence")
	}
	if c.Engine.ModelMinConf > c.Engine.ModelMaxConf {
		return fmt.Errorf("model_min_conf must not exceed model_max_conf")
	}
	if c.Engine.ModelTimeout <= 0 {
		return fmt.Errorf("model_timeout must be positive")
	}
	if c.Execution.FeeBps < 0 || c.Execution.SlippageBps < 0 {
		return fmt.Errorf("fee_bps and slippage_bps must be non-negative")
	}
	if c.Execution.StartingEquity <= 0 {
		return fmt.Errorf("starting_equity must be positive")
	}
	if c.Risk.MaxPositionSize < 0 || c.Risk.MaxDailyLoss < 0 {
		return fmt.Errorf("risk limits must be non-negative")
	}
	for _, s := range c.Strategies {
		if s.Weight < 0 || s.Weight > 2 {
			return fmt.Errorf("strategy %q weight must be between 0 and 2", s.Name)
		}
	}
	return nil
}

// Settings is the read-only snapshot of everything the engine needs for one
// evaluation cycle. Configuration changes take effect on the next cycle,
// never mid-cycle.
type Settings struct {
	Strategies    []models.StrategyConfig
	BuyThreshold  float64
	SellThreshold float64
	Epsilon       float64
	MinConfidence float64
	MaxConfidence float64
	ModelMinConf  float64
	ModelMaxConf  float64
	ModelTimeout  time.Duration
	FeeBps        float64
	SlippageBps   float64
	MaxPosition   float64
	MaxDailyLoss  float64
}

// Repository supplies settings snapshots to the engine. Read-only from the
// engine's perspective.
type Repository interface {
	Snapshot() Settings
}

// StaticRepository is a Repository backed by a loaded Config. Update swaps
// the whole config atomically; readers always see a consistent snapshot.
type StaticRepository struct {
	cfg *Config
}

// NewRepository creates a Repository over the given config.
func NewRepository(cfg *Config) *StaticRepository {
	return &StaticRepository{cfg: cfg}
}

// Snapshot implements Repository.
func (r *StaticRepository) Snapshot() Settings {
	c := r.cfg
	strategies := make([]models.StrategyConfig, 0, len(c.Strategies))
	for _, s := range c.Strategies {
		params := make(map[string]float64, len(s.Params))
		for k, v := range s.Params {
			params[k] = v
		}
		strategies = append(strategies, models.StrategyConfig{
			Name:    s.Name,
			Enabled: s.Enabled,
			Weight:  s.Weight,
			Params:  params,
		})
	}
	return Settings{
		Strategies:    strategies,
		BuyThreshold:  c.Engine.BuyThreshold,
		SellThreshold: c.Engine.SellThreshold,
		Epsilon:       c.Engine.Epsilon,
		MinConfidence: c.Engine.MinConfidence,
		MaxConfidence: c.Engine.MaxConfidence,
		ModelMinConf:  c.Engine.ModelMinConf,
		ModelMaxConf:  c.Engine.ModelMaxConf,
		ModelTimeout:  c.Engine.ModelTimeout,
		FeeBps:        c.Execution.FeeBps,
		SlippageBps:   c.Execution.SlippageBps,
		MaxPosition:   c.Risk.MaxPositionSize,
		MaxDailyLoss:  c.Risk.MaxDailyLoss,
	}
}
