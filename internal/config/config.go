package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Portfolio  PortfolioConfig  `yaml:"portfolio"`
	MarketData MarketDataConfig `yaml:"market_data"`
	Sync       SyncConfig       `yaml:"sync"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Web        WebConfig        `yaml:"web"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type PortfolioConfig struct {
	BaseCurrency string   `yaml:"base_currency"`
	Currencies   []string `yaml:"currencies"`
}

type MarketDataConfig struct {
	BenchmarkSymbol string `yaml:"benchmark_symbol"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

type SyncConfig struct {
	Interval string `yaml:"interval"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type WebConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	SetDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func SetDefaults(cfg *Config) {
	if cfg.Portfolio.BaseCurrency == "" {
		cfg.Portfolio.BaseCurrency = "USD"
	}
	if len(cfg.Portfolio.Currencies) == 0 {
		cfg.Portfolio.Currencies = []string{"USD", "EUR", "HUF"}
	}
	if cfg.MarketData.BenchmarkSymbol == "" {
		cfg.MarketData.BenchmarkSymbol = "^GSPC"
	}
	if cfg.MarketData.TimeoutSeconds == 0 {
		cfg.MarketData.TimeoutSeconds = 30
	}
	if cfg.Sync.Interval == "" {
		cfg.Sync.Interval = "1h"
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func (c *Config) Validate() error {
	var baseKnown bool
	for _, cur := range c.Portfolio.Currencies {
		if cur == c.Portfolio.BaseCurrency {
			baseKnown = true
		}
	}
	if !baseKnown {
		return fmt.Errorf("portfolio.base_currency %q must be listed in portfolio.currencies", c.Portfolio.BaseCurrency)
	}
	if _, err := time.ParseDuration(c.Sync.Interval); err != nil {
		return fmt.Errorf("invalid sync.interval %q: %w", c.Sync.Interval, err)
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

func (c *Config) SyncInterval() time.Duration {
	d, _ := time.ParseDuration(c.Sync.Interval)
	return d
}

func (c *Config) MarketDataTimeout() time.Duration {
	return time.Duration(c.MarketData.TimeoutSeconds) * time.Second
}
