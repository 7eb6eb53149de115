// Package config loads and validates the JSON trade configuration. Files
// without a path separator are resolved under configs/ and the .json
// extension is optional, so `-config btc-long` works from the repo root.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stefanopk/ladderbot/internal/broker"
	"github.com/stefanopk/ladderbot/internal/ladder"
)

// Config is the complete configuration for one trade session.
type Config struct {
	Trade         TradeConfig         `json:"trade"`
	Ladder        LadderConfig        `json:"ladder"`
	Session       SessionConfig       `json:"session"`
	Broker        BrokerConfig        `json:"broker"`
	Monitoring    *MonitoringConfig   `json:"monitoring,omitempty"`
	Notifications *NotificationConfig `json:"notifications,omitempty"`
}

// TradeConfig describes the position to open. Either Shares is given
// directly, or AccountValue+RiskPct size the position from the risk unit.
// The risk unit itself is either fixed (RiskUnit) or ATR-derived.
type TradeConfig struct {
	Symbol       string  `json:"symbol"`
	Direction    string  `json:"direction"` // "long" or "short"
	Shares       int64   `json:"shares,omitempty"`
	AccountValue float64 `json:"account_value,omitempty"`
	RiskPct      float64 `json:"risk_pct,omitempty"`
	RiskUnit     float64 `json:"risk_unit,omitempty"`
	ATR          float64 `json:"atr,omitempty"`
	ATRFactor    float64 `json:"atr_factor,omitempty"`
}

// LadderConfig holds the exit stage plans.
type LadderConfig struct {
	Stages []ladder.StagePlan `json:"stages"`
}

// SessionConfig holds cadence settings as duration strings ("1s", "500ms").
type SessionConfig struct {
	TickInterval     string `json:"tick_interval"`
	EntryTimeout     string `json:"entry_timeout"`
	StopConfirmDelay string `json:"stop_confirm_delay"`
	ReconcileEvery   int    `json:"reconcile_every"`
	DisplayEvery     int    `json:"display_every"`

	tickInterval     time.Duration
	entryTimeout     time.Duration
	stopConfirmDelay time.Duration
}

// TickIntervalDuration returns the parsed tick interval. Valid after Load.
func (s *SessionConfig) TickIntervalDuration() time.Duration { return s.tickInterval }

// EntryTimeoutDuration returns the parsed entry timeout. Valid after Load.
func (s *SessionConfig) EntryTimeoutDuration() time.Duration { return s.entryTimeout }

// StopConfirmDelayDuration returns the parsed confirm delay. Valid after Load.
func (s *SessionConfig) StopConfirmDelayDuration() time.Duration { return s.stopConfirmDelay }

// BrokerConfig selects and configures the execution venue.
type BrokerConfig struct {
	Exchange string `json:"exchange"` // "bybit" or "sim"
	Category string `json:"category"` // "linear", "inverse", "spot"
	Demo     bool   `json:"demo"`
	Testnet  bool   `json:"testnet"`
}

// MonitoringConfig controls the metrics/health HTTP endpoint.
type MonitoringConfig struct {
	Enabled    bool   `json:"enabled"`
	ListenAddr string `json:"listen_addr"`
}

// NotificationConfig holds notification settings. Credentials usually come
// from the environment instead of the file.
type NotificationConfig struct {
	Enabled       bool   `json:"enabled"`
	TelegramToken string `json:"telegram_token,omitempty"`
	TelegramChat  string `json:"telegram_chat,omitempty"`
}

// Load reads, defaults, and validates a configuration file.
func Load(configFile string) (*Config, error) {
	if !strings.ContainsAny(configFile, "/\\") {
		configFile = filepath.Join("configs", configFile)
	}
	if !strings.HasSuffix(configFile, ".json") {
		configFile += ".json"
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.setDefaults(); err != nil {
		return nil, fmt.Errorf("failed to set config defaults: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) setDefaults() error {
	if c.Trade.Direction == "" {
		c.Trade.Direction = "long"
	}
	if c.Trade.ATRFactor == 0 {
		c.Trade.ATRFactor = 0.5
	}
	if len(c.Ladder.Stages) == 0 {
		c.Ladder.Stages = ladder.DefaultPlans
	}
	if c.Session.TickInterval == "" {
		c.Session.TickInterval = "1s"
	}
	if c.Session.EntryTimeout == "" {
		c.Session.EntryTimeout = "30s"
	}
	if c.Session.StopConfirmDelay == "" {
		c.Session.StopConfirmDelay = "2s"
	}
	if c.Session.ReconcileEvery == 0 {
		c.Session.ReconcileEvery = 10
	}
	if c.Session.DisplayEvery == 0 {
		c.Session.DisplayEvery = 10
	}
	if c.Broker.Exchange == "" {
		c.Broker.Exchange = "bybit"
	}
	if c.Broker.Category == "" {
		c.Broker.Category = "linear"
	}
	if c.Monitoring != nil && c.Monitoring.Enabled && c.Monitoring.ListenAddr == "" {
		c.Monitoring.ListenAddr = ":9090"
	}
	return nil
}

func (c *Config) validate() error {
	if c.Trade.Symbol == "" {
		return fmt.Errorf("trade.symbol is required")
	}
	if _, err := broker.ParseDirection(c.Trade.Direction); err != nil {
		return fmt.Errorf("trade.direction: %w", err)
	}

	if c.Trade.RiskUnit <= 0 && c.Trade.ATR <= 0 {
		return fmt.Errorf("either trade.risk_unit or trade.atr must be set")
	}
	if c.Trade.Shares <= 0 {
		if c.Trade.AccountValue <= 0 || c.Trade.RiskPct <= 0 {
			return fmt.Errorf("either trade.shares or trade.account_value with trade.risk_pct must be set")
		}
	}

	if err := ladder.ValidatePlans(c.Ladder.Stages); err != nil {
		return err
	}

	var err error
	if c.Session.tickInterval, err = time.ParseDuration(c.Session.TickInterval); err != nil {
		return fmt.Errorf("session.tick_interval: %w", err)
	}
	if c.Session.entryTimeout, err = time.ParseDuration(c.Session.EntryTimeout); err != nil {
		return fmt.Errorf("session.entry_timeout: %w", err)
	}
	if c.Session.stopConfirmDelay, err = time.ParseDuration(c.Session.StopConfirmDelay); err != nil {
		return fmt.Errorf("session.stop_confirm_delay: %w", err)
	}
	if c.Session.ReconcileEvery < 1 {
		return fmt.Errorf("session.reconcile_every must be at least 1")
	}

	switch c.Broker.Exchange {
	case "bybit", "sim":
	default:
		return fmt.Errorf("broker.exchange %q is not supported", c.Broker.Exchange)
	}

	return nil
}

// Direction returns the parsed trade direction. Valid after Load.
func (c *Config) Direction() broker.Direction {
	dir, _ := broker.ParseDirection(c.Trade.Direction)
	return dir
}
