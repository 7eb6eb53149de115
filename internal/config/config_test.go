package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefanopk/ladderbot/internal/broker"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trade.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"trade": {"symbol": "BTCUSDT", "shares": 99, "risk_unit": 1.0}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, broker.Long, cfg.Direction())
	assert.Len(t, cfg.Ladder.Stages, 3)
	assert.Equal(t, time.Second, cfg.Session.TickIntervalDuration())
	assert.Equal(t, 30*time.Second, cfg.Session.EntryTimeoutDuration())
	assert.Equal(t, 2*time.Second, cfg.Session.StopConfirmDelayDuration())
	assert.Equal(t, 10, cfg.Session.ReconcileEvery)
	assert.Equal(t, "bybit", cfg.Broker.Exchange)
	assert.Equal(t, "linear", cfg.Broker.Category)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `{
		"trade": {"symbol": "ETHUSDT", "direction": "short", "account_value": 50000, "risk_pct": 0.01, "atr": 3.5, "atr_factor": 0.5},
		"ladder": {"stages": [
			{"r_multiple": 1.0, "fraction": 0.5},
			{"r_multiple": 2.0, "fraction": 0.5}
		]},
		"session": {"tick_interval": "500ms", "entry_timeout": "10s", "stop_confirm_delay": "1s", "reconcile_every": 5},
		"broker": {"exchange": "bybit", "category": "linear", "demo": true},
		"monitoring": {"enabled": true}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, broker.Short, cfg.Direction())
	assert.Equal(t, 500*time.Millisecond, cfg.Session.TickIntervalDuration())
	assert.Equal(t, 5, cfg.Session.ReconcileEvery)
	assert.True(t, cfg.Broker.Demo)
	require.NotNil(t, cfg.Monitoring)
	assert.Equal(t, ":9090", cfg.Monitoring.ListenAddr, "listen addr defaulted when monitoring enabled")
}

func TestLoadRejectsMissingSymbol(t *testing.T) {
	path := writeConfig(t, `{"trade": {"shares": 10, "risk_unit": 1.0}}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingSizing(t *testing.T) {
	path := writeConfig(t, `{"trade": {"symbol": "BTCUSDT", "risk_unit": 1.0}}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadLadder(t *testing.T) {
	path := writeConfig(t, `{
		"trade": {"symbol": "BTCUSDT", "shares": 99, "risk_unit": 1.0},
		"ladder": {"stages": [{"r_multiple": 1.5, "fraction": 0.5}]}
	}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `{
		"trade": {"symbol": "BTCUSDT", "shares": 99, "risk_unit": 1.0},
		"session": {"tick_interval": "soon"}
	}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownExchange(t *testing.T) {
	path := writeConfig(t, `{
		"trade": {"symbol": "BTCUSDT", "shares": 99, "risk_unit": 1.0},
		"broker": {"exchange": "kraken"}
	}`)
	_, err := Load(path)
	assert.Error(t, err)
}
