package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const validConfig = `
rpc_url: "https://rpc.example.org"
websocket_url: "wss://rpc.example.org/ws"
launchpad_address: "0x00000000000000000000000000000000000000aa"
curve:
  base_price_wei: "100000000000000"
  price_increment_wei: "100000000000000"
  step_size_tokens: "10000000000000000000000"
  sale_ceiling_tokens: "800000000000000000000000"
fee_tiers:
  - name: bronze
    min_balance_tokens: "1000000000000000000000"
    discount_bps: 5
`

func TestLoadConfig_DefaultsApplied(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.EqualValues(t, DefaultPollInterval, cfg.PollIntervalSec)
	assert.EqualValues(t, DefaultCacheTTL, cfg.CacheTTLSec)
	assert.EqualValues(t, DefaultPlatformFee, cfg.PlatformFeeBps)
	assert.EqualValues(t, DefaultMaxImpactBps, cfg.MaxPriceImpactBps)
	assert.EqualValues(t, DefaultGasLimit, cfg.GasLimit)

	base, err := cfg.CurveBasePrice()
	require.NoError(t, err)
	assert.Equal(t, "100000000000000", base.String())

	min, err := cfg.MinBuyAmount()
	require.NoError(t, err)
	assert.EqualValues(t, 0, min.Int64())
}

func TestLoadConfig_RejectsMissingRPC(t *testing.T) {
	body := `
launchpad_address: "0x00000000000000000000000000000000000000aa"
curve:
  base_price_wei: "1"
  price_increment_wei: "1"
  step_size_tokens: "1"
  sale_ceiling_tokens: "1"
`
	_, err := LoadConfig(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc_url")
}

func TestLoadConfig_RejectsBadLaunchpadAddress(t *testing.T) {
	body := `
rpc_url: "https://rpc.example.org"
launchpad_address: "not-an-address"
curve:
  base_price_wei: "1"
  price_increment_wei: "1"
  step_size_tokens: "1"
  sale_ceiling_tokens: "1"
`
	_, err := LoadConfig(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "launchpad_address")
}

func TestLoadConfig_RejectsBadCurveAmount(t *testing.T) {
	body := `
rpc_url: "https://rpc.example.org"
launchpad_address: "0x00000000000000000000000000000000000000aa"
curve:
  base_price_wei: "one hundred"
  price_increment_wei: "1"
  step_size_tokens: "1"
  sale_ceiling_tokens: "1"
`
	_, err := LoadConfig(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_price_wei")
}

func TestLoadConfig_RejectsNonWSWebSocketURL(t *testing.T) {
	body := validConfig + "\n"
	cfgPath := writeConfig(t, body)
	cfg, err := LoadConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "wss://rpc.example.org/ws", cfg.WebSocketURL)

	bad := `
rpc_url: "https://rpc.example.org"
websocket_url: "https://rpc.example.org"
launchpad_address: "0x00000000000000000000000000000000000000aa"
curve:
  base_price_wei: "1"
  price_increment_wei: "1"
  step_size_tokens: "1"
  sale_ceiling_tokens: "1"
`
	_, err = LoadConfig(writeConfig(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WebSocket")
}
