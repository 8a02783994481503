// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// FeeTierEntry is one row of the external fee discount table.
type FeeTierEntry struct {
	Name             string `mapstructure:"name"`
	MinBalanceTokens string `mapstructure:"min_balance_tokens"`
	DiscountBps      uint32 `mapstructure:"discount_bps"`
}

func (e FeeTierEntry) MinBalance() (*big.Int, error) {
	return parseAmount(e.MinBalanceTokens, "fee_tiers.min_balance_tokens")
}

// CurveConfig holds the bonding curve parameters, amounts as decimal
// strings in 18-decimal base units.
type CurveConfig struct {
	BasePriceWei      string `mapstructure:"base_price_wei"`
	PriceIncrementWei string `mapstructure:"price_increment_wei"`
	StepSizeTokens    string `mapstructure:"step_size_tokens"`
	SaleCeilingTokens string `mapstructure:"sale_ceiling_tokens"`
}

type Config struct {
	RPCURL           string   `mapstructure:"rpc_url"`
	WebSocketURL     string   `mapstructure:"websocket_url"`
	LaunchpadAddress string   `mapstructure:"launchpad_address"`
	SwapRouter       string   `mapstructure:"swap_router_address"`
	StakingToken     string   `mapstructure:"staking_token_address"`
	WNativeAddress   string   `mapstructure:"wnative_address"`
	FactoryAddresses []string `mapstructure:"factory_addresses"`
	QuoteTokens      []string `mapstructure:"quote_tokens"`

	PollIntervalSec   int    `mapstructure:"poll_interval"`
	CacheTTLSec       int    `mapstructure:"cache_ttl"`
	RPCTimeoutSec     int    `mapstructure:"rpc_timeout"`
	ConfirmTimeoutSec int    `mapstructure:"confirm_timeout"`
	StartBlock        uint64 `mapstructure:"start_block"`
	EventBufferSize   int    `mapstructure:"event_buffer_size"`

	PlatformFeeBps     uint32 `mapstructure:"platform_fee_bps"`
	MinBuyAmountWei    string `mapstructure:"min_buy_amount_wei"`
	MaxPriceImpactBps  int64  `mapstructure:"max_price_impact_bps"`
	MaxPoolFractionBps int64  `mapstructure:"max_pool_fraction_bps"`
	GasLimit           uint64 `mapstructure:"gas_limit"`

	ThreatWindowSec    int    `mapstructure:"threat_window"`
	ThreatVolumeWei    string `mapstructure:"threat_volume_threshold_wei"`
	ThreatMaxSpreadBps int64  `mapstructure:"threat_max_spread_bps"`

	Curve    CurveConfig    `mapstructure:"curve"`
	FeeTiers []FeeTierEntry `mapstructure:"fee_tiers"`

	DebugLogging bool   `mapstructure:"debug_logging"`
	PostgresURL  string `mapstructure:"postgres_url"`
}

const (
	DefaultPollInterval   = 15
	DefaultCacheTTL       = 30
	DefaultRPCTimeout     = 10
	DefaultConfirmTimeout = 60
	DefaultPlatformFee    = 50
	DefaultMaxImpactBps   = 1500
	DefaultPoolFraction   = 3000
	DefaultGasLimit       = 500_000
	DefaultEventBuffer    = 256
	DefaultThreatWindow   = 10
	DefaultThreatSpread   = 1000
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"poll_interval":         DefaultPollInterval,
		"cache_ttl":             DefaultCacheTTL,
		"rpc_timeout":           DefaultRPCTimeout,
		"confirm_timeout":       DefaultConfirmTimeout,
		"platform_fee_bps":      DefaultPlatformFee,
		"max_price_impact_bps":  DefaultMaxImpactBps,
		"max_pool_fraction_bps": DefaultPoolFraction,
		"gas_limit":             DefaultGasLimit,
		"event_buffer_size":     DefaultEventBuffer,
		"threat_window":         DefaultThreatWindow,
		"threat_max_spread_bps": DefaultThreatSpread,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.RPCURL == "" {
		return errors.New("missing rpc_url in configuration")
	}
	if err := validateURLWithCache(cfg.RPCURL, "http"); err != nil {
		return errors.New("invalid RPC URL protocol")
	}
	if cfg.WebSocketURL != "" {
		if err := validateURLWithCache(cfg.WebSocketURL, "ws"); err != nil {
			return errors.New("invalid WebSocket URL protocol")
		}
	}
	if !isHexAddress(cfg.LaunchpadAddress) {
		return errors.New("launchpad_address must be a 0x-prefixed 20-byte hex address")
	}
	if cfg.SwapRouter != "" && !isHexAddress(cfg.SwapRouter) {
		return errors.New("invalid swap_router_address")
	}
	if cfg.StakingToken != "" && !isHexAddress(cfg.StakingToken) {
		return errors.New("invalid staking_token_address")
	}
	if cfg.WNativeAddress != "" && !isHexAddress(cfg.WNativeAddress) {
		return errors.New("invalid wnative_address")
	}
	for _, addr := range append(append([]string{}, cfg.FactoryAddresses...), cfg.QuoteTokens...) {
		if !isHexAddress(addr) {
			return fmt.Errorf("invalid address %q in market configuration", addr)
		}
	}
	if err := validateNumericParams(cfg); err != nil {
		return err
	}
	if _, err := cfg.CurveBasePrice(); err != nil {
		return err
	}
	if _, err := cfg.CurvePriceIncrement(); err != nil {
		return err
	}
	if _, err := cfg.CurveStepSize(); err != nil {
		return err
	}
	if _, err := cfg.CurveSaleCeiling(); err != nil {
		return err
	}
	for _, tier := range cfg.FeeTiers {
		if _, err := parseAmount(tier.MinBalanceTokens, "fee tier "+tier.Name); err != nil {
			return err
		}
	}
	return nil
}

func validateNumericParams(cfg *Config) error {
	if cfg.PollIntervalSec <= 0 {
		return errors.New("invalid poll_interval")
	}
	if cfg.CacheTTLSec <= 0 {
		return errors.New("invalid cache_ttl")
	}
	if cfg.RPCTimeoutSec <= 0 {
		return errors.New("invalid rpc_timeout")
	}
	if cfg.ConfirmTimeoutSec <= 0 {
		return errors.New("invalid confirm_timeout")
	}
	if cfg.PlatformFeeBps >= 10_000 {
		return errors.New("platform_fee_bps must be below 10000")
	}
	if cfg.MaxPriceImpactBps <= 0 {
		return errors.New("invalid max_price_impact_bps")
	}
	return nil
}

// Duration accessors.

func (c *Config) PollInterval() time.Duration { return time.Duration(c.PollIntervalSec) * time.Second }
func (c *Config) CacheTTL() time.Duration     { return time.Duration(c.CacheTTLSec) * time.Second }
func (c *Config) RPCTimeout() time.Duration   { return time.Duration(c.RPCTimeoutSec) * time.Second }
func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutSec) * time.Second
}
func (c *Config) ThreatWindow() time.Duration { return time.Duration(c.ThreatWindowSec) * time.Second }

// Big-integer accessors for the curve and trade limits.

func (c *Config) CurveBasePrice() (*big.Int, error) {
	return parseAmount(c.Curve.BasePriceWei, "curve.base_price_wei")
}

func (c *Config) CurvePriceIncrement() (*big.Int, error) {
	return parseAmount(c.Curve.PriceIncrementWei, "curve.price_increment_wei")
}

func (c *Config) CurveStepSize() (*big.Int, error) {
	return parseAmount(c.Curve.StepSizeTokens, "curve.step_size_tokens")
}

func (c *Config) CurveSaleCeiling() (*big.Int, error) {
	return parseAmount(c.Curve.SaleCeilingTokens, "curve.sale_ceiling_tokens")
}

func (c *Config) MinBuyAmount() (*big.Int, error) {
	if c.MinBuyAmountWei == "" {
		return big.NewInt(0), nil
	}
	return parseAmount(c.MinBuyAmountWei, "min_buy_amount_wei")
}

func (c *Config) ThreatVolumeThreshold() (*big.Int, error) {
	if c.ThreatVolumeWei == "" {
		return big.NewInt(0), nil
	}
	return parseAmount(c.ThreatVolumeWei, "threat_volume_threshold_wei")
}

func parseAmount(raw, field string) (*big.Int, error) {
	if raw == "" {
		return nil, fmt.Errorf("missing %s in configuration", field)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s must be a non-negative decimal integer", field)
	}
	return v, nil
}

func isHexAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	key := protocol + "|" + rawURL
	if _, ok := urlCache.Load(key); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(key, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("LAUNCHCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if envRPC := v.GetString("RPC_URL"); envRPC != "" {
		cfg.RPCURL = envRPC
	}
	if envWS := v.GetString("WEBSOCKET_URL"); envWS != "" {
		cfg.WebSocketURL = envWS
	}
	if envPG := v.GetString("POSTGRES_URL"); envPG != "" {
		cfg.PostgresURL = envPG
	}
	if envLaunchpad := v.GetString("LAUNCHPAD_ADDRESS"); envLaunchpad != "" {
		cfg.LaunchpadAddress = envLaunchpad
	}
	return nil
}
