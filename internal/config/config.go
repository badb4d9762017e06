// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Protocol   ProtocolConfig   `mapstructure:"protocol"`
	FlashLoan  FlashLoanConfig  `mapstructure:"flash_loan"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Pricing    PricingConfig    `mapstructure:"pricing"`
	Leverage   LeverageConfig   `mapstructure:"leverage"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// EthereumConfig holds Ethereum node configuration.
type EthereumConfig struct {
	WebSocketURL   string        `mapstructure:"websocket_url"`
	HTTPURL        string        `mapstructure:"http_url"`
	ChainID        uint64        `mapstructure:"chain_id"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// ProtocolConfig describes the lending venue plans are built against.
type ProtocolConfig struct {
	Name        string `mapstructure:"name"`
	PoolAddress string `mapstructure:"pool_address"`

	// Managed market: which assets the position is denominated in and the
	// receipt tokens whose balances are the position.
	CollateralAsset  string `mapstructure:"collateral_asset"`
	DebtAsset        string `mapstructure:"debt_asset"`
	ATokenAddress    string `mapstructure:"atoken_address"`
	DebtTokenAddress string `mapstructure:"debt_token_address"`

	// Capability flags, resolved once at startup.
	SupportsLock          bool `mapstructure:"supports_lock"`
	ConsumesRepaymentCoin bool `mapstructure:"consumes_repayment_coin"`
	RelockAfter           bool `mapstructure:"relock_after"`

	LiquidationLTVPercent float64 `mapstructure:"liquidation_ltv_percent"`
}

// PoolAddressHex returns the pool address as common.Address.
func (c *ProtocolConfig) PoolAddressHex() common.Address {
	return common.HexToAddress(c.PoolAddress)
}

// ATokenAddressHex returns the aToken address as common.Address.
func (c *ProtocolConfig) ATokenAddressHex() common.Address {
	return common.HexToAddress(c.ATokenAddress)
}

// DebtTokenAddressHex returns the debt token address as common.Address.
func (c *ProtocolConfig) DebtTokenAddressHex() common.Address {
	return common.HexToAddress(c.DebtTokenAddress)
}

// LiquidationLTVDecimal returns the liquidation LTV threshold as decimal.
func (c *ProtocolConfig) LiquidationLTVDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.LiquidationLTVPercent)
}

// FlashLoanConfig describes the flash-loan pool.
type FlashLoanConfig struct {
	PoolAddress string `mapstructure:"pool_address"`
	FeeBps      int64  `mapstructure:"fee_bps"`
}

// PoolAddressHex returns the pool address as common.Address.
func (c *FlashLoanConfig) PoolAddressHex() common.Address {
	return common.HexToAddress(c.PoolAddress)
}

// AggregatorConfig holds swap-aggregator API configuration.
type AggregatorConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	SlippageBps       int64         `mapstructure:"slippage_bps"`
}

// PricingConfig holds price feed configuration.
type PricingConfig struct {
	WebSocketURL string        `mapstructure:"websocket_url"`
	HTTPURL      string        `mapstructure:"http_url"`
	Symbols      []string      `mapstructure:"symbols"`
	StaleTimeout time.Duration `mapstructure:"stale_timeout"`
}

// LeverageConfig holds sizing buffers for plan composition. Percent fields
// are human units (2.0 means 2%).
type LeverageConfig struct {
	RepaymentAsset         string  `mapstructure:"repayment_asset"`
	SafetyBufferPercent    float64 `mapstructure:"safety_buffer_percent"`
	InterestBufferPercent  float64 `mapstructure:"interest_buffer_percent"`
	SwapBufferPercent      float64 `mapstructure:"swap_buffer_percent"`
	BorrowFeeBufferPercent float64 `mapstructure:"borrow_fee_buffer_percent"`
	SwapSlippageBps        int64   `mapstructure:"swap_slippage_bps"`
	MaxMultiplier          float64 `mapstructure:"max_multiplier"`
}

// SafetyBufferDecimal returns the safety buffer as decimal.Decimal.
func (c *LeverageConfig) SafetyBufferDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.SafetyBufferPercent)
}

// InterestBufferDecimal returns the interest buffer as decimal.Decimal.
func (c *LeverageConfig) InterestBufferDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.InterestBufferPercent)
}

// SwapBufferDecimal returns the swap buffer as decimal.Decimal.
func (c *LeverageConfig) SwapBufferDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.SwapBufferPercent)
}

// BorrowFeeBufferDecimal returns the borrow fee buffer as decimal.Decimal.
func (c *LeverageConfig) BorrowFeeBufferDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.BorrowFeeBufferPercent)
}

// MaxMultiplierDecimal returns the multiplier cap as decimal.Decimal.
func (c *LeverageConfig) MaxMultiplierDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxMultiplier)
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
	HealthPort     int    `mapstructure:"health_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("LEV")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	// Config file not found is fine, env vars carry the rest.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "LEV_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "LEV_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "LEV_LOG_LEVEL", "LOG_LEVEL")

	// Ethereum
	v.BindEnv("ethereum.websocket_url", "LEV_ETH_WS_URL", "ETH_WS_URL")
	v.BindEnv("ethereum.http_url", "LEV_ETH_HTTP_URL", "ETH_HTTP_URL")
	v.BindEnv("ethereum.chain_id", "LEV_ETH_CHAIN_ID", "ETH_CHAIN_ID")

	// Protocol
	v.BindEnv("protocol.pool_address", "LEV_PROTOCOL_POOL")
	v.BindEnv("protocol.supports_lock", "LEV_PROTOCOL_SUPPORTS_LOCK")
	v.BindEnv("protocol.relock_after", "LEV_PROTOCOL_RELOCK_AFTER")

	// Flash loan
	v.BindEnv("flash_loan.pool_address", "LEV_FLASH_POOL")
	v.BindEnv("flash_loan.fee_bps", "LEV_FLASH_FEE_BPS")

	// Aggregator
	v.BindEnv("aggregator.base_url", "LEV_AGG_BASE_URL")
	v.BindEnv("aggregator.api_key", "LEV_AGG_API_KEY", "AGGREGATOR_API_KEY")

	// Pricing
	v.BindEnv("pricing.websocket_url", "LEV_PRICING_WS_URL")
	v.BindEnv("pricing.http_url", "LEV_PRICING_HTTP_URL")
	v.BindEnv("pricing.symbols", "LEV_PRICING_SYMBOLS")

	// Leverage
	v.BindEnv("leverage.repayment_asset", "LEV_REPAYMENT_ASSET")
	v.BindEnv("leverage.max_multiplier", "LEV_MAX_MULTIPLIER")

	// Telemetry
	v.BindEnv("telemetry.enabled", "LEV_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "LEV_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "LEV_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "levkit")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Ethereum defaults
	v.SetDefault("ethereum.chain_id", 1)
	v.SetDefault("ethereum.max_reconnects", 0) // infinite
	v.SetDefault("ethereum.initial_backoff", "1s")
	v.SetDefault("ethereum.max_backoff", "30s")

	// Protocol defaults: Aave V3 mainnet pool
	v.SetDefault("protocol.name", "aave-v3")
	v.SetDefault("protocol.pool_address", "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2")
	v.SetDefault("protocol.collateral_asset", "WETH")
	v.SetDefault("protocol.debt_asset", "USDC")
	// aEthWETH / variableDebtEthUSDC
	v.SetDefault("protocol.atoken_address", "0x4d5F47FA6A74757f35C14fD3a6Ef8E3C9BC514E8")
	v.SetDefault("protocol.debt_token_address", "0x72E95b8931767C79bA4EeE721354d6E99a61D004")
	v.SetDefault("protocol.supports_lock", false)
	v.SetDefault("protocol.consumes_repayment_coin", false)
	v.SetDefault("protocol.relock_after", true)
	v.SetDefault("protocol.liquidation_ltv_percent", 60)

	// Flash loan defaults: Aave V3 premium
	v.SetDefault("flash_loan.pool_address", "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2")
	v.SetDefault("flash_loan.fee_bps", 5)

	// Aggregator defaults
	v.SetDefault("aggregator.base_url", "https://api.1inch.dev/swap/v6.0/1")
	v.SetDefault("aggregator.timeout", "10s")
	v.SetDefault("aggregator.requests_per_second", 1)
	v.SetDefault("aggregator.burst", 3)
	v.SetDefault("aggregator.slippage_bps", 100)

	// Pricing defaults
	v.SetDefault("pricing.websocket_url", "wss://stream.binance.com:9443")
	v.SetDefault("pricing.http_url", "https://api.binance.com")
	v.SetDefault("pricing.symbols", []string{"ETHUSDC"})
	v.SetDefault("pricing.stale_timeout", "5s")

	// Leverage defaults
	v.SetDefault("leverage.repayment_asset", "USDC")
	v.SetDefault("leverage.safety_buffer_percent", 2.0)
	v.SetDefault("leverage.interest_buffer_percent", 0.5)
	v.SetDefault("leverage.swap_buffer_percent", 2.0)
	v.SetDefault("leverage.borrow_fee_buffer_percent", 0.5)
	v.SetDefault("leverage.swap_slippage_bps", 100)
	v.SetDefault("leverage.max_multiplier", 5.0)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "levkit")
	v.SetDefault("telemetry.prometheus_port", 9090)
	v.SetDefault("telemetry.health_port", 8081)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Ethereum.HTTPURL == "" {
		return fmt.Errorf("ethereum.http_url is required")
	}
	if !common.IsHexAddress(c.Protocol.PoolAddress) {
		return fmt.Errorf("invalid protocol.pool_address: %s", c.Protocol.PoolAddress)
	}
	if !common.IsHexAddress(c.Protocol.ATokenAddress) {
		return fmt.Errorf("invalid protocol.atoken_address: %s", c.Protocol.ATokenAddress)
	}
	if !common.IsHexAddress(c.Protocol.DebtTokenAddress) {
		return fmt.Errorf("invalid protocol.debt_token_address: %s", c.Protocol.DebtTokenAddress)
	}
	if c.Protocol.CollateralAsset == "" || c.Protocol.DebtAsset == "" {
		return fmt.Errorf("protocol.collateral_asset and protocol.debt_asset are required")
	}
	if !common.IsHexAddress(c.FlashLoan.PoolAddress) {
		return fmt.Errorf("invalid flash_loan.pool_address: %s", c.FlashLoan.PoolAddress)
	}
	if c.FlashLoan.FeeBps < 0 || c.FlashLoan.FeeBps > 10_000 {
		return fmt.Errorf("flash_loan.fee_bps out of range: %d", c.FlashLoan.FeeBps)
	}
	if c.Aggregator.BaseURL == "" {
		return fmt.Errorf("aggregator.base_url is required")
	}
	if c.Leverage.RepaymentAsset == "" {
		return fmt.Errorf("leverage.repayment_asset is required")
	}
	if c.Leverage.MaxMultiplier < 1 {
		return fmt.Errorf("leverage.max_multiplier must be >= 1, got %v", c.Leverage.MaxMultiplier)
	}
	if c.Leverage.SwapSlippageBps < 0 || c.Leverage.SwapSlippageBps > 10_000 {
		return fmt.Errorf("leverage.swap_slippage_bps out of range: %d", c.Leverage.SwapSlippageBps)
	}
	return nil
}
