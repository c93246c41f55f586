package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/swaprun-hq/swaprunner/pkg/logger"
)

// Config holds the configuration for the swap engine
type Config struct {
	RPCURL     string
	ChainID    int64
	PrivateKey string

	// Contract addresses
	QuoteTokenAddress    common.Address
	WrappedNativeAddress common.Address
	RouterAddress        common.Address
	SpenderAddress       common.Address

	// Quote settings
	QuoteTokenDecimals int32
	FallbackRate       decimal.Decimal
	RateAssetID        string
	RateTimeout        time.Duration
	RateCacheTTL       time.Duration
	DefaultSlippageBps uint32

	// Transaction settings
	SwapGasLimit          uint64
	ApproveGasLimit       uint64
	PriorityFeeMultiplier float64
	FeeMultiplier         float64
	DeadlineWindow        time.Duration

	// Lifecycle tracking settings
	PollInterval   time.Duration
	PollTimeout    time.Duration
	TrackingBudget time.Duration
	Confirmations  uint64

	// Approval settings
	ApprovalTimeout time.Duration
	ApprovalWait    bool

	MetricsPort    string
	CircuitBreaker CircuitBreakerConfig
	LoggerConfig   LoggerConfig
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	chainID, err := GetEnvChainID()
	if err != nil {
		return nil, err
	}

	quoteToken, err := GetEnvAddress("QUOTE_TOKEN_ADDRESS", DefaultQuoteTokenAddress)
	if err != nil {
		return nil, err
	}

	wrappedNative, err := GetEnvAddress("WRAPPED_NATIVE_ADDRESS", DefaultWrappedNativeAddress)
	if err != nil {
		return nil, err
	}

	router, err := GetEnvAddress("ROUTER_ADDRESS", DefaultRouterAddress)
	if err != nil {
		return nil, err
	}

	spender, err := GetEnvAddress("SPENDER_ADDRESS", DefaultSpenderAddress)
	if err != nil {
		return nil, err
	}

	quoteDecimals, err := GetEnvQuoteTokenDecimals()
	if err != nil {
		return nil, err
	}

	fallbackRate, err := GetEnvFallbackRate()
	if err != nil {
		return nil, err
	}

	rateTimeout, err := GetEnvDuration("RATE_TIMEOUT", DefaultRateTimeout*time.Second)
	if err != nil {
		return nil, err
	}

	rateCacheTTL, err := GetEnvDuration("RATE_CACHE_TTL", DefaultRateCacheTTL*time.Second)
	if err != nil {
		return nil, err
	}

	slippageBps, err := GetEnvSlippageBps()
	if err != nil {
		return nil, err
	}

	swapGasLimit, err := GetEnvUint("SWAP_GAS_LIMIT", DefaultSwapGasLimit)
	if err != nil {
		return nil, err
	}

	approveGasLimit, err := GetEnvUint("APPROVE_GAS_LIMIT", DefaultApproveGasLimit)
	if err != nil {
		return nil, err
	}

	priorityFeeMultiplier, err := GetEnvFloat("PRIORITY_FEE_MULTIPLIER", DefaultPriorityFeeMultiplier)
	if err != nil {
		return nil, err
	}

	feeMultiplier, err := GetEnvFloat("FEE_MULTIPLIER", DefaultFeeMultiplier)
	if err != nil {
		return nil, err
	}

	deadlineWindow, err := GetEnvDuration("DEADLINE_WINDOW", DefaultDeadlineWindow*time.Minute)
	if err != nil {
		return nil, err
	}

	pollInterval, err := GetEnvDuration("POLL_INTERVAL", DefaultPollInterval*time.Second)
	if err != nil {
		return nil, err
	}

	pollTimeout, err := GetEnvDuration("POLL_TIMEOUT", DefaultPollTimeout*time.Second)
	if err != nil {
		return nil, err
	}

	trackingBudget, err := GetEnvDuration("TRACKING_BUDGET", DefaultTrackingBudget*time.Second)
	if err != nil {
		return nil, err
	}

	confirmations, err := GetEnvUint("CONFIRMATIONS", DefaultConfirmations)
	if err != nil {
		return nil, err
	}

	approvalTimeout, err := GetEnvDuration("APPROVAL_TIMEOUT", DefaultApprovalTimeout*time.Second)
	if err != nil {
		return nil, err
	}

	approvalWait, err := GetEnvBool("APPROVAL_WAIT", true)
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvBool("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvUint("CIRCUIT_BREAKER_THRESHOLD", DefaultCircuitBreakerThreshold)
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvDuration("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow*time.Second)
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvDuration("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset*time.Second)
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	rateAssetID := os.Getenv("RATE_ASSET_ID")
	if rateAssetID == "" {
		rateAssetID = DefaultRateAssetID
	}

	cfg := &Config{
		RPCURL:               GetEnvRPCURL(),
		ChainID:              chainID,
		PrivateKey:           strings.TrimPrefix(os.Getenv("PRIVATE_KEY"), "0x"),
		QuoteTokenAddress:    quoteToken,
		WrappedNativeAddress: wrappedNative,
		RouterAddress:        router,
		SpenderAddress:       spender,
		QuoteTokenDecimals:   quoteDecimals,
		FallbackRate:         fallbackRate,
		RateAssetID:          rateAssetID,
		RateTimeout:          rateTimeout,
		RateCacheTTL:         rateCacheTTL,
		DefaultSlippageBps:   slippageBps,

		SwapGasLimit:          swapGasLimit,
		ApproveGasLimit:       approveGasLimit,
		PriorityFeeMultiplier: priorityFeeMultiplier,
		FeeMultiplier:         feeMultiplier,
		DeadlineWindow:        deadlineWindow,

		PollInterval:   pollInterval,
		PollTimeout:    pollTimeout,
		TrackingBudget: trackingBudget,
		Confirmations:  confirmations,

		ApprovalTimeout: approvalTimeout,
		ApprovalWait:    approvalWait,

		MetricsPort: metricsPort,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      int(cbThreshold),
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY environment variable is required")
	}
	if cfg.RPCURL == "" {
		return fmt.Errorf("RPC_URL environment variable is required")
	}
	if cfg.QuoteTokenAddress == cfg.WrappedNativeAddress {
		return fmt.Errorf("QUOTE_TOKEN_ADDRESS and WRAPPED_NATIVE_ADDRESS must differ")
	}
	if cfg.PollInterval > cfg.TrackingBudget {
		return fmt.Errorf("POLL_INTERVAL must not exceed TRACKING_BUDGET")
	}
	return nil
}
