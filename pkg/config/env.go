package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/swaprun-hq/swaprunner/pkg/logger"
)

const (
	// DefaultRPCURL is the default RPC endpoint (Base mainnet)
	DefaultRPCURL = "https://mainnet.base.org"

	// DefaultChainID is the default chain to operate on (Base mainnet)
	DefaultChainID = 8453

	// Default contract addresses on Base mainnet
	DefaultQuoteTokenAddress    = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913" // USDC
	DefaultWrappedNativeAddress = "0x4200000000000000000000000000000000000006" // WETH
	DefaultRouterAddress        = "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD" // Universal Router
	DefaultSpenderAddress       = "0x000000000022D473030F116dDEE9F6B43aC78BA3" // Permit2

	// DefaultQuoteTokenDecimals is the decimal count of the quote token (USDC)
	DefaultQuoteTokenDecimals = 6

	// DefaultFallbackRate is the static quote-per-base rate used when the
	// live rate source is unavailable; quotes built from it are marked stale
	DefaultFallbackRate = "3000"

	// DefaultRateAssetID is the rate source identifier for the base asset
	DefaultRateAssetID = "ethereum"

	// DefaultRateTimeout bounds a single rate source call in seconds
	DefaultRateTimeout = 5

	// DefaultRateCacheTTL is how long a fetched rate stays cached, in seconds
	DefaultRateCacheTTL = 30

	// DefaultSlippageBps is the default slippage tolerance in basis points (1%)
	DefaultSlippageBps = 100

	// Default gas limits, taken from observed Universal Router usage
	DefaultSwapGasLimit    = 500000
	DefaultApproveGasLimit = 100000

	// Default fee-market multipliers applied on top of observed values
	DefaultPriorityFeeMultiplier = 1.5
	DefaultFeeMultiplier         = 2.0

	// DefaultDeadlineWindow bounds how long a built swap stays executable, in minutes
	DefaultDeadlineWindow = 10

	// Receipt polling defaults, in seconds
	DefaultPollInterval   = 3
	DefaultPollTimeout    = 10
	DefaultTrackingBudget = 120

	// DefaultConfirmations is the confirmation threshold for a terminal Confirmed state
	DefaultConfirmations = 1

	// DefaultApprovalTimeout bounds the synchronous approval wait, in seconds
	DefaultApprovalTimeout = 120

	// DefaultMetricsPort defines the default port for the API/metrics server
	DefaultMetricsPort = "8080"

	// Circuit breaker defaults
	DefaultCircuitBreakerEnabled   = true
	DefaultCircuitBreakerThreshold = 5
	DefaultCircuitBreakerWindow    = 60
	DefaultCircuitBreakerReset     = 120
)

// GetEnvRPCURL returns the RPC endpoint from environment variables
func GetEnvRPCURL() string {
	if v := os.Getenv("RPC_URL"); v != "" {
		return v
	}
	return DefaultRPCURL
}

// GetEnvChainID returns the chain ID from environment variables
func GetEnvChainID() (int64, error) {
	v := os.Getenv("CHAIN_ID")
	if v == "" {
		return DefaultChainID, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid CHAIN_ID value: %s, must be a positive integer", v)
	}
	return id, nil
}

// GetEnvAddress returns a contract address from environment variables,
// falling back to the provided default
func GetEnvAddress(key, fallback string) (common.Address, error) {
	v := os.Getenv(key)
	if v == "" {
		v = fallback
	}
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("invalid %s value: %s, must be a valid address", key, v)
	}
	return common.HexToAddress(v), nil
}

// GetEnvQuoteTokenDecimals returns the quote token decimal count from environment variables
func GetEnvQuoteTokenDecimals() (int32, error) {
	v := os.Getenv("QUOTE_TOKEN_DECIMALS")
	if v == "" {
		return DefaultQuoteTokenDecimals, nil
	}
	d, err := strconv.Atoi(v)
	if err != nil || d < 0 || d > 36 {
		return 0, fmt.Errorf("invalid QUOTE_TOKEN_DECIMALS value: %s", v)
	}
	return int32(d), nil
}

// GetEnvFallbackRate returns the static fallback exchange rate from
// environment variables. Zero disables the fallback entirely.
func GetEnvFallbackRate() (decimal.Decimal, error) {
	v := os.Getenv("FALLBACK_RATE")
	if v == "" {
		v = DefaultFallbackRate
	}
	rate, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid FALLBACK_RATE value: %s, must be a decimal number", v)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("FALLBACK_RATE must not be negative")
	}
	return rate, nil
}

// GetEnvSlippageBps returns the default slippage tolerance from environment variables
func GetEnvSlippageBps() (uint32, error) {
	v := os.Getenv("DEFAULT_SLIPPAGE_BPS")
	if v == "" {
		return DefaultSlippageBps, nil
	}
	bps, err := strconv.ParseUint(v, 10, 32)
	if err != nil || bps >= 10000 {
		return 0, fmt.Errorf("invalid DEFAULT_SLIPPAGE_BPS value: %s, must be in [0, 10000)", v)
	}
	return uint32(bps), nil
}

// GetEnvUint returns an unsigned integer from environment variables
func GetEnvUint(key string, fallback uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an unsigned integer", key, v)
	}
	return n, nil
}

// GetEnvFloat returns a positive float from environment variables
func GetEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s value: %s, must be a positive number", key, v)
	}
	return f, nil
}

// GetEnvDuration returns a duration from environment variables. Plain
// integers are interpreted as seconds; duration strings are accepted too.
func GetEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("%s must be greater than 0", key)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s value: %s, must be a positive duration", key, v)
	}
	return d, nil
}

// GetEnvBool returns a boolean from environment variables
func GetEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", key, v)
}

// GetEnvMetricsPort returns the API/metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	v := os.Getenv("METRICS_PORT")
	if v == "" {
		return DefaultMetricsPort, nil
	}
	if _, err := strconv.Atoi(v); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", v)
	}
	return v, nil
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	v := os.Getenv("LOG_LEVEL")
	if v == "" {
		return logger.InfoLevel, nil
	}
	switch v {
	case "debug":
		return logger.DebugLevel, nil
	case "info":
		return logger.InfoLevel, nil
	case "notice":
		return logger.NoticeLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	}
	return 0, fmt.Errorf("invalid LOG_LEVEL value: %s, must be debug, info, notice or error", v)
}

// GetEnvLogColoring returns whether log coloring is enabled from environment variables
func GetEnvLogColoring() (bool, error) {
	return GetEnvBool("LOG_COLORING", true)
}
