package models

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Direction selects which side of the pair is being sold.
type Direction string

const (
	// SellBaseForQuote sells the chain's native asset for the quote token
	// (e.g. ETH -> USDC). The input is wrapped before the exchange call.
	SellBaseForQuote Direction = "SELL_BASE_FOR_QUOTE"
	// SellQuoteForBase sells the quote token for the native asset
	// (e.g. USDC -> ETH). The exchange output is unwrapped after the call.
	SellQuoteForBase Direction = "SELL_QUOTE_FOR_BASE"
)

// Valid reports whether the direction is one of the supported variants.
func (d Direction) Valid() bool {
	return d == SellBaseForQuote || d == SellQuoteForBase
}

func (d Direction) String() string {
	return string(d)
}

// MaxSlippageBps is the exclusive upper bound for slippage tolerance.
const MaxSlippageBps = 10000

// SwapRequest describes a single swap to execute. It is immutable once
// handed to the engine; the engine assigns ID when the caller leaves it empty.
type SwapRequest struct {
	ID          string          `json:"id,omitempty"`
	ChainID     int64           `json:"chain_id,omitempty"`
	Direction   Direction       `json:"direction"`
	Amount      decimal.Decimal `json:"amount"`
	SlippageBps uint32          `json:"slippage_bps"`
}

// Validate checks the request against the engine's input invariants.
// It performs no I/O.
func (r SwapRequest) Validate() error {
	if !r.Direction.Valid() {
		return fmt.Errorf("unsupported direction: %q", r.Direction)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("amount must be greater than 0, got %s", r.Amount)
	}
	if r.SlippageBps >= MaxSlippageBps {
		return fmt.Errorf("slippage must be in [0, %d) bps, got %d", MaxSlippageBps, r.SlippageBps)
	}
	return nil
}

// Quote is the estimated outcome of a swap at a point in time. Quotes are
// never cached across swap attempts; rates go stale quickly.
type Quote struct {
	InputAmount     decimal.Decimal `json:"input_amount"`
	EstimatedOutput decimal.Decimal `json:"estimated_output"`
	MinimumOutput   decimal.Decimal `json:"minimum_output"`
	RateUsed        decimal.Decimal `json:"rate_used"`
	// Stale is set when the live rate source failed and the static
	// fallback rate was used instead.
	Stale      bool      `json:"stale"`
	ComputedAt time.Time `json:"computed_at"`
}

// BaseUnits converts a human-unit amount into integer token units with the
// given number of decimals, always rounding down. Rounding up a minimum
// output would set a floor the market may not be able to satisfy.
func BaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Floor().BigInt()
}

// SwapStatus is the terminal status of a swap attempt.
type SwapStatus string

const (
	SwapSuccess  SwapStatus = "SUCCESS"
	SwapFailed   SwapStatus = "FAILED"
	SwapTimedOut SwapStatus = "TIMED_OUT"
)

// SwapResult is returned to the caller for every swap attempt, successful
// or not. Failed results always carry the originating error.
type SwapResult struct {
	RequestID    string        `json:"request_id"`
	Status       SwapStatus    `json:"status"`
	TxHash       *common.Hash  `json:"transaction_hash,omitempty"`
	ApprovalHash *common.Hash  `json:"approval_hash,omitempty"`
	Quote        *Quote        `json:"quote,omitempty"`
	GasUsed      uint64        `json:"gas_used,omitempty"`
	BlockNumber  uint64        `json:"block_number,omitempty"`
	Err          error         `json:"-"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Duration     time.Duration `json:"-"`
}

// QuoteSnapshot is a read-only view used by the quote command and API
// route: the estimate plus the account state relevant to executing it.
type QuoteSnapshot struct {
	Quote          Quote           `json:"quote"`
	BaseBalance    decimal.Decimal `json:"base_balance"`
	QuoteBalance   decimal.Decimal `json:"quote_balance"`
	HasBalance     bool            `json:"has_sufficient_balance"`
	SpenderAllowed bool            `json:"spender_approved"`
}
