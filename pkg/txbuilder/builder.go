// Package txbuilder assembles signed EIP-1559 transactions for the swap
// engine: Universal Router execute calls and ERC20 approvals.
package txbuilder

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/swaprun-hq/swaprunner/pkg/blockchain"
	"github.com/swaprun-hq/swaprunner/pkg/chainclient"
	"github.com/swaprun-hq/swaprunner/pkg/logger"
	"github.com/swaprun-hq/swaprunner/pkg/models"
	"github.com/swaprun-hq/swaprunner/pkg/swaperr"
)

// NativeDecimals is the decimal count of the native asset and its wrapped form.
const NativeDecimals = 18

// Config holds the static parameters the builder needs.
type Config struct {
	ChainID              *big.Int
	RouterAddress        common.Address
	WrappedNativeAddress common.Address
	QuoteTokenAddress    common.Address
	QuoteTokenDecimals   int32

	SwapGasLimit    uint64
	ApproveGasLimit uint64

	// Multipliers applied on top of the node's fee suggestions
	PriorityFeeMultiplier float64
	FeeMultiplier         float64

	// DeadlineWindow bounds how long a built swap stays executable
	DeadlineWindow time.Duration
}

// Builder turns validated requests and quotes into signed transactions.
// Nonce allocation happens at build time; callers that fail to submit a
// built transaction should release its nonce.
type Builder struct {
	ledger chainclient.Ledger
	signer blockchain.Signer
	nonces *blockchain.NonceManager
	cfg    Config
	logger logger.Logger
}

// NewBuilder creates a transaction builder.
func NewBuilder(ledger chainclient.Ledger, signer blockchain.Signer, nonces *blockchain.NonceManager, cfg Config, log logger.Logger) *Builder {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Builder{
		ledger: ledger,
		signer: signer,
		nonces: nonces,
		cfg:    cfg,
		logger: log,
	}
}

// Built pairs a signed transaction with the nonce it consumed.
type Built struct {
	Tx    *types.Transaction
	Nonce uint64
}

// ReleaseNonce returns a built transaction's nonce after a failed submission.
func (b *Builder) ReleaseNonce(built *Built) {
	b.nonces.Release(b.signer.Address(), built.Nonce)
}

// BuildSwap assembles and signs a Universal Router swap for the request.
// Selling the native asset wraps it in the same transaction and funds the
// router through the transaction value. Selling the quote token pulls the
// input via Permit2, routes the wrapped output back to the router, and
// unwraps it to the sender.
func (b *Builder) BuildSwap(ctx context.Context, req models.SwapRequest, q models.Quote) (*Built, error) {
	var (
		commands []byte
		inputs   [][]byte
		value    *big.Int
	)

	deadline := big.NewInt(time.Now().Add(b.cfg.DeadlineWindow).Unix())

	switch req.Direction {
	case models.SellBaseForQuote:
		amountIn := models.BaseUnits(req.Amount, NativeDecimals)
		minOut := models.BaseUnits(q.MinimumOutput, b.cfg.QuoteTokenDecimals)
		path := []common.Address{b.cfg.WrappedNativeAddress, b.cfg.QuoteTokenAddress}

		wrapInput, err := EncodeWrap(RecipientRouter, amountIn)
		if err != nil {
			return nil, swaperr.Wrap(swaperr.KindValidation, err, "failed to encode wrap input")
		}
		// Router pays the swap from the wrapped balance it just received
		swapInput, err := EncodeV2SwapExactIn(RecipientSender, amountIn, minOut, path, false)
		if err != nil {
			return nil, swaperr.Wrap(swaperr.KindValidation, err, "failed to encode swap input")
		}

		commands = []byte{CommandWrapNative, CommandV2SwapExactIn}
		inputs = [][]byte{wrapInput, swapInput}
		value = amountIn

	case models.SellQuoteForBase:
		amountIn := models.BaseUnits(req.Amount, b.cfg.QuoteTokenDecimals)
		minOut := models.BaseUnits(q.MinimumOutput, NativeDecimals)
		path := []common.Address{b.cfg.QuoteTokenAddress, b.cfg.WrappedNativeAddress}

		// Wrapped output stays in the router so the unwrap step can
		// deliver native funds to the sender
		swapInput, err := EncodeV2SwapExactIn(RecipientRouter, amountIn, minOut, path, true)
		if err != nil {
			return nil, swaperr.Wrap(swaperr.KindValidation, err, "failed to encode swap input")
		}
		unwrapInput, err := EncodeUnwrap(RecipientSender, minOut)
		if err != nil {
			return nil, swaperr.Wrap(swaperr.KindValidation, err, "failed to encode unwrap input")
		}

		commands = []byte{CommandV2SwapExactIn, CommandUnwrapNative}
		inputs = [][]byte{swapInput, unwrapInput}
		value = big.NewInt(0)

	default:
		return nil, swaperr.New(swaperr.KindValidation, "unsupported direction: %q", req.Direction)
	}

	calldata, err := EncodeExecute(commands, inputs, deadline)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindValidation, err, "failed to encode execute call")
	}

	return b.assemble(ctx, b.cfg.RouterAddress, value, calldata, b.cfg.SwapGasLimit)
}

// BuildApprove assembles and signs an ERC20 approval.
func (b *Builder) BuildApprove(ctx context.Context, token, spender common.Address, amount *big.Int) (*Built, error) {
	calldata, err := EncodeApprove(spender, amount)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindApproval, err, "failed to encode approve call")
	}
	return b.assemble(ctx, token, big.NewInt(0), calldata, b.cfg.ApproveGasLimit)
}

// assemble fills in fees and nonce, then signs.
func (b *Builder) assemble(ctx context.Context, to common.Address, value *big.Int, data []byte, gasLimit uint64) (*Built, error) {
	tipCap, feeCap, err := b.suggestFees(ctx)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindTransport, err, "failed to get fee suggestions")
	}

	nonce, err := b.nonces.Next(ctx, b.ledger, b.signer.Address())
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindTransport, err, "failed to allocate nonce")
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   b.cfg.ChainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signed, err := b.signer.Sign(tx)
	if err != nil {
		b.nonces.Release(b.signer.Address(), nonce)
		return nil, swaperr.Wrap(swaperr.KindTransport, err, "failed to sign transaction")
	}

	b.logger.DebugWithScope(logger.Builder, "built tx %s: to=%s nonce=%d gas=%d tip=%s fee=%s",
		signed.Hash().Hex(), to.Hex(), nonce, gasLimit, tipCap, feeCap)

	return &Built{Tx: signed, Nonce: nonce}, nil
}

// suggestFees reads the node's suggestions and applies the configured
// multipliers. The fee cap is clamped to at least the tip cap so the
// transaction is always well formed.
func (b *Builder) suggestFees(ctx context.Context) (tipCap, feeCap *big.Int, err error) {
	tip, err := b.ledger.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, err
	}
	gasPrice, err := b.ledger.SuggestGasPrice(ctx)
	if err != nil {
		return nil, nil, err
	}

	tipCap = mulByFloat(tip, b.cfg.PriorityFeeMultiplier)
	feeCap = mulByFloat(gasPrice, b.cfg.FeeMultiplier)
	if feeCap.Cmp(tipCap) < 0 {
		feeCap = new(big.Int).Set(tipCap)
	}
	return tipCap, feeCap, nil
}

// mulByFloat applies a float multiplier to a wei amount (e.g. 1.5 = 50% buffer)
func mulByFloat(value *big.Int, multiplier float64) *big.Int {
	scaled := new(big.Float).Mul(
		new(big.Float).SetInt(value),
		big.NewFloat(multiplier),
	)
	result := new(big.Int)
	scaled.Int(result)
	return result
}
