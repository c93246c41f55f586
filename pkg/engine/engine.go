// Package engine orchestrates the full swap sequence: validate, check
// funds, approve when needed, quote, build, submit and track.
package engine

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/swaprun-hq/swaprunner/pkg/approval"
	"github.com/swaprun-hq/swaprunner/pkg/chainclient"
	"github.com/swaprun-hq/swaprunner/pkg/circuitbreaker"
	"github.com/swaprun-hq/swaprunner/pkg/logger"
	"github.com/swaprun-hq/swaprunner/pkg/metrics"
	"github.com/swaprun-hq/swaprunner/pkg/models"
	"github.com/swaprun-hq/swaprunner/pkg/quote"
	"github.com/swaprun-hq/swaprunner/pkg/swaperr"
	"github.com/swaprun-hq/swaprunner/pkg/tracker"
	"github.com/swaprun-hq/swaprunner/pkg/txbuilder"
)

// Config holds the static parameters the engine needs beyond what its
// components carry themselves.
type Config struct {
	ChainID            int64
	QuoteTokenAddress  common.Address
	SpenderAddress     common.Address
	QuoteTokenDecimals int32
	DefaultSlippageBps uint32
}

// Engine executes swaps end to end. It is safe for concurrent use; each
// Execute call runs independently and nonce allocation below it is serialized.
type Engine struct {
	ledger    chainclient.Ledger
	owner     common.Address
	estimator *quote.Estimator
	builder   *txbuilder.Builder
	tracker   *tracker.Tracker
	approvals *approval.Manager
	breaker   *circuitbreaker.CircuitBreaker
	cfg       Config
	logger    logger.Logger
}

// New creates a swap engine.
func New(ledger chainclient.Ledger, owner common.Address, estimator *quote.Estimator, builder *txbuilder.Builder, trk *tracker.Tracker, approvals *approval.Manager, breaker *circuitbreaker.CircuitBreaker, cfg Config, log logger.Logger) *Engine {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Engine{
		ledger:    ledger,
		owner:     owner,
		estimator: estimator,
		builder:   builder,
		tracker:   trk,
		approvals: approvals,
		breaker:   breaker,
		cfg:       cfg,
		logger:    log,
	}
}

// Owner returns the account the engine swaps from.
func (e *Engine) Owner() common.Address {
	return e.owner
}

// Tracker exposes the lifecycle tracker for one-off status lookups.
func (e *Engine) Tracker() *tracker.Tracker {
	return e.tracker
}

// DefaultSlippageBps is the tolerance boundaries apply when a caller leaves
// slippage unset. The engine itself takes requests literally; an explicit
// zero means zero tolerance.
func (e *Engine) DefaultSlippageBps() uint32 {
	return e.cfg.DefaultSlippageBps
}

// Execute runs one swap from request to terminal result. It always returns
// a non-nil result; when err is non-nil the result explains the failure in
// caller-friendly terms. Failed swaps are never retried automatically.
func (e *Engine) Execute(ctx context.Context, req models.SwapRequest) (*models.SwapResult, error) {
	started := time.Now()

	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	metrics.SwapsInFlight.Inc()
	defer metrics.SwapsInFlight.Dec()

	result, err := e.execute(ctx, req)
	result.Duration = time.Since(started)

	direction := req.Direction.String()
	metrics.SwapsExecuted.WithLabelValues(direction, string(result.Status)).Inc()
	metrics.SwapDuration.WithLabelValues(direction).Observe(result.Duration.Seconds())
	if result.GasUsed > 0 {
		metrics.GasUsed.WithLabelValues(direction).Observe(float64(result.GasUsed))
	}

	if err != nil {
		kind := swaperr.KindOf(err)
		metrics.SwapErrors.WithLabelValues(direction, string(kind)).Inc()
		// Bad input is the caller's fault, not the pipeline's
		if kind != swaperr.KindValidation {
			e.breaker.RecordFailure()
		}
		e.logger.ErrorWithScope(logger.Engine, "swap %s failed after %s: %v", req.ID, result.Duration, err)
	} else {
		e.breaker.RecordSuccess()
		e.logger.NoticeWithScope(logger.Engine, "swap %s succeeded in %s: tx=%s gas=%d",
			req.ID, result.Duration, result.TxHash.Hex(), result.GasUsed)
	}

	return result, err
}

func (e *Engine) execute(ctx context.Context, req models.SwapRequest) (*models.SwapResult, error) {
	if err := e.validate(req); err != nil {
		return e.failed(req, nil, err), err
	}

	if e.breaker.IsOpen() {
		err := swaperr.New(swaperr.KindTransport, "circuit breaker open, refusing to submit")
		return e.failed(req, nil, err), err
	}

	if err := e.checkFunds(ctx, req); err != nil {
		return e.failed(req, nil, err), err
	}

	var approvalHash *common.Hash
	if req.Direction == models.SellQuoteForBase {
		required := models.BaseUnits(req.Amount, e.cfg.QuoteTokenDecimals)
		res, err := e.approvals.EnsureApproval(ctx, e.cfg.QuoteTokenAddress, e.cfg.SpenderAddress, required)
		if err != nil {
			return e.failed(req, nil, err), err
		}
		approvalHash = res.TxHash
		metrics.ApprovalsSubmitted.WithLabelValues(string(res.Outcome)).Inc()
	}

	// Quote only after any approval wait so the minimum output prices the
	// market at submission time, not minutes earlier
	q, err := e.estimator.Estimate(ctx, req)
	if err != nil {
		res := e.failed(req, nil, err)
		res.ApprovalHash = approvalHash
		return res, err
	}
	e.recordQuote(q)

	built, err := e.builder.BuildSwap(ctx, req, *q)
	if err != nil {
		res := e.failed(req, q, err)
		res.ApprovalHash = approvalHash
		return res, err
	}

	if err := e.ledger.SendTransaction(ctx, built.Tx); err != nil {
		e.builder.ReleaseNonce(built)
		wrapped := swaperr.Wrap(swaperr.KindTransport, err, "failed to submit swap")
		res := e.failed(req, q, wrapped)
		res.ApprovalHash = approvalHash
		return res, wrapped
	}

	txHash := built.Tx.Hash()
	e.logger.InfoWithScope(logger.Engine, "swap %s submitted: tx=%s", req.ID, txHash.Hex())

	status := e.tracker.Track(ctx, txHash)
	switch status.State {
	case tracker.StateConfirmed:
		return &models.SwapResult{
			RequestID:    req.ID,
			Status:       models.SwapSuccess,
			TxHash:       &txHash,
			ApprovalHash: approvalHash,
			Quote:        q,
			GasUsed:      status.Receipt.GasUsed,
			BlockNumber:  status.Receipt.BlockNumber.Uint64(),
		}, nil

	case tracker.StateReverted:
		err := swaperr.New(swaperr.KindReverted, "swap transaction reverted").
			WithTx(txHash).WithReceipt(status.Receipt)
		res := e.failed(req, q, err)
		res.TxHash = &txHash
		res.ApprovalHash = approvalHash
		res.GasUsed = status.Receipt.GasUsed
		res.BlockNumber = status.Receipt.BlockNumber.Uint64()
		return res, err

	default:
		metrics.TrackingTimeouts.Inc()
		err := swaperr.New(swaperr.KindTimeout, "swap not mined within tracking budget, transaction left outstanding").
			WithTx(txHash)
		res := e.failed(req, q, err)
		res.Status = models.SwapTimedOut
		res.TxHash = &txHash
		res.ApprovalHash = approvalHash
		return res, err
	}
}

// Snapshot computes a quote plus the account state relevant to executing
// it, without submitting anything.
func (e *Engine) Snapshot(ctx context.Context, req models.SwapRequest) (*models.QuoteSnapshot, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}

	q, err := e.estimator.Estimate(ctx, req)
	if err != nil {
		return nil, err
	}
	e.recordQuote(q)

	nativeBal, err := e.ledger.BalanceAt(ctx, e.owner)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindTransport, err, "failed to read native balance")
	}
	tokenBal, err := e.ledger.TokenBalance(ctx, e.cfg.QuoteTokenAddress, e.owner)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindTransport, err, "failed to read token balance")
	}
	allowance, err := e.ledger.Allowance(ctx, e.cfg.QuoteTokenAddress, e.owner, e.cfg.SpenderAddress)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindTransport, err, "failed to read allowance")
	}

	var available, required *big.Int
	if req.Direction == models.SellBaseForQuote {
		available = nativeBal
		required = models.BaseUnits(req.Amount, txbuilder.NativeDecimals)
	} else {
		available = tokenBal
		required = models.BaseUnits(req.Amount, e.cfg.QuoteTokenDecimals)
	}

	return &models.QuoteSnapshot{
		Quote:          *q,
		BaseBalance:    decimal.NewFromBigInt(nativeBal, -txbuilder.NativeDecimals),
		QuoteBalance:   decimal.NewFromBigInt(tokenBal, -e.cfg.QuoteTokenDecimals),
		HasBalance:     available.Cmp(required) >= 0,
		SpenderAllowed: allowance.Cmp(required) >= 0,
	}, nil
}

func (e *Engine) validate(req models.SwapRequest) error {
	if err := req.Validate(); err != nil {
		return swaperr.Wrap(swaperr.KindValidation, err, "invalid swap request")
	}
	if req.ChainID != 0 && req.ChainID != e.cfg.ChainID {
		return swaperr.New(swaperr.KindValidation, "request targets chain %d, engine is on chain %d", req.ChainID, e.cfg.ChainID)
	}
	return nil
}

// checkFunds verifies the input side is covered before anything is
// submitted. Gas is deliberately not included; the fee market moves too
// fast for a pre-check to mean anything.
func (e *Engine) checkFunds(ctx context.Context, req models.SwapRequest) error {
	var available *big.Int
	var err error
	var required *big.Int

	if req.Direction == models.SellBaseForQuote {
		required = models.BaseUnits(req.Amount, txbuilder.NativeDecimals)
		available, err = e.ledger.BalanceAt(ctx, e.owner)
	} else {
		required = models.BaseUnits(req.Amount, e.cfg.QuoteTokenDecimals)
		available, err = e.ledger.TokenBalance(ctx, e.cfg.QuoteTokenAddress, e.owner)
	}
	if err != nil {
		return swaperr.Wrap(swaperr.KindTransport, err, "failed to read balance")
	}

	if available.Cmp(required) < 0 {
		return swaperr.New(swaperr.KindInsufficientFunds, "need %s units, have %s", required, available)
	}
	return nil
}

func (e *Engine) recordQuote(q *models.Quote) {
	source := "live"
	if q.Stale {
		source = "fallback"
	}
	metrics.QuotesServed.WithLabelValues(source).Inc()
	rate, _ := q.RateUsed.Float64()
	metrics.RateUsed.Set(rate)
}

// failed builds the result for an unsuccessful attempt.
func (e *Engine) failed(req models.SwapRequest, q *models.Quote, err error) *models.SwapResult {
	res := &models.SwapResult{
		RequestID:    req.ID,
		Status:       models.SwapFailed,
		Quote:        q,
		Err:          err,
		ErrorKind:    string(swaperr.KindOf(err)),
		ErrorMessage: err.Error(),
	}
	if swaperr.IsKind(err, swaperr.KindTimeout) {
		res.Status = models.SwapTimedOut
	}
	return res
}
