// Package tracker follows submitted transactions until they reach a
// terminal state or exhaust their polling budget.
package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/swaprun-hq/swaprunner/pkg/chainclient"
	"github.com/swaprun-hq/swaprunner/pkg/logger"
	"github.com/swaprun-hq/swaprunner/pkg/swaperr"
)

// State is the observed lifecycle state of a transaction.
type State string

const (
	// StatePending - no receipt yet, or not enough confirmations
	StatePending State = "PENDING"
	// StateConfirmed - mined with status 1 and enough confirmations
	StateConfirmed State = "CONFIRMED"
	// StateReverted - mined with status 0. Terminal; a mined revert
	// cannot be re-observed as anything else.
	StateReverted State = "REVERTED"
	// StateTimedOut - polling budget exhausted while still pending.
	// The transaction itself is left outstanding, not cancelled.
	StateTimedOut State = "TIMED_OUT"
)

// Terminal reports whether the state can no longer change from polling.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateReverted
}

// Status is one observation of a transaction.
type Status struct {
	TxHash  common.Hash
	State   State
	Receipt *types.Receipt
	// Confirmations is blocks mined on top of the inclusion block, plus one
	Confirmations uint64
}

// Config holds polling parameters.
type Config struct {
	// PollInterval is the delay between receipt checks
	PollInterval time.Duration
	// PollTimeout bounds a single receipt check
	PollTimeout time.Duration
	// Budget bounds the whole tracking loop
	Budget time.Duration
	// Confirmations required before Pending becomes Confirmed
	Confirmations uint64
}

// Tracker polls the ledger for transaction receipts.
type Tracker struct {
	ledger chainclient.Ledger
	cfg    Config
	logger logger.Logger
}

// New creates a tracker.
func New(ledger chainclient.Ledger, cfg Config, log logger.Logger) *Tracker {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if cfg.Confirmations == 0 {
		cfg.Confirmations = 1
	}
	return &Tracker{ledger: ledger, cfg: cfg, logger: log}
}

// CheckOnce performs a single receipt lookup. A missing receipt is a
// pending observation, not an error; only transport failures return one.
func (t *Tracker) CheckOnce(ctx context.Context, txHash common.Hash) (*Status, error) {
	checkCtx, cancel := context.WithTimeout(ctx, t.cfg.PollTimeout)
	defer cancel()

	receipt, err := t.ledger.TransactionReceipt(checkCtx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return &Status{TxHash: txHash, State: StatePending}, nil
		}
		return nil, swaperr.Wrap(swaperr.KindTransport, err, "failed to get receipt").WithTx(txHash)
	}

	confirmations, err := t.confirmations(ctx, receipt)
	if err != nil {
		return nil, err
	}

	if receipt.Status == types.ReceiptStatusFailed {
		return &Status{TxHash: txHash, State: StateReverted, Receipt: receipt, Confirmations: confirmations}, nil
	}
	if confirmations < t.cfg.Confirmations {
		return &Status{TxHash: txHash, State: StatePending, Receipt: receipt, Confirmations: confirmations}, nil
	}
	return &Status{TxHash: txHash, State: StateConfirmed, Receipt: receipt, Confirmations: confirmations}, nil
}

// Track polls until the transaction reaches a terminal state or the budget
// runs out. Transport errors during polling are tolerated and retried on
// the next tick; only the budget ends the loop without a terminal state.
func (t *Tracker) Track(ctx context.Context, txHash common.Hash) *Status {
	budgetCtx, cancel := context.WithTimeout(ctx, t.cfg.Budget)
	defer cancel()

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		status, err := t.CheckOnce(budgetCtx, txHash)
		if err != nil {
			t.logger.DebugWithScope(logger.Tracker, "receipt check for %s failed, retrying: %v", txHash.Hex(), err)
		} else if status.State.Terminal() {
			t.logger.InfoWithScope(logger.Tracker, "tx %s reached %s after %d confirmation(s)",
				txHash.Hex(), status.State, status.Confirmations)
			return status
		}

		select {
		case <-budgetCtx.Done():
			t.logger.NoticeWithScope(logger.Tracker, "tracking budget exhausted for tx %s, leaving it outstanding", txHash.Hex())
			return &Status{TxHash: txHash, State: StateTimedOut}
		case <-ticker.C:
		}
	}
}

// confirmations counts blocks on top of the inclusion block, inclusive.
func (t *Tracker) confirmations(ctx context.Context, receipt *types.Receipt) (uint64, error) {
	if receipt.BlockNumber == nil {
		return 0, nil
	}
	head, err := t.ledger.BlockNumber(ctx)
	if err != nil {
		return 0, swaperr.Wrap(swaperr.KindTransport, err, "failed to get block number")
	}
	included := receipt.BlockNumber.Uint64()
	if head < included {
		return 0, nil
	}
	return head - included + 1, nil
}
