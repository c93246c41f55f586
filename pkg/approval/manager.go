// Package approval grants the swap spender an ERC20 allowance, submitting
// at most one approval transaction per (owner, token, spender) at a time.
package approval

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swaprun-hq/swaprunner/pkg/chainclient"
	"github.com/swaprun-hq/swaprunner/pkg/logger"
	"github.com/swaprun-hq/swaprunner/pkg/swaperr"
	"github.com/swaprun-hq/swaprunner/pkg/tracker"
	"github.com/swaprun-hq/swaprunner/pkg/txbuilder"
)

// MaxApproval is the unlimited allowance (2^256 - 1). Approvals always
// grant the maximum so repeated swaps never pay for approvals twice.
var MaxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Outcome describes how an allowance requirement was satisfied.
type Outcome string

const (
	// OutcomeAlreadySufficient - existing allowance covers the amount, no transaction
	OutcomeAlreadySufficient Outcome = "ALREADY_SUFFICIENT"
	// OutcomeConfirmed - an approval transaction was mined successfully
	OutcomeConfirmed Outcome = "CONFIRMED"
	// OutcomeSubmitted - an approval transaction is in flight (async mode)
	OutcomeSubmitted Outcome = "SUBMITTED"
)

// Result reports the outcome and, when a transaction was involved, its hash.
type Result struct {
	Outcome Outcome
	TxHash  *common.Hash
}

type pendingKey struct {
	Owner   common.Address
	Token   common.Address
	Spender common.Address
}

// pendingApproval is shared by every caller waiting on the same approval.
type pendingApproval struct {
	txHash common.Hash
	done   chan struct{}
	// set before done is closed
	status *tracker.Status
	err    error
}

// Manager checks allowances and submits approvals when they fall short.
type Manager struct {
	ledger  chainclient.Ledger
	builder *txbuilder.Builder
	tracker *tracker.Tracker
	owner   common.Address

	// Wait blocks EnsureApproval until the approval is mined; when false
	// the approval is tracked in the background and the caller gets
	// OutcomeSubmitted immediately.
	wait    bool
	timeout time.Duration

	mu      sync.Mutex
	pending map[pendingKey]*pendingApproval

	logger logger.Logger
}

// NewManager creates an approval manager for the given owner account.
func NewManager(ledger chainclient.Ledger, builder *txbuilder.Builder, trk *tracker.Tracker, owner common.Address, wait bool, timeout time.Duration, log logger.Logger) *Manager {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Manager{
		ledger:  ledger,
		builder: builder,
		tracker: trk,
		owner:   owner,
		wait:    wait,
		timeout: timeout,
		pending: make(map[pendingKey]*pendingApproval),
		logger:  log,
	}
}

// EnsureApproval guarantees the spender can move at least required units of
// token on the owner's behalf. Callers racing on the same (token, spender)
// share a single in-flight approval rather than stacking transactions.
func (m *Manager) EnsureApproval(ctx context.Context, token, spender common.Address, required *big.Int) (*Result, error) {
	allowance, err := m.ledger.Allowance(ctx, token, m.owner, spender)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindTransport, err, "failed to read allowance")
	}
	if allowance.Cmp(required) >= 0 {
		m.logger.DebugWithScope(logger.Approval, "allowance %s already covers %s, skipping approval", allowance, required)
		return &Result{Outcome: OutcomeAlreadySufficient}, nil
	}

	key := pendingKey{Owner: m.owner, Token: token, Spender: spender}

	m.mu.Lock()
	if p, ok := m.pending[key]; ok {
		m.mu.Unlock()
		// p.txHash is not readable until done closes; the submitter may
		// still be ahead of SendTransaction
		m.logger.InfoWithScope(logger.Approval, "approval for %s already in flight, joining", token.Hex())
		return m.settle(ctx, p)
	}

	p := &pendingApproval{done: make(chan struct{})}
	m.pending[key] = p
	m.mu.Unlock()

	built, err := m.builder.BuildApprove(ctx, token, spender, MaxApproval)
	if err != nil {
		m.fail(key, p, err)
		return nil, err
	}

	if err := m.ledger.SendTransaction(ctx, built.Tx); err != nil {
		m.builder.ReleaseNonce(built)
		wrapped := swaperr.Wrap(swaperr.KindApproval, err, "failed to submit approval")
		m.fail(key, p, wrapped)
		return nil, wrapped
	}

	p.txHash = built.Tx.Hash()
	m.logger.InfoWithScope(logger.Approval, "submitted approval %s: token=%s spender=%s", p.txHash.Hex(), token.Hex(), spender.Hex())

	go m.trackApproval(key, p)

	if !m.wait {
		hash := p.txHash
		return &Result{Outcome: OutcomeSubmitted, TxHash: &hash}, nil
	}
	return m.settle(ctx, p)
}

// trackApproval resolves the pending record once the approval terminates.
func (m *Manager) trackApproval(key pendingKey, p *pendingApproval) {
	trackCtx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	status := m.tracker.Track(trackCtx, p.txHash)

	var err error
	switch status.State {
	case tracker.StateConfirmed:
	case tracker.StateReverted:
		err = swaperr.New(swaperr.KindApproval, "approval transaction reverted").
			WithTx(p.txHash).WithReceipt(status.Receipt)
	default:
		err = swaperr.New(swaperr.KindApproval, "approval not mined within %s", m.timeout).WithTx(p.txHash)
	}

	m.mu.Lock()
	delete(m.pending, key)
	m.mu.Unlock()

	p.status = status
	p.err = err
	close(p.done)
}

// fail resolves a pending record that never produced a transaction.
func (m *Manager) fail(key pendingKey, p *pendingApproval, err error) {
	m.mu.Lock()
	delete(m.pending, key)
	m.mu.Unlock()

	p.err = err
	close(p.done)
}

// settle waits for a pending approval to resolve.
func (m *Manager) settle(ctx context.Context, p *pendingApproval) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, swaperr.Wrap(swaperr.KindApproval, ctx.Err(), "gave up waiting for approval")
	case <-p.done:
	}

	if p.err != nil {
		return nil, p.err
	}
	hash := p.txHash
	return &Result{Outcome: OutcomeConfirmed, TxHash: &hash}, nil
}
