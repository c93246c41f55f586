// Package mocks provides a scriptable in-memory Ledger for tests.
package mocks

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// MineMode selects the fate of submitted transactions.
type MineMode int

const (
	// MineNone leaves submitted transactions unmined
	MineNone MineMode = iota
	// MineSuccess makes a success receipt available immediately
	MineSuccess
	// MineRevert makes a reverted receipt available immediately
	MineRevert
)

type allowanceKey struct {
	Token   common.Address
	Owner   common.Address
	Spender common.Address
}

type balanceKey struct {
	Token common.Address
	Owner common.Address
}

// MockLedger implements chainclient.Ledger with in-memory state. Tests
// seed balances, allowances and receipts, then inspect the transactions
// the code under test submitted.
type MockLedger struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	NativeBal    map[common.Address]*big.Int
	TokenBal     map[balanceKey]*big.Int
	Allowances   map[allowanceKey]*big.Int
	Nonces       map[common.Address]uint64
	GasPrice     *big.Int
	GasTipCap    *big.Int
	Block        uint64

	// Receipts maps tx hash to the receipt TransactionReceipt returns.
	// Hashes absent from the map report ethereum.NotFound, matching a
	// transaction that has not been mined yet.
	Receipts map[common.Hash]*types.Receipt

	// Sent accumulates every transaction passed to SendTransaction.
	Sent []*types.Transaction

	// Error overrides, checked before normal behavior.
	SendErr    error
	ReceiptErr error
	ReadErr    error

	// MineMode controls what SendTransaction does with accepted
	// transactions: leave them unmined, mine them successfully, or mine
	// them as reverted.
	MineMode MineMode

	// ReceiptAfterPolls delays receipt availability: the first N
	// TransactionReceipt calls per hash report not found.
	ReceiptAfterPolls int
	pollCounts        map[common.Hash]int
}

// NewMockLedger creates a ledger with sane defaults for chain 8453.
func NewMockLedger() *MockLedger {
	return &MockLedger{
		ChainIDValue: big.NewInt(8453),
		NativeBal:    make(map[common.Address]*big.Int),
		TokenBal:     make(map[balanceKey]*big.Int),
		Allowances:   make(map[allowanceKey]*big.Int),
		Nonces:       make(map[common.Address]uint64),
		GasPrice:     big.NewInt(2000000000), // 2 Gwei
		GasTipCap:    big.NewInt(100000000),
		Block:        1000,
		Receipts:     make(map[common.Hash]*types.Receipt),
		pollCounts:   make(map[common.Hash]int),
	}
}

// SetNativeBalance seeds the native balance of an account.
func (m *MockLedger) SetNativeBalance(account common.Address, wei *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NativeBal[account] = wei
}

// SetTokenBalance seeds the ERC20 balance of an owner.
func (m *MockLedger) SetTokenBalance(token, owner common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TokenBal[balanceKey{Token: token, Owner: owner}] = amount
}

// SetAllowance seeds an ERC20 allowance.
func (m *MockLedger) SetAllowance(token, owner, spender common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Allowances[allowanceKey{Token: token, Owner: owner, Spender: spender}] = amount
}

// SetReceipt makes a receipt available for the given hash.
func (m *MockLedger) SetReceipt(hash common.Hash, receipt *types.Receipt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Receipts[hash] = receipt
}

// SentCount returns the number of transactions submitted so far.
func (m *MockLedger) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// LastSent returns the most recently submitted transaction.
func (m *MockLedger) LastSent() *types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return nil
	}
	return m.Sent[len(m.Sent)-1]
}

func (m *MockLedger) ChainID(_ context.Context) (*big.Int, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return m.ChainIDValue, nil
}

func (m *MockLedger) BalanceAt(_ context.Context, account common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	if bal, ok := m.NativeBal[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (m *MockLedger) TokenBalance(_ context.Context, token, owner common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	if bal, ok := m.TokenBal[balanceKey{Token: token, Owner: owner}]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (m *MockLedger) Allowance(_ context.Context, token, owner, spender common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	if a, ok := m.Allowances[allowanceKey{Token: token, Owner: owner, Spender: spender}]; ok {
		return new(big.Int).Set(a), nil
	}
	return big.NewInt(0), nil
}

func (m *MockLedger) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	return m.Nonces[account], nil
}

func (m *MockLedger) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return new(big.Int).Set(m.GasPrice), nil
}

func (m *MockLedger) SuggestGasTipCap(_ context.Context) (*big.Int, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return new(big.Int).Set(m.GasTipCap), nil
}

func (m *MockLedger) SendTransaction(_ context.Context, tx *types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Sent = append(m.Sent, tx)

	switch m.MineMode {
	case MineSuccess:
		m.Receipts[tx.Hash()] = SuccessReceipt(tx.Hash(), m.Block, 180000)
	case MineRevert:
		m.Receipts[tx.Hash()] = RevertedReceipt(tx.Hash(), m.Block, 60000)
	}
	return nil
}

func (m *MockLedger) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReceiptErr != nil {
		return nil, m.ReceiptErr
	}
	if m.ReceiptAfterPolls > 0 {
		m.pollCounts[txHash]++
		if m.pollCounts[txHash] <= m.ReceiptAfterPolls {
			return nil, ethereum.NotFound
		}
	}
	receipt, ok := m.Receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (m *MockLedger) BlockNumber(_ context.Context) (uint64, error) {
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	return m.Block, nil
}

// SuccessReceipt builds a mined receipt with status 1.
func SuccessReceipt(hash common.Hash, block uint64, gasUsed uint64) *types.Receipt {
	return &types.Receipt{
		TxHash:      hash,
		Status:      types.ReceiptStatusSuccessful,
		GasUsed:     gasUsed,
		BlockNumber: new(big.Int).SetUint64(block),
	}
}

// RevertedReceipt builds a mined receipt with status 0.
func RevertedReceipt(hash common.Hash, block uint64, gasUsed uint64) *types.Receipt {
	return &types.Receipt{
		TxHash:      hash,
		Status:      types.ReceiptStatusFailed,
		GasUsed:     gasUsed,
		BlockNumber: new(big.Int).SetUint64(block),
	}
}

// String helps debugging when an assertion on Sent fails.
func (m *MockLedger) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("MockLedger{sent=%d, block=%d}", len(m.Sent), m.Block)
}
