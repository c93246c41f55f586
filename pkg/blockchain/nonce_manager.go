package blockchain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swaprun-hq/swaprunner/pkg/chainclient"
)

// NonceManager handles nonce allocation for the engine's accounts. Nonces
// are reserved under a single lock so concurrent builders never receive
// the same value, and a reservation is only ever observed once.
type NonceManager struct {
	// Per-account data structures
	accounts map[common.Address]*accountNonceData
	// Global lock for accessing the accounts map
	mu sync.RWMutex
	// How long a synced value stays trusted before re-reading the chain
	syncInterval time.Duration
}

// accountNonceData holds nonce data for a single account
type accountNonceData struct {
	// Next nonce to hand out
	nextNonce uint64
	// Last time the nonce was synchronized with the blockchain
	lastSync time.Time
	// Account-specific mutex for nonce operations
	mu sync.Mutex
}

// NewNonceManager creates a new nonce manager
func NewNonceManager() *NonceManager {
	return &NonceManager{
		accounts:     make(map[common.Address]*accountNonceData),
		syncInterval: 5 * time.Minute,
	}
}

// SetSyncInterval overrides how often the manager re-reads the pending
// nonce from the chain.
func (nm *NonceManager) SetSyncInterval(interval time.Duration) {
	nm.syncInterval = interval
}

// accountData ensures account data is initialized and returns it
func (nm *NonceManager) accountData(account common.Address) *accountNonceData {
	nm.mu.RLock()
	data, exists := nm.accounts[account]
	nm.mu.RUnlock()
	if exists {
		return data
	}

	nm.mu.Lock()
	defer nm.mu.Unlock()
	if data, exists = nm.accounts[account]; !exists {
		data = &accountNonceData{}
		nm.accounts[account] = data
	}
	return data
}

// Next reserves and returns the next available nonce for the account.
// The chain's pending nonce is consulted on first use and then again
// whenever the sync interval has elapsed; the tracked value only ever
// moves forward.
func (nm *NonceManager) Next(ctx context.Context, ledger chainclient.Ledger, account common.Address) (uint64, error) {
	data := nm.accountData(account)

	data.mu.Lock()
	defer data.mu.Unlock()

	if data.lastSync.IsZero() || time.Since(data.lastSync) > nm.syncInterval {
		pending, err := ledger.PendingNonceAt(ctx, account)
		if err != nil {
			return 0, fmt.Errorf("failed to get pending nonce: %v", err)
		}
		if pending > data.nextNonce {
			data.nextNonce = pending
		}
		data.lastSync = time.Now()
	}

	nonce := data.nextNonce
	data.nextNonce++
	return nonce, nil
}

// Release returns an unused reservation. Only the most recent reservation
// can be taken back; anything else would punch a hole in the sequence.
func (nm *NonceManager) Release(account common.Address, nonce uint64) {
	data := nm.accountData(account)

	data.mu.Lock()
	defer data.mu.Unlock()

	if data.nextNonce == nonce+1 {
		data.nextNonce = nonce
	}
}

// Sync forces a re-read of the pending nonce from the chain. Used after a
// submission failure that leaves the local counter in doubt.
func (nm *NonceManager) Sync(ctx context.Context, ledger chainclient.Ledger, account common.Address) error {
	data := nm.accountData(account)

	data.mu.Lock()
	defer data.mu.Unlock()

	pending, err := ledger.PendingNonceAt(ctx, account)
	if err != nil {
		return fmt.Errorf("failed to get pending nonce: %v", err)
	}
	if pending > data.nextNonce {
		data.nextNonce = pending
	}
	data.lastSync = time.Now()
	return nil
}
