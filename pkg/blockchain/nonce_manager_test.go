package blockchain

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swaprun-hq/swaprunner/pkg/chainclient/mocks"
)

var testAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")

func TestNonceManagerNext(t *testing.T) {
	t.Run("starts from pending nonce", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		ledger.Nonces[testAccount] = 42

		nm := NewNonceManager()
		nonce, err := nm.Next(context.Background(), ledger, testAccount)
		require.NoError(t, err)
		assert.Equal(t, uint64(42), nonce)
	})

	t.Run("sequential allocations increment", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		ledger.Nonces[testAccount] = 10

		nm := NewNonceManager()
		for want := uint64(10); want < 15; want++ {
			nonce, err := nm.Next(context.Background(), ledger, testAccount)
			require.NoError(t, err)
			assert.Equal(t, want, nonce)
		}
	})

	t.Run("concurrent allocations are unique and contiguous", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		ledger.Nonces[testAccount] = 100

		nm := NewNonceManager()
		const workers = 50

		var mu sync.Mutex
		var got []uint64
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				nonce, err := nm.Next(context.Background(), ledger, testAccount)
				require.NoError(t, err)
				mu.Lock()
				got = append(got, nonce)
				mu.Unlock()
			}()
		}
		wg.Wait()

		sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
		require.Len(t, got, workers)
		for i, nonce := range got {
			assert.Equal(t, uint64(100+i), nonce)
		}
	})

	t.Run("accounts are independent", func(t *testing.T) {
		other := common.HexToAddress("0x2222222222222222222222222222222222222222")
		ledger := mocks.NewMockLedger()
		ledger.Nonces[testAccount] = 5
		ledger.Nonces[other] = 90

		nm := NewNonceManager()
		a, err := nm.Next(context.Background(), ledger, testAccount)
		require.NoError(t, err)
		b, err := nm.Next(context.Background(), ledger, other)
		require.NoError(t, err)

		assert.Equal(t, uint64(5), a)
		assert.Equal(t, uint64(90), b)
	})
}

func TestNonceManagerRelease(t *testing.T) {
	t.Run("latest reservation can be returned", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		nm := NewNonceManager()

		nonce, err := nm.Next(context.Background(), ledger, testAccount)
		require.NoError(t, err)

		nm.Release(testAccount, nonce)

		again, err := nm.Next(context.Background(), ledger, testAccount)
		require.NoError(t, err)
		assert.Equal(t, nonce, again)
	})

	t.Run("stale release is ignored", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		nm := NewNonceManager()

		first, err := nm.Next(context.Background(), ledger, testAccount)
		require.NoError(t, err)
		_, err = nm.Next(context.Background(), ledger, testAccount)
		require.NoError(t, err)

		// Releasing the older reservation must not rewind past the newer one
		nm.Release(testAccount, first)

		next, err := nm.Next(context.Background(), ledger, testAccount)
		require.NoError(t, err)
		assert.Equal(t, first+2, next)
	})
}

func TestNonceManagerSync(t *testing.T) {
	ledger := mocks.NewMockLedger()
	ledger.Nonces[testAccount] = 0

	nm := NewNonceManager()
	_, err := nm.Next(context.Background(), ledger, testAccount)
	require.NoError(t, err)

	// Another sender moved the account's nonce on chain
	ledger.Nonces[testAccount] = 20
	require.NoError(t, nm.Sync(context.Background(), ledger, testAccount))

	nonce, err := nm.Next(context.Background(), ledger, testAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), nonce)
}
