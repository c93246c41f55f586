package approval

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swaprun-hq/swaprunner/pkg/blockchain"
	"github.com/swaprun-hq/swaprunner/pkg/chainclient/mocks"
	"github.com/swaprun-hq/swaprunner/pkg/swaperr"
	"github.com/swaprun-hq/swaprunner/pkg/tracker"
	"github.com/swaprun-hq/swaprunner/pkg/txbuilder"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	testToken   = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	testSpender = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
)

func testManager(t *testing.T, ledger *mocks.MockLedger, wait bool) (*Manager, common.Address) {
	t.Helper()
	signer, err := blockchain.NewKeySigner(testKeyHex, big.NewInt(8453))
	require.NoError(t, err)

	builder := txbuilder.NewBuilder(ledger, signer, blockchain.NewNonceManager(), txbuilder.Config{
		ChainID:               big.NewInt(8453),
		RouterAddress:         common.HexToAddress("0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD"),
		WrappedNativeAddress:  common.HexToAddress("0x4200000000000000000000000000000000000006"),
		QuoteTokenAddress:     testToken,
		QuoteTokenDecimals:    6,
		SwapGasLimit:          500000,
		ApproveGasLimit:       100000,
		PriorityFeeMultiplier: 1.5,
		FeeMultiplier:         2.0,
		DeadlineWindow:        10 * time.Minute,
	}, nil)

	trk := tracker.New(ledger, tracker.Config{
		PollInterval:  5 * time.Millisecond,
		PollTimeout:   50 * time.Millisecond,
		Budget:        200 * time.Millisecond,
		Confirmations: 1,
	}, nil)

	return NewManager(ledger, builder, trk, signer.Address(), wait, 200*time.Millisecond, nil), signer.Address()
}

func TestEnsureApproval(t *testing.T) {
	t.Run("sufficient allowance submits nothing", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		m, owner := testManager(t, ledger, true)
		ledger.SetAllowance(testToken, owner, testSpender, big.NewInt(2000))

		res, err := m.EnsureApproval(context.Background(), testToken, testSpender, big.NewInt(1000))
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadySufficient, res.Outcome)
		assert.Nil(t, res.TxHash)
		assert.Equal(t, 0, ledger.SentCount())
	})

	t.Run("max allowance always suffices", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		m, owner := testManager(t, ledger, true)
		ledger.SetAllowance(testToken, owner, testSpender, MaxApproval)

		huge := new(big.Int).Rsh(MaxApproval, 1)
		res, err := m.EnsureApproval(context.Background(), testToken, testSpender, huge)
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadySufficient, res.Outcome)
	})

	t.Run("short allowance submits max approval and waits", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		ledger.MineMode = mocks.MineSuccess
		m, _ := testManager(t, ledger, true)

		res, err := m.EnsureApproval(context.Background(), testToken, testSpender, big.NewInt(1000))
		require.NoError(t, err)
		assert.Equal(t, OutcomeConfirmed, res.Outcome)
		require.NotNil(t, res.TxHash)
		require.Equal(t, 1, ledger.SentCount())

		// The approval targets the token and grants the unlimited amount
		tx := ledger.LastSent()
		assert.Equal(t, testToken, *tx.To())
		values, err := txbuilder.EncodeApprove(testSpender, MaxApproval)
		require.NoError(t, err)
		assert.Equal(t, values, tx.Data())
	})

	t.Run("async mode returns submitted", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		ledger.MineMode = mocks.MineSuccess
		m, _ := testManager(t, ledger, false)

		res, err := m.EnsureApproval(context.Background(), testToken, testSpender, big.NewInt(1000))
		require.NoError(t, err)
		assert.Equal(t, OutcomeSubmitted, res.Outcome)
		require.NotNil(t, res.TxHash)
	})

	t.Run("reverted approval surfaces approval error", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		ledger.MineMode = mocks.MineRevert
		m, _ := testManager(t, ledger, true)

		_, err := m.EnsureApproval(context.Background(), testToken, testSpender, big.NewInt(1000))
		require.Error(t, err)
		assert.True(t, swaperr.IsKind(err, swaperr.KindApproval))
	})

	t.Run("unmined approval times out as approval error", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		m, _ := testManager(t, ledger, true)

		_, err := m.EnsureApproval(context.Background(), testToken, testSpender, big.NewInt(1000))
		require.Error(t, err)
		assert.True(t, swaperr.IsKind(err, swaperr.KindApproval))
	})

	t.Run("concurrent callers share one approval", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		ledger.MineMode = mocks.MineSuccess
		// Delay the receipt so every caller is in flight before it lands
		ledger.ReceiptAfterPolls = 2
		m, _ := testManager(t, ledger, true)

		const callers = 8
		start := make(chan struct{})
		var wg sync.WaitGroup
		results := make([]*Result, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				res, err := m.EnsureApproval(context.Background(), testToken, testSpender, big.NewInt(1000))
				require.NoError(t, err)
				results[i] = res
			}(i)
		}
		close(start)
		wg.Wait()

		require.Equal(t, 1, ledger.SentCount(), "only one approval transaction may be submitted")
		submitted := ledger.LastSent().Hash()
		for _, res := range results {
			assert.Equal(t, OutcomeConfirmed, res.Outcome)
			// Joiners must see the submitter's hash, not a zero value
			require.NotNil(t, res.TxHash)
			assert.Equal(t, submitted, *res.TxHash)
		}
	})
}
