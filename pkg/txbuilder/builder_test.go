package txbuilder

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swaprun-hq/swaprunner/pkg/blockchain"
	"github.com/swaprun-hq/swaprunner/pkg/chainclient/mocks"
	"github.com/swaprun-hq/swaprunner/pkg/models"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	testRouter = common.HexToAddress("0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD")
	testWETH   = common.HexToAddress("0x4200000000000000000000000000000000000006")
	testUSDC   = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
)

func testBuilder(t *testing.T, ledger *mocks.MockLedger) *Builder {
	t.Helper()
	signer, err := blockchain.NewKeySigner(testKeyHex, big.NewInt(8453))
	require.NoError(t, err)

	return NewBuilder(ledger, signer, blockchain.NewNonceManager(), Config{
		ChainID:               big.NewInt(8453),
		RouterAddress:         testRouter,
		WrappedNativeAddress:  testWETH,
		QuoteTokenAddress:     testUSDC,
		QuoteTokenDecimals:    6,
		SwapGasLimit:          500000,
		ApproveGasLimit:       100000,
		PriorityFeeMultiplier: 1.5,
		FeeMultiplier:         2.0,
		DeadlineWindow:        10 * time.Minute,
	}, nil)
}

// decodeExecute unpacks execute calldata back into its arguments
func decodeExecute(t *testing.T, data []byte) (commands []byte, inputs [][]byte, deadline *big.Int) {
	t.Helper()
	method := routerABI.Methods["execute"]
	require.Equal(t, method.ID, data[:4])

	values, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	return values[0].([]byte), values[1].([][]byte), values[2].(*big.Int)
}

func TestBuildSwapSellBase(t *testing.T) {
	ledger := mocks.NewMockLedger()
	b := testBuilder(t, ledger)

	req := models.SwapRequest{
		Direction:   models.SellBaseForQuote,
		Amount:      decimal.NewFromFloat(0.5),
		SlippageBps: 100,
	}
	q := models.Quote{
		InputAmount:   req.Amount,
		MinimumOutput: decimal.NewFromFloat(1237.5),
	}

	built, err := b.BuildSwap(context.Background(), req, q)
	require.NoError(t, err)
	tx := built.Tx

	assert.Equal(t, testRouter, *tx.To())
	// The wrap is funded by the transaction value
	assert.Equal(t, "500000000000000000", tx.Value().String())
	assert.Equal(t, uint64(500000), tx.Gas())

	commands, inputs, deadline := decodeExecute(t, tx.Data())
	require.Equal(t, []byte{CommandWrapNative, CommandV2SwapExactIn}, commands)
	require.Len(t, inputs, 2)
	assert.True(t, deadline.Cmp(big.NewInt(time.Now().Unix())) > 0)

	// Wrap keeps funds in the router for the swap step
	wrapped, err := wrapArgs.Unpack(inputs[0])
	require.NoError(t, err)
	assert.Equal(t, RecipientRouter, wrapped[0].(common.Address))
	assert.Equal(t, "500000000000000000", wrapped[1].(*big.Int).String())

	swap, err := v2SwapArgs.Unpack(inputs[1])
	require.NoError(t, err)
	assert.Equal(t, RecipientSender, swap[0].(common.Address))
	assert.Equal(t, "500000000000000000", swap[1].(*big.Int).String())
	assert.Equal(t, "1237500000", swap[2].(*big.Int).String())
	assert.Equal(t, []common.Address{testWETH, testUSDC}, swap[3].([]common.Address))
	assert.False(t, swap[4].(bool), "router pays from its wrapped balance")
}

func TestBuildSwapSellQuote(t *testing.T) {
	ledger := mocks.NewMockLedger()
	b := testBuilder(t, ledger)

	req := models.SwapRequest{
		Direction:   models.SellQuoteForBase,
		Amount:      decimal.NewFromInt(1250),
		SlippageBps: 200,
	}
	q := models.Quote{
		InputAmount:   req.Amount,
		MinimumOutput: decimal.NewFromFloat(0.49),
	}

	built, err := b.BuildSwap(context.Background(), req, q)
	require.NoError(t, err)
	tx := built.Tx

	assert.Equal(t, testRouter, *tx.To())
	// Token input means no native value attached
	assert.Equal(t, "0", tx.Value().String())

	commands, inputs, _ := decodeExecute(t, tx.Data())
	require.Equal(t, []byte{CommandV2SwapExactIn, CommandUnwrapNative}, commands)
	require.Len(t, inputs, 2)

	// Swap output stays in the router so the unwrap can deliver native funds
	swap, err := v2SwapArgs.Unpack(inputs[0])
	require.NoError(t, err)
	assert.Equal(t, RecipientRouter, swap[0].(common.Address))
	assert.Equal(t, "1250000000", swap[1].(*big.Int).String())
	assert.Equal(t, "490000000000000000", swap[2].(*big.Int).String())
	assert.Equal(t, []common.Address{testUSDC, testWETH}, swap[3].([]common.Address))
	assert.True(t, swap[4].(bool), "input is pulled from the sender via Permit2")

	unwrap, err := unwrapArgs.Unpack(inputs[1])
	require.NoError(t, err)
	assert.Equal(t, RecipientSender, unwrap[0].(common.Address))
	assert.Equal(t, "490000000000000000", unwrap[1].(*big.Int).String())
}

func TestBuildApprove(t *testing.T) {
	ledger := mocks.NewMockLedger()
	b := testBuilder(t, ledger)

	spender := common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	built, err := b.BuildApprove(context.Background(), testUSDC, spender, max)
	require.NoError(t, err)
	tx := built.Tx

	assert.Equal(t, testUSDC, *tx.To())
	assert.Equal(t, "0", tx.Value().String())
	assert.Equal(t, uint64(100000), tx.Gas())

	method := approveABI.Methods["approve"]
	require.Equal(t, method.ID, tx.Data()[:4])
	values, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, spender, values[0].(common.Address))
	assert.Equal(t, max, values[1].(*big.Int))
}

func TestFeeSelection(t *testing.T) {
	t.Run("multipliers applied to node suggestions", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		ledger.GasPrice = big.NewInt(2000000000) // 2 gwei
		ledger.GasTipCap = big.NewInt(100000000) // 0.1 gwei
		b := testBuilder(t, ledger)

		built, err := b.BuildApprove(context.Background(), testUSDC, testRouter, big.NewInt(1))
		require.NoError(t, err)

		assert.Equal(t, "150000000", built.Tx.GasTipCap().String())  // 0.1 gwei * 1.5
		assert.Equal(t, "4000000000", built.Tx.GasFeeCap().String()) // 2 gwei * 2.0
	})

	t.Run("fee cap never below tip cap", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		ledger.GasPrice = big.NewInt(100)
		ledger.GasTipCap = big.NewInt(1000000000)
		b := testBuilder(t, ledger)

		built, err := b.BuildApprove(context.Background(), testUSDC, testRouter, big.NewInt(1))
		require.NoError(t, err)

		assert.True(t, built.Tx.GasFeeCap().Cmp(built.Tx.GasTipCap()) >= 0)
	})
}

func TestNonceHandling(t *testing.T) {
	ledger := mocks.NewMockLedger()
	b := testBuilder(t, ledger)

	first, err := b.BuildApprove(context.Background(), testUSDC, testRouter, big.NewInt(1))
	require.NoError(t, err)
	second, err := b.BuildApprove(context.Background(), testUSDC, testRouter, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, first.Nonce+1, second.Nonce)

	// A released nonce is handed out again
	b.ReleaseNonce(second)
	third, err := b.BuildApprove(context.Background(), testUSDC, testRouter, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, second.Nonce, third.Nonce)
}
