package health

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swaprun-hq/swaprunner/pkg/approval"
	"github.com/swaprun-hq/swaprunner/pkg/blockchain"
	"github.com/swaprun-hq/swaprunner/pkg/chainclient/mocks"
	"github.com/swaprun-hq/swaprunner/pkg/circuitbreaker"
	"github.com/swaprun-hq/swaprunner/pkg/engine"
	"github.com/swaprun-hq/swaprunner/pkg/models"
	"github.com/swaprun-hq/swaprunner/pkg/quote"
	"github.com/swaprun-hq/swaprunner/pkg/tracker"
	"github.com/swaprun-hq/swaprunner/pkg/txbuilder"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	testRouter  = common.HexToAddress("0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD")
	testWETH    = common.HexToAddress("0x4200000000000000000000000000000000000006")
	testUSDC    = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	testSpender = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
)

func testServer(t *testing.T, ledger *mocks.MockLedger) (*httptest.Server, *circuitbreaker.CircuitBreaker, common.Address) {
	t.Helper()
	signer, err := blockchain.NewKeySigner(testKeyHex, big.NewInt(8453))
	require.NoError(t, err)

	builder := txbuilder.NewBuilder(ledger, signer, blockchain.NewNonceManager(), txbuilder.Config{
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

	trk := tracker.New(ledger, tracker.Config{
		PollInterval:  5 * time.Millisecond,
		PollTimeout:   50 * time.Millisecond,
		Budget:        150 * time.Millisecond,
		Confirmations: 1,
	}, nil)

	approvals := approval.NewManager(ledger, builder, trk, signer.Address(), true, 150*time.Millisecond, nil)
	estimator := quote.NewEstimator(&quote.StaticRateSource{Value: decimal.NewFromInt(2500)}, decimal.Zero, nil)
	breaker := circuitbreaker.NewCircuitBreaker(true, 3, time.Minute, time.Minute, nil)

	eng := engine.New(ledger, signer.Address(), estimator, builder, trk, approvals, breaker, engine.Config{
		ChainID:            8453,
		QuoteTokenAddress:  testUSDC,
		SpenderAddress:     testSpender,
		QuoteTokenDecimals: 6,
		DefaultSlippageBps: 100,
	}, nil)

	srv := httptest.NewServer(NewServer("0", eng, breaker, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, breaker, signer.Address()
}

func TestHealthAndReadiness(t *testing.T) {
	ledger := mocks.NewMockLedger()
	srv, breaker, _ := testServer(t, ledger)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// An open breaker makes the service not ready
	breaker.RecordFailure()
	breaker.RecordFailure()
	breaker.RecordFailure()
	resp, err = http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestQuoteRoute(t *testing.T) {
	ledger := mocks.NewMockLedger()
	srv, _, owner := testServer(t, ledger)
	ledger.SetNativeBalance(owner, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

	t.Run("omitted slippage uses the configured default", func(t *testing.T) {
		body := `{"direction":"SELL_BASE_FOR_QUOTE","amount":"0.5"}`
		resp, err := http.Post(srv.URL+"/api/v1/quote", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var snapshot models.QuoteSnapshot
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
		assert.True(t, snapshot.Quote.EstimatedOutput.Equal(decimal.NewFromInt(1250)))
		assert.True(t, snapshot.Quote.MinimumOutput.Equal(decimal.NewFromFloat(1237.5)),
			"minimum %s should reflect the default 100 bps", snapshot.Quote.MinimumOutput)
		assert.True(t, snapshot.HasBalance)
	})

	t.Run("explicit zero slippage is not remapped", func(t *testing.T) {
		body := `{"direction":"SELL_BASE_FOR_QUOTE","amount":"0.5","slippage_bps":0}`
		resp, err := http.Post(srv.URL+"/api/v1/quote", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var snapshot models.QuoteSnapshot
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
		assert.True(t, snapshot.Quote.MinimumOutput.Equal(snapshot.Quote.EstimatedOutput),
			"zero tolerance must keep the full estimate, got %s", snapshot.Quote.MinimumOutput)
	})
}

func TestSwapRoute(t *testing.T) {
	t.Run("successful swap", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		ledger.MineMode = mocks.MineSuccess
		srv, _, owner := testServer(t, ledger)
		ledger.SetNativeBalance(owner, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

		body := `{"direction":"SELL_BASE_FOR_QUOTE","amount":"0.5"}`
		resp, err := http.Post(srv.URL+"/api/v1/swap", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result models.SwapResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, models.SwapSuccess, result.Status)
		assert.NotNil(t, result.TxHash)
	})

	t.Run("bad direction is a 400", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		srv, _, _ := testServer(t, ledger)

		body := `{"direction":"SIDEWAYS","amount":"1"}`
		resp, err := http.Post(srv.URL+"/api/v1/swap", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("insufficient funds is a 422", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		srv, _, _ := testServer(t, ledger)

		body := `{"direction":"SELL_BASE_FOR_QUOTE","amount":"0.5"}`
		resp, err := http.Post(srv.URL+"/api/v1/swap", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("GET is not allowed", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		srv, _, _ := testServer(t, ledger)

		resp, err := http.Get(srv.URL + "/api/v1/swap")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestTxStatusRoute(t *testing.T) {
	ledger := mocks.NewMockLedger()
	hash := common.HexToHash("0xabc0000000000000000000000000000000000000000000000000000000000001")
	ledger.SetReceipt(hash, mocks.SuccessReceipt(hash, 1000, 180000))
	srv, _, _ := testServer(t, ledger)

	resp, err := http.Get(srv.URL + "/api/v1/tx/" + hash.Hex())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "CONFIRMED", body["state"])
	assert.Equal(t, float64(180000), body["gas_used"])

	// Malformed hashes are rejected
	resp, err = http.Get(srv.URL + "/api/v1/tx/nonsense")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusRoute(t *testing.T) {
	ledger := mocks.NewMockLedger()
	srv, _, owner := testServer(t, ledger)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, owner.Hex(), body["account"])
	assert.Equal(t, "closed", body["circuit"])
}

func TestMetricsAuth(t *testing.T) {
	t.Setenv("METRICS_API_KEY", "sekret")
	ledger := mocks.NewMockLedger()
	srv, _, _ := testServer(t, ledger)

	// No credentials
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong scheme
	req, _ := http.NewRequest("GET", srv.URL+"/metrics", nil)
	req.Header.Set("Authorization", "Basic sekret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Valid bearer token
	req, _ = http.NewRequest("GET", srv.URL+"/metrics", nil)
	req.Header.Set("Authorization", "Bearer sekret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
