package cmd

import (
	"context"
	"fmt"
	"math/big"

	"github.com/swaprun-hq/swaprunner/pkg/approval"
	"github.com/swaprun-hq/swaprunner/pkg/blockchain"
	"github.com/swaprun-hq/swaprunner/pkg/chainclient"
	"github.com/swaprun-hq/swaprunner/pkg/circuitbreaker"
	"github.com/swaprun-hq/swaprunner/pkg/config"
	"github.com/swaprun-hq/swaprunner/pkg/engine"
	"github.com/swaprun-hq/swaprunner/pkg/logger"
	"github.com/swaprun-hq/swaprunner/pkg/models"
	"github.com/swaprun-hq/swaprunner/pkg/quote"
	"github.com/swaprun-hq/swaprunner/pkg/tracker"
	"github.com/swaprun-hq/swaprunner/pkg/txbuilder"
)

// runtime bundles everything a command needs after bootstrap.
type runtime struct {
	cfg     *config.Config
	engine  *engine.Engine
	breaker *circuitbreaker.CircuitBreaker
	logger  logger.Logger
	close   func()
}

// bootstrap loads configuration, connects to the chain and wires the engine.
func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %v", err)
	}

	log := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	client, err := chainclient.Dial(ctx, cfg.RPCURL, cfg.ChainID)
	if err != nil {
		return nil, err
	}

	signer, err := blockchain.NewKeySigner(cfg.PrivateKey, big.NewInt(cfg.ChainID))
	if err != nil {
		client.Close()
		return nil, err
	}

	nonces := blockchain.NewNonceManager()

	builder := txbuilder.NewBuilder(client, signer, nonces, txbuilder.Config{
		ChainID:               big.NewInt(cfg.ChainID),
		RouterAddress:         cfg.RouterAddress,
		WrappedNativeAddress:  cfg.WrappedNativeAddress,
		QuoteTokenAddress:     cfg.QuoteTokenAddress,
		QuoteTokenDecimals:    cfg.QuoteTokenDecimals,
		SwapGasLimit:          cfg.SwapGasLimit,
		ApproveGasLimit:       cfg.ApproveGasLimit,
		PriorityFeeMultiplier: cfg.PriorityFeeMultiplier,
		FeeMultiplier:         cfg.FeeMultiplier,
		DeadlineWindow:        cfg.DeadlineWindow,
	}, log)

	trk := tracker.New(client, tracker.Config{
		PollInterval:  cfg.PollInterval,
		PollTimeout:   cfg.PollTimeout,
		Budget:        cfg.TrackingBudget,
		Confirmations: cfg.Confirmations,
	}, log)

	approvals := approval.NewManager(client, builder, trk, signer.Address(),
		cfg.ApprovalWait, cfg.ApprovalTimeout, log)

	rateSource := quote.NewCachedSource(
		quote.NewCoinGeckoSource(cfg.RateAssetID, "usd", cfg.RateTimeout),
		cfg.RateCacheTTL,
	)
	estimator := quote.NewEstimator(rateSource, cfg.FallbackRate, log)

	breaker := circuitbreaker.NewCircuitBreaker(
		cfg.CircuitBreaker.Enabled,
		cfg.CircuitBreaker.Threshold,
		cfg.CircuitBreaker.WindowDuration,
		cfg.CircuitBreaker.ResetTimeout,
		log,
	)

	eng := engine.New(client, signer.Address(), estimator, builder, trk, approvals, breaker, engine.Config{
		ChainID:            cfg.ChainID,
		QuoteTokenAddress:  cfg.QuoteTokenAddress,
		SpenderAddress:     cfg.SpenderAddress,
		QuoteTokenDecimals: cfg.QuoteTokenDecimals,
		DefaultSlippageBps: cfg.DefaultSlippageBps,
	}, log)

	return &runtime{
		cfg:     cfg,
		engine:  eng,
		breaker: breaker,
		logger:  log,
		close:   client.Close,
	}, nil
}

// parseDirection maps CLI direction names onto the model type.
func parseDirection(arg string) (models.Direction, error) {
	switch arg {
	case "sell-base", "sell-eth":
		return models.SellBaseForQuote, nil
	case "sell-quote", "sell-usdc":
		return models.SellQuoteForBase, nil
	}
	return "", fmt.Errorf("unknown direction %q, use sell-base or sell-quote", arg)
}
