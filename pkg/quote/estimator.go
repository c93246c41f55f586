// Package quote estimates swap outcomes. All arithmetic is done in
// decimal form; conversion to integer token units happens at the
// transaction-building boundary, never here.
package quote

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/swaprun-hq/swaprunner/pkg/logger"
	"github.com/swaprun-hq/swaprunner/pkg/models"
	"github.com/swaprun-hq/swaprunner/pkg/swaperr"
)

// Estimator produces quotes from a live rate source, falling back to a
// static rate when the source fails. Quotes built from the fallback are
// marked stale so callers can decide whether to proceed.
type Estimator struct {
	source RateSource
	// fallbackRate is used when source fails; zero disables the fallback
	fallbackRate decimal.Decimal
	logger       logger.Logger
}

// NewEstimator creates an estimator. A zero fallbackRate means rate source
// failures surface as QUOTE_UNAVAILABLE errors instead of stale quotes.
func NewEstimator(source RateSource, fallbackRate decimal.Decimal, log logger.Logger) *Estimator {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Estimator{
		source:       source,
		fallbackRate: fallbackRate,
		logger:       log,
	}
}

// Estimate computes a fresh quote for the request. The request must
// already be validated. Quotes are never cached; every call consults the
// rate source again.
func (e *Estimator) Estimate(ctx context.Context, req models.SwapRequest) (*models.Quote, error) {
	rate, err := e.source.Rate(ctx)
	stale := false
	if err != nil {
		if e.fallbackRate.IsZero() {
			return nil, swaperr.Wrap(swaperr.KindQuoteUnavailable, err,
				"rate source failed and no fallback rate is configured")
		}
		e.logger.ErrorWithScope(logger.Quote, "rate source failed, using fallback rate %s: %v",
			e.fallbackRate, err)
		rate = e.fallbackRate
		stale = true
	}

	if !rate.IsPositive() {
		return nil, swaperr.New(swaperr.KindQuoteUnavailable, "non-positive rate: %s", rate)
	}

	var estimated decimal.Decimal
	switch req.Direction {
	case models.SellBaseForQuote:
		estimated = req.Amount.Mul(rate)
	case models.SellQuoteForBase:
		estimated = req.Amount.Div(rate)
	default:
		return nil, swaperr.New(swaperr.KindValidation, "unsupported direction: %q", req.Direction)
	}

	minimum := ApplySlippage(estimated, req.SlippageBps)

	e.logger.DebugWithScope(logger.Quote, "quote %s: in=%s est=%s min=%s rate=%s stale=%v",
		req.Direction, req.Amount, estimated, minimum, rate, stale)

	return &models.Quote{
		InputAmount:     req.Amount,
		EstimatedOutput: estimated,
		MinimumOutput:   minimum,
		RateUsed:        rate,
		Stale:           stale,
		ComputedAt:      time.Now(),
	}, nil
}

// ApplySlippage scales an estimated output down by the slippage tolerance:
// estimated * (10000 - bps) / 10000. The division is a power-of-ten shift,
// which is exact; a rounded division could push the minimum above the true
// floor.
func ApplySlippage(estimated decimal.Decimal, bps uint32) decimal.Decimal {
	keep := decimal.NewFromInt(int64(models.MaxSlippageBps - bps))
	return estimated.Mul(keep).Shift(-4)
}
