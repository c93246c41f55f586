package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// RateSource returns the current quote-token price of one unit of the base
// asset (e.g. USDC per ETH).
type RateSource interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}

// StaticRateSource always returns the same rate. Used for tests and for
// fixed-rate deployments.
type StaticRateSource struct {
	Value decimal.Decimal
}

var _ RateSource = (*StaticRateSource)(nil)

func (s *StaticRateSource) Rate(_ context.Context) (decimal.Decimal, error) {
	return s.Value, nil
}

// CoinGeckoSource fetches the live price from the CoinGecko simple price API.
type CoinGeckoSource struct {
	// AssetID is the CoinGecko identifier of the base asset, e.g. "ethereum"
	AssetID string
	// VsCurrency is the pricing currency, e.g. "usd"
	VsCurrency string
	// Timeout bounds a single fetch
	Timeout time.Duration

	httpClient *http.Client
}

var _ RateSource = (*CoinGeckoSource)(nil)

// NewCoinGeckoSource creates a price source for the given asset.
func NewCoinGeckoSource(assetID, vsCurrency string, timeout time.Duration) *CoinGeckoSource {
	return &CoinGeckoSource{
		AssetID:    assetID,
		VsCurrency: vsCurrency,
		Timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Rate fetches the current price from CoinGecko.
func (s *CoinGeckoSource) Rate(ctx context.Context) (decimal.Decimal, error) {
	url := fmt.Sprintf("https://api.coingecko.com/api/v3/simple/price?ids=%s&vs_currencies=%s&precision=full",
		s.AssetID, s.VsCurrency)

	timeoutCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %v", err)
	}

	// Sources built as struct literals carry no client
	client := s.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch rate: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("API request failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read response body: %v", err)
	}

	// Decode prices as json.Number so no float64 rounding sneaks in
	// before the decimal conversion.
	var result map[string]map[string]json.Number
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse JSON response: %v", err)
	}

	assetData, exists := result[s.AssetID]
	if !exists {
		return decimal.Zero, fmt.Errorf("asset %s not found in response", s.AssetID)
	}
	priceStr, exists := assetData[s.VsCurrency]
	if !exists {
		return decimal.Zero, fmt.Errorf("%s price not found in response", s.VsCurrency)
	}

	price, err := decimal.NewFromString(priceStr.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q: %v", priceStr, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive price: %s", price)
	}
	return price, nil
}
