package enrichment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/huntlines/marketscout/internal/types"
)

// FundingProvider looks up recent funding events behind an authenticated
// API. It is disabled unless an API key is configured.
type FundingProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	ttl     time.Duration
}

// NewFundingProvider builds a funding-lookup provider.
func NewFundingProvider(baseURL, apiKey string, timeout, ttl time.Duration) *FundingProvider {
	return &FundingProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  apiKey,
		ttl:     ttl,
	}
}

func (p *FundingProvider) Name() string       { return "funding" }
func (p *FundingProvider) IsEnabled() bool    { return p.apiKey != "" && p.baseURL != "" }
func (p *FundingProvider) RateKey() string    { return "funding" }
func (p *FundingProvider) TTL() time.Duration { return p.ttl }

type fundingResponse struct {
	HasRecentRound bool    `json:"has_recent_round"`
	AmountUSD      float64 `json:"amount_usd"`
}

func (p *FundingProvider) Signal(ctx context.Context, rawURL string) (types.EnrichmentSignal, bool) {
	endpoint := p.baseURL + "?domain=" + url.QueryEscape(rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return types.EnrichmentSignal{}, false
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return types.EnrichmentSignal{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.EnrichmentSignal{}, false
	}

	var payload fundingResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return types.EnrichmentSignal{}, false
	}

	if !payload.HasRecentRound {
		return types.EnrichmentSignal{}, false
	}

	return types.EnrichmentSignal{
		Source:     p.Name(),
		Adjustment: types.ClampAdjustment(18),
		Reason:     "recent funding round detected",
		Payload:    payload,
	}, true
}
