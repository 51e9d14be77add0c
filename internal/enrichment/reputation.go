package enrichment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/huntlines/marketscout/internal/types"
)

// ReputationProvider calls an external reputation API and derives a
// signed adjustment from the remote payload.
type ReputationProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	ttl     time.Duration
}

// NewReputationProvider builds a reputation-lookup provider. The
// provider is disabled (IsEnabled returns false) when baseURL is empty.
func NewReputationProvider(baseURL, apiKey string, timeout, ttl time.Duration) *ReputationProvider {
	return &ReputationProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  apiKey,
		ttl:     ttl,
	}
}

func (p *ReputationProvider) Name() string       { return "reputation" }
func (p *ReputationProvider) IsEnabled() bool    { return p.baseURL != "" }
func (p *ReputationProvider) RateKey() string    { return "reputation" }
func (p *ReputationProvider) TTL() time.Duration { return p.ttl }

type reputationResponse struct {
	Score   float64 `json:"score"`   // -1.0 .. 1.0
	Summary string  `json:"summary"`
}

func (p *ReputationProvider) Signal(ctx context.Context, rawURL string) (types.EnrichmentSignal, bool) {
	endpoint := p.baseURL + "?domain=" + url.QueryEscape(rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return types.EnrichmentSignal{}, false
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return types.EnrichmentSignal{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.EnrichmentSignal{}, false
	}

	var payload reputationResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return types.EnrichmentSignal{}, false
	}

	adjustment := types.ClampAdjustment(payload.Score * 30)
	return types.EnrichmentSignal{
		Source:     p.Name(),
		Adjustment: adjustment,
		Reason:     payload.Summary,
		Payload:    payload,
	}, true
}
