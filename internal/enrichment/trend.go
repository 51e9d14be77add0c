package enrichment

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/huntlines/marketscout/internal/types"
)

// trendKeywords is a small curated table of host-token substrings judged
// to indicate a trending niche. This is a heuristic keyword match, not an
// external data source, so it is implemented directly against the
// standard library rather than a third-party trend-analysis client —
// there is no remote call to make a library worth adding for.
var trendKeywords = map[string]float64{
	"eco":        8,
	"organic":    8,
	"sustain":    10,
	"ai":         12,
	"smart":      6,
	"subscribe":  5,
	"wellness":   7,
	"fitness":    6,
	"pet":        5,
	"handmade":   6,
}

// TrendProvider flags hosts containing a known trending token.
type TrendProvider struct {
	ttl time.Duration
}

// NewTrendProvider builds a trend-detection provider with the given
// cache TTL.
func NewTrendProvider(ttl time.Duration) *TrendProvider {
	return &TrendProvider{ttl: ttl}
}

func (p *TrendProvider) Name() string          { return "trend" }
func (p *TrendProvider) IsEnabled() bool       { return true }
func (p *TrendProvider) RateKey() string       { return "trend" }
func (p *TrendProvider) TTL() time.Duration    { return p.ttl }

func (p *TrendProvider) Signal(_ context.Context, rawURL string) (types.EnrichmentSignal, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return types.EnrichmentSignal{}, false
	}
	host := strings.ToLower(u.Hostname())

	for token, boost := range trendKeywords {
		if strings.Contains(host, token) {
			return types.EnrichmentSignal{
				Source:     p.Name(),
				Adjustment: types.ClampAdjustment(boost),
				Reason:     "host token matches trending keyword: " + token,
				Payload:    token,
			}, true
		}
	}
	return types.EnrichmentSignal{}, false
}
