package enrichment

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/huntlines/marketscout/internal/types"
)

// platformSignatures maps a detected site type to a deterministic score
// adjustment and the body/markup fingerprints that identify it.
var platformSignatures = []struct {
	siteType    types.SiteType
	adjustment  float64
	markers     []string
}{
	{types.SiteShopify, 15, []string{"cdn.shopify.com", "Shopify.theme", "shopify-section"}},
	{types.SiteWooCommerce, 10, []string{"woocommerce", "wp-content/plugins/woocommerce"}},
}

// PlatformProvider fetches a URL's root page and inspects the body for
// known e-commerce platform signatures.
type PlatformProvider struct {
	client *http.Client
	ttl    time.Duration
}

// NewPlatformProvider builds a platform-detection provider that issues
// its own bounded HTTP GET (independent of the collection core's main
// fetcher, since this is a best-effort enrichment side-call).
func NewPlatformProvider(timeout, ttl time.Duration) *PlatformProvider {
	return &PlatformProvider{
		client: &http.Client{Timeout: timeout},
		ttl:    ttl,
	}
}

func (p *PlatformProvider) Name() string       { return "platform" }
func (p *PlatformProvider) IsEnabled() bool    { return true }
func (p *PlatformProvider) RateKey() string    { return "platform" }
func (p *PlatformProvider) TTL() time.Duration { return p.ttl }

func (p *PlatformProvider) Signal(ctx context.Context, rawURL string) (types.EnrichmentSignal, bool) {
	root := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		root = u.Scheme + "://" + u.Host + "/"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, root, nil)
	if err != nil {
		return types.EnrichmentSignal{}, false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return types.EnrichmentSignal{}, false
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return types.EnrichmentSignal{}, false
	}
	body, err := doc.Html()
	if err != nil {
		return types.EnrichmentSignal{}, false
	}
	lower := strings.ToLower(body)

	for _, sig := range platformSignatures {
		for _, marker := range sig.markers {
			if strings.Contains(lower, strings.ToLower(marker)) {
				return types.EnrichmentSignal{
					Source:     p.Name(),
					Adjustment: types.ClampAdjustment(sig.adjustment),
					Reason:     "platform signature matched: " + marker,
					Payload:    string(sig.siteType),
				}, true
			}
		}
	}
	return types.EnrichmentSignal{}, false
}

// DetectSiteType classifies a raw HTML body into a SiteType using the same
// signatures as Signal. The orchestrator does not call it: it takes an
// Enriched-Score's SiteType from the platform signal's payload.
func DetectSiteType(body string) types.SiteType {
	lower := strings.ToLower(body)
	for _, sig := range platformSignatures {
		for _, marker := range sig.markers {
			if strings.Contains(lower, strings.ToLower(marker)) {
				return sig.siteType
			}
		}
	}
	if body == "" {
		return types.SiteUnknown
	}
	return types.SiteGeneric
}
