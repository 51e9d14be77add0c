package enrichment

import (
	"bufio"
	"bytes"
	"context"
	"net/url"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/huntlines/marketscout/internal/types"
)

var creationYearPattern = regexp.MustCompile(`(?i)creation date:\s*(\d{4})`)

// DomainAgeProvider shells out to the system whois client and parses the
// registration year from its output, per the spec's explicit allowance
// for an OS command invocation in this provider.
type DomainAgeProvider struct {
	minAgeYears int
	timeout     time.Duration
	ttl         time.Duration
	nowYear     func() int
}

// NewDomainAgeProvider builds a domain-age provider that boosts domains
// older than minAgeYears.
func NewDomainAgeProvider(minAgeYears int, timeout, ttl time.Duration, nowYear func() int) *DomainAgeProvider {
	return &DomainAgeProvider{minAgeYears: minAgeYears, timeout: timeout, ttl: ttl, nowYear: nowYear}
}

func (p *DomainAgeProvider) Name() string       { return "domain_age" }
func (p *DomainAgeProvider) IsEnabled() bool    { return true }
func (p *DomainAgeProvider) RateKey() string    { return "domain_age" }
func (p *DomainAgeProvider) TTL() time.Duration { return p.ttl }

func (p *DomainAgeProvider) Signal(ctx context.Context, rawURL string) (types.EnrichmentSignal, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return types.EnrichmentSignal{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "whois", u.Hostname())
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return types.EnrichmentSignal{}, false
	}

	year, ok := parseCreationYear(out.Bytes())
	if !ok {
		return types.EnrichmentSignal{}, false
	}

	age := p.nowYear() - year
	if age <= p.minAgeYears {
		return types.EnrichmentSignal{}, false
	}

	return types.EnrichmentSignal{
		Source:     p.Name(),
		Adjustment: types.ClampAdjustment(10),
		Reason:     "domain age exceeds threshold",
		Payload:    age,
	}, true
}

func parseCreationYear(output []byte) (int, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		if m := creationYearPattern.FindStringSubmatch(scanner.Text()); m != nil {
			if year, err := strconv.Atoi(m[1]); err == nil {
				return year, true
			}
		}
	}
	return 0, false
}
