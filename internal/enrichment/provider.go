// Package enrichment implements the Enrichment Orchestrator (C9): a
// capability-set fan-out over pluggable external signal providers.
package enrichment

import (
	"context"
	"time"

	"github.com/huntlines/marketscout/internal/types"
)

// Provider is the capability set every enrichment provider implements.
// New providers are added by implementing this interface and registering
// in an Orchestrator's provider list; the orchestrator has no dependency
// on any specific provider.
type Provider interface {
	// Name identifies the provider as a signal's Source and in event-log
	// metadata. Quota windows are keyed by RateKey, not Name.
	Name() string

	// IsEnabled reports whether the provider is usable this run (e.g. an
	// API key is configured).
	IsEnabled() bool

	// RateKey returns the sliding-window quota key for this provider.
	RateKey() string

	// TTL bounds how long a result from this provider may be cached.
	TTL() time.Duration

	// Signal computes this provider's contribution for url. ok is false
	// when the provider could not produce a signal (error, no match);
	// that is not itself an error to the orchestrator.
	Signal(ctx context.Context, url string) (signal types.EnrichmentSignal, ok bool)
}
