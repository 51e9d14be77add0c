package types

import "time"

// FetchResult is the outcome of one attempt to retrieve a candidate URL,
// whether that attempt completed over HTTP or was synthesized by the
// Policy Gate for a rejected candidate. Exactly one of {Content, Error}
// is populated when Blocked is empty; when Blocked is set, Content is
// empty and Error carries the block reason.
type FetchResult struct {
	// URL is the canonical URL this result describes (the final URL
	// after any redirects, for successful fetches).
	URL string

	// Success is true only for a 2xx response with content successfully
	// decoded.
	Success bool

	// StatusCode is the HTTP status observed, or 0 if no response was
	// ever received (transport failure or policy block).
	StatusCode int

	// Content is the decoded response body. Nil unless Success.
	Content []byte

	// Error is a human-readable terminal failure description. Nil when
	// Success is true.
	Error string

	// Blocked is non-empty when the Policy Gate rejected the candidate,
	// either before any network call or, for a redirect chain, on
	// re-checking the final URL after the response arrived.
	Blocked BlockReason

	// Duration is the total wall-clock time spent on this candidate,
	// including all retry attempts.
	Duration time.Duration

	// Attempts is the number of HTTP attempts made (1 for a result that
	// succeeded or failed terminally on the first try).
	Attempts int
}

// BlockedResult synthesizes a Fetch-Result for a policy rejection. It
// carries no content or status code, whether the rejection happened before
// the request or on the re-check of a redirect's final URL.
func BlockedResult(url string, reason BlockReason) FetchResult {
	return FetchResult{
		URL:     url,
		Success: false,
		Error:   string(reason),
		Blocked: reason,
	}
}
