package types

import "time"

// Candidate is a URL awaiting admission, produced by the discovery engine
// or read line-by-line from the collection input stream. Ownership is
// transient: it is transferred into a task on dispatch and discarded once
// the task settles.
type Candidate struct {
	// Raw is the URL exactly as read from input or composed by discovery.
	Raw string

	// Niche tags the candidate with the discovery seed category that
	// produced it, if any (empty for plain input-stream candidates).
	Niche string

	// Region tags the candidate with the discovery region code that
	// produced it, if any.
	Region string

	// CreatedAt records when the candidate entered the stream.
	CreatedAt time.Time
}

// NewCandidate builds a bare candidate from a raw URL string.
func NewCandidate(raw string) Candidate {
	return Candidate{Raw: raw, CreatedAt: time.Now()}
}
