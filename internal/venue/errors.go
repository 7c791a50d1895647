package venue

import "errors"

// Error taxonomy per §6/§7: callers distinguish these with errors.Is.
var (
	// ErrRejected means the venue rejected the order on validation; it is
	// not retried. The caller releases the inventory commitment.
	ErrRejected = errors.New("venue: order rejected")
	// ErrRateLimited means the venue asked the caller to back off; safe to
	// retry after the rate limiter's delay.
	ErrRateLimited = errors.New("venue: rate limited")
	// ErrUnavailable is a transient network/availability failure; safe to
	// retry with exponential backoff.
	ErrUnavailable = errors.New("venue: unavailable")
)
